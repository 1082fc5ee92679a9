// Package dbmigrations exposes embedded SQL migrations for the Postgres store.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations applied by pgstore.Migrate.
//
//go:embed *.sql
var Files embed.FS
