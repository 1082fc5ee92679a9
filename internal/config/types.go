package config

import "strings"

// Environment identifies the runtime environment herald runs in.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// StoreKind selects a store adapter implementation.
type StoreKind string

const (
	// StoreMemoryLatest keeps the last value per event in memory.
	StoreMemoryLatest StoreKind = "memory-latest"
	// StoreMemoryHistory keeps every value per event in memory.
	StoreMemoryHistory StoreKind = "memory-history"
	// StoreRedis persists values in Redis.
	StoreRedis StoreKind = "redis"
	// StorePostgres persists values in PostgreSQL.
	StorePostgres StoreKind = "postgres"
)

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
