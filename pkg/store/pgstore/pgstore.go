// Package pgstore persists bus values in PostgreSQL.
//
// Every Put appends a row to herald_values; Get reports the latest row per
// event. Several stores can share one table by using distinct namespaces.
package pgstore

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/herald/errs"
)

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "default"

const (
	insertValueSQL = `
INSERT INTO herald_values (namespace, event_name, group_name, payload)
VALUES ($1, $2, NULLIF($3, ''), $4::jsonb);
`

	deleteEventSQL = `
DELETE FROM herald_values
WHERE namespace = $1
  AND event_name = $2;
`

	latestValuesSQL = `
SELECT DISTINCT ON (event_name)
    event_name,
    payload
FROM herald_values
WHERE namespace = $1
ORDER BY event_name, id DESC;
`

	historySQL = `
SELECT payload
FROM herald_values
WHERE namespace = $1
  AND event_name = $2
ORDER BY id ASC;
`

	groupValuesSQL = `
SELECT DISTINCT ON (event_name)
    event_name,
    payload
FROM herald_values
WHERE namespace = $1
  AND group_name = $2
ORDER BY event_name, id DESC;
`
)

// Store implements store.Store on top of a pgx connection pool.
type Store struct {
	pool      *pgxpool.Pool
	namespace string
}

// New constructs a Store backed by the provided pool.
func New(pool *pgxpool.Pool, namespace string) *Store {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{pool: pool, namespace: namespace}
}

// Connect opens a pool for dsn and verifies it with a ping. maxConns <= 0
// keeps the pgx default.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Namespace returns the namespace rows are written under.
func (s *Store) Namespace() string {
	return s.namespace
}

// Put appends value for eventName.
func (s *Store) Put(ctx context.Context, eventName string, value any, groupName string) error {
	if s.pool == nil {
		return nilPool("pgstore/put")
	}
	payload, err := encodeJSON(value)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertValueSQL, s.namespace, eventName, groupName, payload); err != nil {
		return fmt.Errorf("pg store put %s: %w", eventName, err)
	}
	return nil
}

// Remove deletes every row recorded for eventName.
func (s *Store) Remove(ctx context.Context, eventName string, _ any, _ []string) (bool, error) {
	if s.pool == nil {
		return false, nilPool("pgstore/remove")
	}
	tag, err := s.pool.Exec(ctx, deleteEventSQL, s.namespace, eventName)
	if err != nil {
		return false, fmt.Errorf("pg store remove %s: %w", eventName, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get returns a map[string]any of the latest value per event.
func (s *Store) Get(ctx context.Context) (any, error) {
	if s.pool == nil {
		return nil, nilPool("pgstore/get")
	}
	return s.latest(ctx, latestValuesSQL, s.namespace)
}

// Group returns the latest value per event recorded through groupName.
func (s *Store) Group(ctx context.Context, groupName string) (map[string]any, error) {
	if s.pool == nil {
		return nil, nilPool("pgstore/group")
	}
	return s.latest(ctx, groupValuesSQL, s.namespace, groupName)
}

// History returns every value recorded for eventName in publish order.
func (s *Store) History(ctx context.Context, eventName string) ([]any, error) {
	if s.pool == nil {
		return nil, nilPool("pgstore/history")
	}
	rows, err := s.pool.Query(ctx, historySQL, s.namespace, eventName)
	if err != nil {
		return nil, fmt.Errorf("pg store history %s: %w", eventName, err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("pg store history scan: %w", err)
		}
		v, err := decodeJSON(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg store history rows: %w", err)
	}
	return out, nil
}

func (s *Store) latest(ctx context.Context, query string, args ...any) (map[string]any, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg store query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]any)
	var (
		name string
		raw  []byte
	)
	_, err = pgx.ForEachRow(rows, []any{&name, &raw}, func() error {
		v, err := decodeJSON(raw)
		if err != nil {
			return err
		}
		out[name] = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pg store rows: %w", err)
	}
	return out, nil
}

func nilPool(op string) error {
	return errs.New(op, errs.CodeStore, errs.WithMessage("postgres pool not configured"))
}

func encodeJSON(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, errs.New("pgstore/encode", errs.CodeStore,
			errs.WithMessage("value cannot be encoded as JSON"), errs.WithCause(err))
	}
	return data, nil
}

func decodeJSON(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errs.New("pgstore/decode", errs.CodeStore,
			errs.WithMessage("stored payload is not valid JSON"), errs.WithCause(err))
	}
	return out, nil
}
