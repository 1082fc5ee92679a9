package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/herald/internal/config"
	"github.com/coachpo/herald/internal/observability"
	"github.com/coachpo/herald/pkg/bus"
	"github.com/coachpo/herald/pkg/store"
	"github.com/coachpo/herald/pkg/store/pgstore"
	"github.com/coachpo/herald/pkg/store/redisstore"
)

const maxConnectInterval = 5 * time.Second

// storeSet owns the adapters named in the configuration.
type storeSet struct {
	byName  map[string]store.Store
	closers []func()
}

func (s *storeSet) lookup(names []string) []store.Store {
	out := make([]store.Store, 0, len(names))
	for _, name := range names {
		if st, ok := s.byName[name]; ok {
			out = append(out, st)
		}
	}
	return out
}

// Close releases connections in reverse order of creation.
func (s *storeSet) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func buildStores(ctx context.Context, logger observability.Logger, cfg config.AppConfig) (*storeSet, error) {
	set := &storeSet{byName: make(map[string]store.Store, len(cfg.Stores))}

	var pool *pgxpool.Pool
	for _, name := range slices.Sorted(maps.Keys(cfg.Stores)) {
		sc := cfg.Stores[name]
		switch sc.Kind {
		case config.StoreMemoryLatest:
			set.byName[name] = store.NewLatestStore()
		case config.StoreMemoryHistory:
			set.byName[name] = store.NewHistoryStore()
		case config.StoreRedis:
			client, err := redisstore.Connect(ctx, sc.Redis.URL)
			if err != nil {
				set.Close()
				return nil, fmt.Errorf("store %q: %w", name, err)
			}
			set.closers = append(set.closers, func() { _ = client.Close() })
			if _, err := connectWithRetry(ctx, logger, "redis", cfg.ConnectTimeout, func() (string, error) {
				return client.Ping(ctx).Result()
			}); err != nil {
				set.Close()
				return nil, fmt.Errorf("store %q: ping redis: %w", name, err)
			}
			set.byName[name] = redisstore.New(client, sc.Redis.Prefix)
		case config.StorePostgres:
			if pool == nil {
				p, err := openPostgres(ctx, logger, cfg)
				if err != nil {
					set.Close()
					return nil, fmt.Errorf("store %q: %w", name, err)
				}
				pool = p
				set.closers = append(set.closers, pool.Close)
			}
			set.byName[name] = pgstore.New(pool, sc.Namespace)
		default:
			set.Close()
			return nil, fmt.Errorf("store %q: unknown kind %q", name, sc.Kind)
		}
		logger.Info("store ready",
			observability.Field{Key: "name", Value: name},
			observability.Field{Key: "kind", Value: string(sc.Kind)})
	}
	return set, nil
}

func openPostgres(ctx context.Context, logger observability.Logger, cfg config.AppConfig) (*pgxpool.Pool, error) {
	if cfg.Database.RunMigrations {
		if _, err := connectWithRetry(ctx, logger, "postgres migrations", cfg.ConnectTimeout, func() (struct{}, error) {
			return struct{}{}, pgstore.Migrate(ctx, cfg.Database.DSN, logger)
		}); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return connectWithRetry(ctx, logger, "postgres", cfg.ConnectTimeout, func() (*pgxpool.Pool, error) {
		return pgstore.Connect(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	})
}

func connectWithRetry[T any](ctx context.Context, logger observability.Logger, target string, timeout time.Duration, op backoff.Operation[T]) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = maxConnectInterval
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Info("connect retry",
				observability.Field{Key: "target", Value: target},
				observability.Field{Key: "error", Value: err},
				observability.Field{Key: "next", Value: next})
		}))
}

// buildBus registers the configured events and groups in declaration order.
func buildBus(cfg config.AppConfig, stores *storeSet, opts ...bus.Option) (*bus.Bus, error) {
	b := bus.New(opts...)
	for _, ev := range cfg.Events {
		if err := b.Register(ev.Name, stores.lookup(ev.Stores)...); err != nil {
			return nil, err
		}
	}
	for _, g := range cfg.Groups {
		if err := b.Group(g.Name, g.Events, stores.lookup(g.Stores)...); err != nil {
			return nil, err
		}
	}
	return b, nil
}
