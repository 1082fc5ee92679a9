package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	dbmigrations "github.com/coachpo/herald/db/migrations"
	"github.com/coachpo/herald/internal/observability"
	"github.com/coachpo/herald/internal/telemetry"
)

var (
	migrationsCounter   metric.Int64Counter
	migrationsCounterMu sync.Once
)

// Migrate applies the embedded migrations to the Postgres instance reachable
// via dsn. A nil logger disables logging.
func Migrate(ctx context.Context, dsn string, logger observability.Logger) error {
	if logger == nil {
		logger = observability.Nop()
	}
	return withMigrator(ctx, dsn, logger, func(m *migrate.Migrate) error {
		logger.Info("running database migrations")

		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				recordMigrationMetric(ctx, "up", "noop")
				logger.Info("database migrations up-to-date")
				return nil
			}
			recordMigrationMetric(ctx, "up", "failed")
			return fmt.Errorf("apply migrations: %w", err)
		}

		logger.Info("database migrations applied successfully")
		recordMigrationMetric(ctx, "up", "applied")
		return nil
	})
}

// Rollback reverts the given number of migrations.
func Rollback(ctx context.Context, dsn string, steps int, logger observability.Logger) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be positive")
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return withMigrator(ctx, dsn, logger, func(m *migrate.Migrate) error {
		logger.Info("rolling back database migrations", observability.Field{Key: "steps", Value: steps})

		if err := m.Steps(-steps); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				recordMigrationMetric(ctx, "down", "noop")
				logger.Info("database migrations already at base")
				return nil
			}
			recordMigrationMetric(ctx, "down", "failed")
			return fmt.Errorf("rollback migrations: %w", err)
		}

		logger.Info("database migrations rolled back")
		recordMigrationMetric(ctx, "down", "applied")
		return nil
	})
}

func withMigrator(ctx context.Context, dsn string, logger observability.Logger, fn func(*migrate.Migrate) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migrations connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("database migrations close", observability.Field{Key: "error", Value: cerr})
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migrations database: %w", err)
	}

	var driverConfig pgxv5.Config
	driver, err := pgxv5.WithInstance(db, &driverConfig)
	if err != nil {
		return fmt.Errorf("initialise pgx v5 driver: %w", err)
	}

	source, err := iofs.New(dbmigrations.Files, ".")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("initialise migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			logger.Error("database migrations source close", observability.Field{Key: "error", Value: sourceErr})
		}
		if dbErr != nil {
			logger.Error("database migrations db close", observability.Field{Key: "error", Value: dbErr})
		}
	}()

	return fn(m)
}

func recordMigrationMetric(ctx context.Context, direction, result string) {
	migrationsCounterMu.Do(func() {
		meter := otel.Meter("pgstore.migrations")
		counter, err := meter.Int64Counter("herald_db_migrations_total",
			metric.WithDescription("Total migrations executed via golang-migrate"),
			metric.WithUnit("{migration}"))
		if err == nil {
			migrationsCounter = counter
		}
	})
	if migrationsCounter == nil {
		return
	}
	migrationsCounter.Add(ctx, 1, metric.WithAttributes(
		telemetry.AttrEnvironment.String(telemetry.Environment()),
		attribute.String("direction", direction),
		attribute.String("result", result),
	))
}
