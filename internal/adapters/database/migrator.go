package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// migrator applies the embedded migrations to one schema. Every schema holds its own tiles
// table, so tests can migrate throwaway schemas next to the main one.
type migrator struct {
	db *sqlx.DB

	logger *slog.Logger
}

func NewDatabaseMigrator(db *sqlx.DB, logger *slog.Logger) *migrator {
	return &migrator{
		db:     db,
		logger: logger,
	}
}

// Migrate brings schemaName up to the latest migration, creating the schema if needed
func (m *migrator) Migrate(ctx context.Context, schemaName string) error {
	return m.withInstance(ctx, schemaName, func(instance *migrate.Migrate) error {
		m.logger.InfoContext(ctx, "Starting migrations...", "schema", schemaName)
		err := instance.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.InfoContext(ctx, "No migrations to run.", "schema", schemaName)
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrate: failed to migrate up: %w", err)
		}
		m.logger.InfoContext(ctx, "Migrations completed successfully.", "schema", schemaName)
		return nil
	})
}

// Down reverts every migration of schemaName. The schema itself is kept.
func (m *migrator) Down(ctx context.Context, schemaName string) error {
	return m.withInstance(ctx, schemaName, func(instance *migrate.Migrate) error {
		err := instance.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate: failed to migrate down: %w", err)
		}
		return nil
	})
}

// Version is the applied migration version of schemaName. ok is false before the first migration.
func (m *migrator) Version(ctx context.Context, schemaName string) (version uint, ok bool, err error) {
	err = m.withInstance(ctx, schemaName, func(instance *migrate.Migrate) error {
		v, dirty, err := instance.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrate: failed to read version: %w", err)
		}
		if dirty {
			return fmt.Errorf("migrate: schema %s is dirty at version %d", schemaName, v)
		}
		version, ok = v, true
		return nil
	})
	return version, ok, err
}

// withInstance runs fn with a migrate instance bound to a connection whose search path is schemaName
func (m *migrator) withInstance(ctx context.Context, schemaName string, fn func(instance *migrate.Migrate) error) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migrate: failed to connect to db: %w", err)
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(schemaName)))
	if err != nil {
		return fmt.Errorf("migrate: failed to create schema: %w", err)
	}

	_, err = conn.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", pq.QuoteIdentifier(schemaName)))
	if err != nil {
		return fmt.Errorf("migrate: failed to set search path: %w", err)
	}

	migrationSource, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrate: failed to create driver from embedded migrations: %w", err)
	}
	defer migrationSource.Close()

	dbDriver, err := postgres.WithConnection(ctx, conn, &postgres.Config{
		DatabaseName: DB_NAME,
		SchemaName:   schemaName,
	})
	if err != nil {
		return fmt.Errorf("migrate: failed to create postgres driver: %w", err)
	}

	instance, err := migrate.NewWithInstance("iofs", migrationSource, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("migrate: failed to create migration instance: %w", err)
	}
	defer instance.Close()

	return fn(instance)
}
