// Package database connects to the postgres tile store and keeps its schema up to date
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Amund211/tilecore/internal/config"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const DB_NAME = "tilecore"

const LOCAL_CONNECTION_STRING = "user=postgres password=postgres dbname=tilecore sslmode=disable"

const MAIN_SCHEMA = "tilecore"
const TESTING_SCHEMA = "tilecore_test"

// Connections beyond the fetch workers serve imports and migrations
const spareConnections = 2

func GetSchemaName(isTesting bool) string {
	if isTesting {
		return TESTING_SCHEMA
	}
	return MAIN_SCHEMA
}

// NewPostgresDatabase connects and makes sure the tilecore database exists. maxOpen bounds the
// number of open connections, zero means unbounded.
func NewPostgresDatabase(ctx context.Context, connectionString string, maxOpen int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	err = createDatabaseIfNotExists(ctx, db, DB_NAME)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// NewPostgresDatabaseFromConfig sizes the connection pool after the fetch pool, and falls back
// to the local database in development
func NewPostgresDatabaseFromConfig(ctx context.Context, conf config.Config) (*sqlx.DB, error) {
	connectionString := conf.DatabaseURL()
	if connectionString == "" && conf.IsDevelopment() {
		connectionString = LOCAL_CONNECTION_STRING
	}

	db, err := NewPostgresDatabase(ctx, connectionString, conf.Tuning().PoolSize+spareConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres database: %w", err)
	}

	return db, nil
}

func createDatabaseIfNotExists(ctx context.Context, db *sqlx.DB, dbName string) error {
	var exists bool
	err := db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName)
	if err != nil {
		return fmt.Errorf("createDB: failed to check if database exists: %w", err)
	}
	if exists {
		return nil
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName)))
	if err != nil {
		return fmt.Errorf("createDB: failed to create database: %w", err)
	}

	return nil
}
