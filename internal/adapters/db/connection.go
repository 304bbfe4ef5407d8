package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"bid-settlement-service/internal/config"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = pq.ErrorCode("23505")

// Connection represents a database connection
type Connection struct {
	db     *sql.DB
	logger zerolog.Logger
}

type ConnectionParams struct {
	Config *config.DatabaseConfig
	Logger zerolog.Logger
}

// NewConnection opens the pool, verifies it and applies the schema when configured to
func NewConnection(ctx context.Context, params ConnectionParams) (*Connection, error) {
	db, err := sql.Open("postgres", params.Config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(params.Config.MaxOpenConns)
	db.SetMaxIdleConns(params.Config.MaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn := &Connection{
		db:     db,
		logger: params.Logger.With().Str("component", "postgres").Logger(),
	}

	if params.Config.AutoMigrate {
		if err := conn.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	return conn, nil
}

// EnsureSchema creates missing tables and indexes. Safe to run repeatedly.
func (client *Connection) EnsureSchema(ctx context.Context) error {
	if _, err := client.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	client.logger.Info().Msg("Database schema is up to date")
	return nil
}

// GetDB returns the underlying sql.DB instance
func (client *Connection) GetDB() *sql.DB {
	return client.db
}

// Close closes the database connection
func (client *Connection) Close() error {
	return client.db.Close()
}

// BeginTransaction starts a new database transaction
func (client *Connection) BeginTransaction(ctx context.Context) (*sql.Tx, error) {
	tx, err := client.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// ExecuteTransaction executes a function within a transaction
func (client *Connection) ExecuteTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := client.BeginTransaction(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
