package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatguard-lab/internal/config"
	"chatguard-lab/pkg/logger"
)

// PostgresDB wraps the pgx connection pool
type PostgresDB struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgres creates a new PostgreSQL connection pool
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*PostgresDB, error) {
	log = log.WithComponent("postgres")
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("dbname", cfg.DBName).Msg("connecting to PostgreSQL")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL successfully")

	return &PostgresDB{
		pool:   pool,
		logger: log,
	}, nil
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the connection pool
func (db *PostgresDB) Close() {
	db.logger.Info().Msg("closing PostgreSQL connection pool")
	db.pool.Close()
}

// Ping checks the database connection
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Stats returns connection pool statistics
func (db *PostgresDB) Stats() *pgxpool.Stat {
	return db.pool.Stat()
}

// WithTx executes a function within a transaction
func (db *PostgresDB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Migrate creates the schema objects if they do not exist yet
func (db *PostgresDB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS imports (
			id UUID PRIMARY KEY,
			owner_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			status TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			content_hash TEXT NOT NULL DEFAULT '',
			message_count INT NOT NULL DEFAULT 0,
			participant_count INT NOT NULL DEFAULT 0,
			risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			risk_level TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			key_findings JSONB,
			date_from TIMESTAMPTZ,
			date_to TIMESTAMPTZ,
			processing_time_ms BIGINT NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			warnings JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_imports_owner ON imports (owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_imports_owner_hash ON imports (owner_id, content_hash) WHERE status = 'COMPLETED'`,
		`CREATE TABLE IF NOT EXISTS import_messages (
			import_id UUID NOT NULL REFERENCES imports (id) ON DELETE CASCADE,
			seq BIGSERIAL,
			message_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			sender_id TEXT NOT NULL DEFAULT '',
			sender_name TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			is_edited BOOLEAN NOT NULL DEFAULT FALSE,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			is_forwarded BOOLEAN NOT NULL DEFAULT FALSE,
			reply_to_id TEXT NOT NULL DEFAULT '',
			attachments JSONB,
			entities JSONB,
			risk_score INT,
			risk_flags JSONB,
			PRIMARY KEY (import_id, message_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_import_messages_seq ON import_messages (import_id, seq)`,
		`CREATE TABLE IF NOT EXISTS import_participants (
			import_id UUID NOT NULL REFERENCES imports (id) ON DELETE CASCADE,
			participant_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			phone_number TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'member',
			message_count INT NOT NULL DEFAULT 0,
			first_message TIMESTAMPTZ,
			last_message TIMESTAMPTZ,
			risk_score INT,
			risk_flags JSONB,
			PRIMARY KEY (import_id, participant_id)
		)`,
	}

	// All statements commit atomically; a half-created schema never survives
	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to run migration: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.Info().Msg("database schema ensured")
	return nil
}

// DBTX abstracts the query surface shared by *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

var _ DBTX = (*pgxpool.Pool)(nil)
