package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"property-ingest/utils"
)

// PostgresDocuments persists each document as one JSONB row in the
// documents table.
type PostgresDocuments struct {
	db *sql.DB
}

var _ DocumentStore = (*PostgresDocuments)(nil)

// NewPostgresDocuments opens a connection to PostgreSQL, waits for it to
// accept pings, runs the schema migration and returns a ready store.
func NewPostgresDocuments(ctx context.Context, dsn string, logger *utils.Logger) (*PostgresDocuments, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, Logger: logger}
	if err := retry.Do(ctx, "postgres ping", func() error {
		return db.PingContext(ctx)
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	pd := &PostgresDocuments{db: db}
	if err := pd.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pd, nil
}

func (pd *PostgresDocuments) migrate(ctx context.Context) error {
	_, err := pd.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			name       TEXT        PRIMARY KEY,
			body       JSONB       NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (pd *PostgresDocuments) Load(ctx context.Context, name string) ([]byte, error) {
	var body string
	err := pd.db.QueryRowContext(ctx,
		`SELECT body::text FROM documents WHERE name = $1`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load %s: %w", name, err)
	}
	return []byte(body), nil
}

func (pd *PostgresDocuments) Save(ctx context.Context, name string, body []byte) error {
	_, err := pd.db.ExecContext(ctx, `
		INSERT INTO documents (name, body, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (name) DO UPDATE
		SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`, name, string(body))
	if err != nil {
		return fmt.Errorf("postgres: save %s: %w", name, err)
	}
	return nil
}

func (pd *PostgresDocuments) Close() error {
	return pd.db.Close()
}
