package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL
)

// Open abre la conexión con el driver pgx y espera a que responda.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// InitSchema crea las tablas 'orders', 'outbox' y 'event_log' si no existen.
func InitSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
        id BIGSERIAL PRIMARY KEY,
        symbol VARCHAR(10) NOT NULL,
        quantity NUMERIC(19,4) NOT NULL,
        price NUMERIC(19,4) NOT NULL,
        side VARCHAR(4) NOT NULL,
        status VARCHAR(20) NOT NULL,
        created_at TIMESTAMP WITH TIME ZONE NOT NULL,
        updated_at TIMESTAMP WITH TIME ZONE NOT NULL
    )`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status, created_at)`,
		`CREATE TABLE IF NOT EXISTS outbox (
        id UUID PRIMARY KEY,
        aggregate_type TEXT NOT NULL,
        aggregate_id TEXT NOT NULL,
        event_type TEXT NOT NULL,
        topic TEXT NOT NULL,
        payload JSONB NOT NULL,
        created_at TIMESTAMP WITH TIME ZONE NOT NULL,
        processed BOOLEAN NOT NULL DEFAULT FALSE,
        seq BIGSERIAL
    )`,
		// seq da el orden de inserción; created_at puede empatar dentro del mismo microsegundo.
		`ALTER TABLE outbox ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (aggregate_type, aggregate_id, seq) WHERE processed = false`,
		`CREATE TABLE IF NOT EXISTS event_log (
        id BIGSERIAL PRIMARY KEY,
        order_id BIGINT NOT NULL,
        event_type VARCHAR(50) NOT NULL,
        event_data TEXT NOT NULL,
        created_at TIMESTAMP WITH TIME ZONE NOT NULL,
        UNIQUE (order_id, event_type)
    )`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init postgres schema: %w", err)
		}
	}
	return nil
}
