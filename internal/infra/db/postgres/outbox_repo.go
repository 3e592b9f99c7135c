package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	"github.com/google/uuid"
)

// OutboxRepoPostgres implementa la interfaz sharedDomain.OutboxRepository.
type OutboxRepoPostgres struct {
	db *sql.DB
}

func NewOutboxRepoPostgres(db *sql.DB) *OutboxRepoPostgres {
	return &OutboxRepoPostgres{db: db}
}

// InsertOutboxTx guarda el evento dentro de la transacción del cambio que lo origina.
func InsertOutboxTx(ctx context.Context, tx *sql.Tx, evt sharedDomain.OutboxEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, topic, payload, created_at, processed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false)`,
		evt.ID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Topic, []byte(evt.Payload), evt.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// FetchPendingOutbox obtiene los eventos no procesados de la tabla outbox para Postgres.
func (r *OutboxRepoPostgres) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, topic, payload, created_at
		 FROM outbox WHERE processed=false ORDER BY created_at, seq LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanOutbox(rows)
}

// FetchPendingByAggregate ordena por seq, que sigue el orden de inserción.
func (r *OutboxRepoPostgres) FetchPendingByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]sharedDomain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, topic, payload, created_at
		 FROM outbox
		 WHERE processed=false AND aggregate_type=$1 AND aggregate_id=$2
		 ORDER BY seq`, aggregateType, aggregateID,
	)
	if err != nil {
		return nil, err
	}
	return scanOutbox(rows)
}

func scanOutbox(rows *sql.Rows) ([]sharedDomain.OutboxEvent, error) {
	defer rows.Close()

	var events []sharedDomain.OutboxEvent
	for rows.Next() {
		var evt sharedDomain.OutboxEvent
		var payloadBytes []byte // El payload se lee como JSONB

		if err := rows.Scan(&evt.ID, &evt.AggregateType, &evt.AggregateID, &evt.EventType, &evt.Topic, &payloadBytes, &evt.CreatedAt); err != nil {
			return nil, err
		}
		evt.Payload = payloadBytes

		events = append(events, evt)
	}

	return events, rows.Err()
}

// MarkOutboxProcessed marca un evento como procesado para Postgres.
func (r *OutboxRepoPostgres) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox SET processed=true WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoPostgres)(nil)
