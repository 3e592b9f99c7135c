package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/davicafu/ordersim/internal/shared/domain"
	"github.com/google/uuid"
)

// OutboxRepoSQLite implementa la interfaz shared.OutboxRepository.
type OutboxRepoSQLite struct {
	db *sql.DB
}

func NewOutboxRepoSQLite(db *sql.DB) *OutboxRepoSQLite {
	return &OutboxRepoSQLite{db: db}
}

// InsertOutboxTx guarda el evento dentro de la transacción del cambio que lo origina.
func InsertOutboxTx(ctx context.Context, tx *sql.Tx, evt domain.OutboxEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, topic, payload, created_at, processed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		evt.ID.String(), evt.AggregateType, evt.AggregateID, evt.EventType, evt.Topic, string(evt.Payload), evt.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// FetchPendingOutbox obtiene los eventos no procesados en orden de creación.
func (r *OutboxRepoSQLite) FetchPendingOutbox(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, topic, payload, created_at
         FROM outbox
         WHERE processed = 0
         ORDER BY created_at, rowid
         LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanOutbox(rows)
}

// FetchPendingByAggregate ordena por rowid, que sigue el orden de inserción.
func (r *OutboxRepoSQLite) FetchPendingByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, topic, payload, created_at
         FROM outbox
         WHERE processed = 0 AND aggregate_type = ? AND aggregate_id = ?
         ORDER BY rowid`, aggregateType, aggregateID,
	)
	if err != nil {
		return nil, err
	}
	return scanOutbox(rows)
}

func scanOutbox(rows *sql.Rows) ([]domain.OutboxEvent, error) {
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var evt domain.OutboxEvent
		var idStr, payloadStr string // en SQLite ambos son TEXT

		if err := rows.Scan(&idStr, &evt.AggregateType, &evt.AggregateID, &evt.EventType, &evt.Topic, &payloadStr, &evt.CreatedAt); err != nil {
			return nil, err
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in outbox row: %w", err)
		}
		evt.ID = id
		if !json.Valid([]byte(payloadStr)) {
			return nil, fmt.Errorf("invalid JSON payload in outbox row %s", evt.ID)
		}
		evt.Payload = json.RawMessage(payloadStr)

		events = append(events, evt)
	}

	return events, rows.Err()
}

// MarkOutboxProcessed marca un evento como procesado para SQLite.
func (r *OutboxRepoSQLite) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox SET processed = 1 WHERE id = ?`, id.String())
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
var _ domain.OutboxRepository = (*OutboxRepoSQLite)(nil)
