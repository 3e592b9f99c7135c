package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
)

const eventColumns = `id, order_id, event_type, event_data, created_at`

// EventRepoSQLite guarda el historial de eventos en SQLite.
type EventRepoSQLite struct {
	db *sql.DB
}

func NewEventRepoSQLite(db *sql.DB) *EventRepoSQLite {
	return &EventRepoSQLite{db: db}
}

// Save inserta la entrada en una transacción; un duplicado de (order_id, event_type)
// no inserta nada y devuelve el ID existente.
func (r *EventRepoSQLite) Save(ctx context.Context, e eventlogDomain.EventLogEntry) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_log (order_id, event_type, event_data, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (order_id, event_type) DO NOTHING`,
		e.OrderID, e.EventType, e.EventData, e.CreatedAt.UTC(),
	); err != nil {
		return 0, fmt.Errorf("failed to insert event log: %w", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM event_log WHERE order_id = ? AND event_type = ?`, e.OrderID, e.EventType,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read event log id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit event log: %w", err)
	}
	return id, nil
}

func (r *EventRepoSQLite) ListByOrder(ctx context.Context, orderID int64) ([]eventlogDomain.EventLogEntry, error) {
	return r.query(ctx,
		`SELECT `+eventColumns+` FROM event_log WHERE order_id = ? ORDER BY created_at DESC, id DESC`, orderID)
}

func (r *EventRepoSQLite) ListByType(ctx context.Context, eventType string, pagination sharedQuery.OffsetPagination) ([]eventlogDomain.EventLogEntry, error) {
	p := pagination.Normalize()
	return r.query(ctx,
		`SELECT `+eventColumns+` FROM event_log WHERE event_type = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		eventType, p.Limit, p.Offset)
}

func (r *EventRepoSQLite) query(ctx context.Context, query string, args ...interface{}) ([]eventlogDomain.EventLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []eventlogDomain.EventLogEntry
	for rows.Next() {
		var e eventlogDomain.EventLogEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.EventType, &e.EventData, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ eventlogDomain.EventLogRepository = (*EventRepoSQLite)(nil)
