package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// EventRepoClickHouse guarda el historial de eventos en ClickHouse.
// ClickHouse no tiene claves únicas: el ID se deriva de (order_id, event_type) y la
// tabla es ReplacingMergeTree, así que una reentrega escribe la misma fila.
type EventRepoClickHouse struct {
	db *sql.DB
}

// NewEventRepoClickHouse abre la conexión y comprueba que responde.
func NewEventRepoClickHouse(addr string, dbName string) (*EventRepoClickHouse, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}

	return &EventRepoClickHouse{db: conn}, nil
}

// EntryID es el ID estable de una entrada.
func EntryID(orderID int64, eventType string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strconv.FormatInt(orderID, 10) + ":" + eventType))
	return int64(h.Sum64() >> 1) // siempre positivo
}

func (r *EventRepoClickHouse) Save(ctx context.Context, e eventlogDomain.EventLogEntry) (int64, error) {
	id := EntryID(e.OrderID, e.EventType)

	var existing uint64
	if err := r.db.QueryRowContext(ctx,
		`SELECT count() FROM event_log FINAL WHERE order_id = ? AND event_type = ?`, e.OrderID, e.EventType,
	).Scan(&existing); err != nil {
		return 0, fmt.Errorf("failed to check event log: %w", err)
	}
	if existing > 0 {
		return id, nil
	}

	// ClickHouse funciona mejor con inserciones en lotes; aquí el lote es de uno.
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO event_log (id, order_id, event_type, event_data, created_at, ingested_at)")
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, id, e.OrderID, e.EventType, e.EventData, e.CreatedAt.UTC(), time.Now().UTC()); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to exec statement for order %d: %w", e.OrderID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *EventRepoClickHouse) ListByOrder(ctx context.Context, orderID int64) ([]eventlogDomain.EventLogEntry, error) {
	return r.query(ctx,
		`SELECT id, order_id, event_type, event_data, created_at FROM event_log FINAL
		 WHERE order_id = ? ORDER BY created_at DESC`, orderID)
}

func (r *EventRepoClickHouse) ListByType(ctx context.Context, eventType string, pagination sharedQuery.OffsetPagination) ([]eventlogDomain.EventLogEntry, error) {
	p := pagination.Normalize()
	return r.query(ctx,
		`SELECT id, order_id, event_type, event_data, created_at FROM event_log FINAL
		 WHERE event_type = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, eventType, p.Limit, p.Offset)
}

// CountByType cuenta los eventos de cada tipo emitidos en el rango.
func (r *EventRepoClickHouse) CountByType(ctx context.Context, start, end time.Time) ([]eventlogDomain.EventTypeCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_type, count() AS total
		FROM event_log FINAL
		WHERE created_at BETWEEN ? AND ?
		GROUP BY event_type
		ORDER BY event_type
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []eventlogDomain.EventTypeCount
	for rows.Next() {
		var c eventlogDomain.EventTypeCount
		var total uint64
		if err := rows.Scan(&c.EventType, &total); err != nil {
			return nil, err
		}
		c.Count = int64(total)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *EventRepoClickHouse) query(ctx context.Context, query string, args ...interface{}) ([]eventlogDomain.EventLogEntry, error) {
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

// InitSchema crea la tabla en ClickHouse si no existe.
// Se particiona por mes y se ordena por la clave de deduplicación.
func (r *EventRepoClickHouse) InitSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS event_log (
			id          Int64,
			order_id    Int64,
			event_type  LowCardinality(String),
			event_data  String,
			created_at  DateTime64(3, 'UTC'),
			ingested_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(ingested_at)
		PARTITION BY toYYYYMM(created_at)
		ORDER BY (order_id, event_type);
	`
	_, err := r.db.Exec(query)
	return err
}

func (r *EventRepoClickHouse) Close() error {
	return r.db.Close()
}

// Verificación estática de la interfaz.
var (
	_ eventlogDomain.EventLogRepository = (*EventRepoClickHouse)(nil)
	_ eventlogDomain.EventAnalytics     = (*EventRepoClickHouse)(nil)
)
