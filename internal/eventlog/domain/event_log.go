package domain

import (
	"context"
	"time"

	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
)

// EventLogEntry es una fila del historial: un evento procesado con éxito.
// Es append-only y única por (OrderID, EventType).
type EventLogEntry struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"orderId"`
	EventType string    `json:"eventType"`
	EventData string    `json:"eventData"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewEventLogEntry guarda la foto de la orden como eventData; createdAt es el momento de emisión.
func NewEventLogEntry(evt sharedEvents.DomainEvent) EventLogEntry {
	return EventLogEntry{
		OrderID:   evt.OrderID,
		EventType: string(evt.EventType),
		EventData: string(evt.Payload),
		CreatedAt: evt.EmittedAt.UTC(),
	}
}

type EventLogRepository interface {
	// Save es idempotente: si ya existe la entrada para (orderId, eventType) devuelve su ID.
	Save(ctx context.Context, entry EventLogEntry) (int64, error)
	// ListByOrder devuelve el historial de una orden, el más reciente primero.
	ListByOrder(ctx context.Context, orderID int64) ([]EventLogEntry, error)
	ListByType(ctx context.Context, eventType string, pagination sharedQuery.OffsetPagination) ([]EventLogEntry, error)
}

// EventTypeCount es una fila de las estadísticas por tipo de evento.
type EventTypeCount struct {
	EventType string `json:"eventType"`
	Count     int64  `json:"count"`
}

// EventAnalytics agrega el historial; solo lo implementan los backends analíticos.
type EventAnalytics interface {
	CountByType(ctx context.Context, start, end time.Time) ([]EventTypeCount, error)
}
