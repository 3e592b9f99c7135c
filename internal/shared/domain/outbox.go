package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent representa un evento pendiente de publicar en el broker.
// Se guarda en la misma transacción que el cambio de estado que lo origina.
type OutboxEvent struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregate_type"` // ej. "order"
	AggregateID   string          `json:"aggregate_id"`   // también es la partition key
	EventType     string          `json:"event_type"`     // ej. "ORDER_CREATED"
	Topic         string          `json:"topic"`
	Payload       json.RawMessage `json:"payload"` // envelope ya codificado
	CreatedAt     time.Time       `json:"created_at"`
	Processed     bool            `json:"processed"` // si ya se publicó
}

// OutboxRepository define el contrato para acceder a la tabla outbox.
// Es una interfaz más pequeña que la de un repositorio de dominio completo,
// conteniendo solo los métodos que el worker necesita.
type OutboxRepository interface {
	FetchPendingOutbox(ctx context.Context, limit int) ([]OutboxEvent, error)
	// FetchPendingByAggregate devuelve las filas pendientes de un agregado en orden de inserción.
	FetchPendingByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error
}
