package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// Canales lógicos del pipeline.
const (
	OrderEventsTopic    = "order-events"
	OrderEventsDLQTopic = "order-events-dlq"
)

type EventType string

const (
	OrderCreated   EventType = "ORDER_CREATED"
	OrderCancelled EventType = "ORDER_CANCELLED"
	OrderExecuted  EventType = "ORDER_EXECUTED"
	OrderFailed    EventType = "ORDER_FAILED"
)

// EventTypes lista todos los tipos conocidos.
var EventTypes = []EventType{OrderCreated, OrderCancelled, OrderExecuted, OrderFailed}

func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DomainEvent es un hecho inmutable: una transición de estado de una orden.
// Payload es la foto completa de la orden en el momento de emitirse.
type DomainEvent struct {
	OrderID   int64           `json:"orderId"`
	Symbol    string          `json:"symbol"`
	EventType EventType       `json:"eventType"`
	Payload   json.RawMessage `json:"eventData"`
	EmittedAt time.Time       `json:"timestamp"`
}

// PartitionKey garantiza que todos los eventos de una orden caigan en la misma partición.
func (e DomainEvent) PartitionKey() string {
	return strconv.FormatInt(e.OrderID, 10)
}

// Publisher emite eventos de dominio hacia el transporte.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent) error
}
