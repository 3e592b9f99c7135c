package events

import (
	"encoding/json"
	"fmt"

	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
)

// Codec serializa el envelope para el transporte.
type Codec interface {
	Encode(evt DomainEvent) ([]byte, error)
	Decode(data []byte) (DomainEvent, error)
}

// JSONCodec es el codec por defecto.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) Encode(evt DomainEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, sharedDomain.NewSerializationError(
			fmt.Sprintf("failed to encode %s event for order %d", evt.EventType, evt.OrderID), err)
	}
	return data, nil
}

// Decode rechaza además envelopes sin orden o con un tipo desconocido:
// ningún reintento los va a convertir en válidos.
func (JSONCodec) Decode(data []byte) (DomainEvent, error) {
	var evt DomainEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return DomainEvent{}, sharedDomain.NewSerializationError("failed to decode order event", err)
	}
	if evt.OrderID == 0 {
		return DomainEvent{}, sharedDomain.NewSerializationError("order event without orderId", nil)
	}
	if !evt.EventType.Valid() {
		return DomainEvent{}, sharedDomain.NewSerializationError(
			fmt.Sprintf("unknown event type %q", evt.EventType), nil)
	}
	return evt, nil
}
