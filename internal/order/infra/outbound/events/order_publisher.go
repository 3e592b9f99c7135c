package events

import (
	"context"
	"fmt"

	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
	"go.uber.org/zap"
)

// OrderPublisher convierte eventos de orden en mensajes del transporte.
// La key es el ID de la orden, así todos sus eventos comparten partición.
type OrderPublisher struct {
	bus   sharedBus.EventBus
	codec sharedEvents.Codec
	topic string
	log   *zap.Logger
}

func NewOrderPublisher(bus sharedBus.EventBus, codec sharedEvents.Codec, topic string, log *zap.Logger) *OrderPublisher {
	if topic == "" {
		topic = sharedEvents.OrderEventsTopic
	}
	return &OrderPublisher{bus: bus, codec: codec, topic: topic, log: log}
}

func (p *OrderPublisher) Publish(ctx context.Context, evt sharedEvents.DomainEvent) error {
	value, err := p.codec.Encode(evt)
	if err != nil {
		return err
	}

	msg := sharedBus.Message{
		Topic: p.topic,
		Key:   evt.PartitionKey(),
		Value: value,
	}
	if err := p.bus.Publish(ctx, msg); err != nil {
		return sharedDomain.NewPublishError(
			fmt.Sprintf("failed to publish %s for order %d to %s", evt.EventType, evt.OrderID, p.topic), err)
	}

	p.log.Info("Event published",
		zap.String("topic", p.topic),
		zap.Int64("order_id", evt.OrderID),
		zap.String("event_type", string(evt.EventType)),
	)
	return nil
}

var _ sharedEvents.Publisher = (*OrderPublisher)(nil)
