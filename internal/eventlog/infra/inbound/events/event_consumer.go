package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	eventlogApp "github.com/davicafu/ordersim/internal/eventlog/application"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
)

// DecodeFailurePolicy decide qué hacer con un mensaje que no se puede decodificar.
type DecodeFailurePolicy int

const (
	// DecodeFailureRetry trata el error como cualquier otro fallo y consume un intento.
	DecodeFailureRetry DecodeFailurePolicy = iota
	// DecodeFailureDeadLetter lo manda directamente a la DLQ sin reintentos.
	DecodeFailureDeadLetter
)

// Processor es lo que el consumidor necesita de la capa de aplicación.
type Processor interface {
	Process(ctx context.Context, evt sharedEvents.DomainEvent, attempt int) sharedDomain.Outcome
}

// DeadLetterSender envía un registro a la DLQ.
type DeadLetterSender interface {
	Send(ctx context.Context, rec sharedEvents.DeadLetterRecord) error
}

// EventConsumer decide, para cada entrega, entre confirmar, pedir reentrega o escalar a la DLQ.
type EventConsumer struct {
	codec        sharedEvents.Codec
	processor    Processor
	sink         DeadLetterSender
	policy       sharedDomain.RetryPolicy
	decodePolicy DecodeFailurePolicy
	log          *zap.Logger
	now          func() time.Time
}

func NewEventConsumer(
	codec sharedEvents.Codec,
	processor Processor,
	sink DeadLetterSender,
	policy sharedDomain.RetryPolicy,
	decodePolicy DecodeFailurePolicy,
	log *zap.Logger,
) *EventConsumer {
	return &EventConsumer{
		codec:        codec,
		processor:    processor,
		sink:         sink,
		policy:       policy,
		decodePolicy: decodePolicy,
		log:          log,
		now:          time.Now,
	}
}

// HandleMessage devuelve error solo cuando el mensaje debe reentregarse.
// Los errores de procesamiento nunca salen de aquí de otra forma.
func (c *EventConsumer) HandleMessage(ctx context.Context, d *sharedBus.Delivery) error {
	fields := []zap.Field{
		zap.String("topic", d.Topic),
		zap.String("key", d.Key),
		zap.Int("partition", d.Partition),
		zap.Int64("offset", d.Offset),
		zap.Int("retry_count", d.Attempt),
	}

	outcome := c.process(ctx, d, fields)

	switch {
	case outcome.Succeeded():
		c.ack(ctx, d, fields)
		return nil

	case outcome.Kind == sharedDomain.OutcomeRetryable && c.policy.Decide(d.Attempt) == sharedDomain.Proceed:
		c.log.Warn("Will retry processing", append(fields, zap.Error(outcome.Err))...)
		return outcome.Err

	default:
		c.deadLetter(ctx, d, outcome.Err, fields)
		return nil
	}
}

func (c *EventConsumer) process(ctx context.Context, d *sharedBus.Delivery, fields []zap.Field) sharedDomain.Outcome {
	evt, err := c.codec.Decode(d.Value)
	if err != nil {
		c.log.Error("Failed to decode order event", append(fields, zap.Error(err))...)
		if c.decodePolicy == DecodeFailureDeadLetter {
			return sharedDomain.Permanent(err)
		}
		return sharedDomain.Retryable(err)
	}

	outcome := c.processor.Process(ctx, evt, d.Attempt)
	if !outcome.Succeeded() {
		c.log.Error("Failed to process order event", append(fields,
			zap.Int64("order_id", evt.OrderID),
			zap.String("event_type", string(evt.EventType)),
			zap.String("outcome", outcome.Kind.String()),
			zap.Error(outcome.Err),
		)...)
	}
	return outcome
}

// deadLetter envía el mensaje a la DLQ y lo confirma aunque el envío falle:
// un fallo de la DLQ no debe reabrir la reentrega del original.
func (c *EventConsumer) deadLetter(ctx context.Context, d *sharedBus.Delivery, cause error, fields []zap.Field) {
	c.log.Error("Max retry count exceeded, sending to DLQ", append(fields, zap.Error(cause))...)

	rec := eventlogApp.NewDeadLetterRecord(d.Topic, d.Key, d.Value, cause, d.Attempt, c.now())
	rec.Partition = d.Partition
	rec.Offset = d.Offset
	if err := c.sink.Send(ctx, rec); err != nil {
		c.log.Error("Dead letter send failed, acknowledging anyway", append(fields, zap.Error(err))...)
	}

	c.ack(ctx, d, fields)
}

func (c *EventConsumer) ack(ctx context.Context, d *sharedBus.Delivery, fields []zap.Field) {
	if err := d.Ack(ctx); err != nil {
		c.log.Error("Failed to acknowledge message", append(fields, zap.Error(err))...)
	}
}

var _ sharedBus.MessageHandler = (*EventConsumer)(nil)
