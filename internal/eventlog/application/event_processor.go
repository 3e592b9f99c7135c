package application

import (
	"context"
	"fmt"

	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	"go.uber.org/zap"
)

// EventProcessor registra cada evento recibido en el historial.
type EventProcessor struct {
	repo eventlogDomain.EventLogRepository
	log  *zap.Logger
}

func NewEventProcessor(repo eventlogDomain.EventLogRepository, log *zap.Logger) *EventProcessor {
	return &EventProcessor{repo: repo, log: log}
}

// Process devuelve el resultado en lugar de un error: el consumidor decide
// con él si confirma, reintenta o manda a la DLQ.
func (p *EventProcessor) Process(ctx context.Context, evt sharedEvents.DomainEvent, attempt int) sharedDomain.Outcome {
	p.log.Info("Processing order event",
		zap.Int64("order_id", evt.OrderID),
		zap.String("event_type", string(evt.EventType)),
		zap.Int("retry_count", attempt),
	)

	entry := eventlogDomain.NewEventLogEntry(evt)
	id, err := p.repo.Save(ctx, entry)
	if err != nil {
		perr := sharedDomain.NewProcessingError(
			fmt.Sprintf("failed to store %s event for order %d", evt.EventType, evt.OrderID), err)
		return sharedDomain.Retryable(perr)
	}

	p.log.Info("Event processed successfully",
		zap.Int64("event_id", id),
		zap.Int64("order_id", evt.OrderID),
		zap.String("event_type", string(evt.EventType)),
		zap.Int("retry_count", attempt),
	)
	return sharedDomain.OK()
}
