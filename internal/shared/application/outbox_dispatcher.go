package application

import (
	"context"
	"fmt"

	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedUtils "github.com/davicafu/ordersim/internal/shared/infra/utils"
	"go.uber.org/zap"
)

// OutboxDispatcher es el único camino hacia el broker para las filas de outbox.
// La publicación directa y el relayer pasan por Flush, así que dentro del proceso
// los eventos de un mismo agregado salen en el orden en que se guardaron.
type OutboxDispatcher struct {
	outbox    sharedDomain.OutboxRepository
	publisher sharedEvents.Publisher
	codec     sharedEvents.Codec
	locks     *sharedUtils.KeyedMutex
	log       *zap.Logger
}

func NewOutboxDispatcher(
	outbox sharedDomain.OutboxRepository,
	publisher sharedEvents.Publisher,
	codec sharedEvents.Codec,
	log *zap.Logger,
) *OutboxDispatcher {
	return &OutboxDispatcher{
		outbox:    outbox,
		publisher: publisher,
		codec:     codec,
		locks:     sharedUtils.NewKeyedMutex(),
		log:       log,
	}
}

// Flush publica las filas pendientes del agregado y devuelve cuántas salieron.
// Se detiene en la primera que no puede publicar: las siguientes esperan a que esa salga.
func (d *OutboxDispatcher) Flush(ctx context.Context, aggregateType, aggregateID string) (int, error) {
	unlock := d.locks.Lock(aggregateType + ":" + aggregateID)
	defer unlock()

	rows, err := d.outbox.FetchPendingByAggregate(ctx, aggregateType, aggregateID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending outbox for %s %s: %w", aggregateType, aggregateID, err)
	}

	published := 0
	for _, row := range rows {
		// 1. El payload es el envelope tal cual se habría publicado
		evt, err := d.codec.Decode(row.Payload)
		if err != nil {
			// Una fila corrupta bloquea su agregado hasta que alguien la corrija.
			d.log.Error("Failed to decode outbox payload",
				zap.String("event_id", row.ID.String()),
				zap.String("aggregate_id", row.AggregateID),
				zap.String("event_type", row.EventType),
				zap.Error(err),
			)
			return published, err
		}

		// 2. Publicar
		if err := d.publisher.Publish(ctx, evt); err != nil {
			d.log.Warn("⚠️ Could not publish outbox event",
				zap.String("event_id", row.ID.String()),
				zap.String("aggregate_id", row.AggregateID),
				zap.Error(err),
			)
			return published, err
		}
		published++

		// 3. Marcar. Si falla, la fila se reenviará y el historial descarta el duplicado.
		if err := d.outbox.MarkOutboxProcessed(ctx, row.ID); err != nil {
			d.log.Warn("⚠️ Could not mark outbox event as processed",
				zap.String("event_id", row.ID.String()),
				zap.Error(err),
			)
			continue
		}
		d.log.Info("✅ Outbox event published",
			zap.String("event_id", row.ID.String()),
			zap.Int64("order_id", evt.OrderID),
			zap.String("event_type", string(evt.EventType)),
		)
	}
	return published, nil
}
