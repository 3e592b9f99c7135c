package events

import (
	"context"

	"go.uber.org/zap"

	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
	sharedUtils "github.com/davicafu/ordersim/internal/shared/infra/utils"
)

// DLQConsumer observa el canal de dead-letter. Siempre confirma, falle lo que falle,
// para que la DLQ nunca se convierta en otra fuente de reentregas.
type DLQConsumer struct {
	store eventlogDomain.DeadLetterStore
	log   *zap.Logger
}

func NewDLQConsumer(store eventlogDomain.DeadLetterStore, log *zap.Logger) *DLQConsumer {
	return &DLQConsumer{store: store, log: log}
}

func (c *DLQConsumer) HandleMessage(ctx context.Context, d *sharedBus.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Panic while processing DLQ message", zap.String("key", d.Key), zap.Any("panic", r))
		}
		if ackErr := d.Ack(ctx); ackErr != nil {
			c.log.Error("Failed to acknowledge DLQ message", zap.String("key", d.Key), zap.Error(ackErr))
		}
		err = nil
	}()

	c.log.Error("DLQ message received",
		zap.String("topic", d.Topic),
		zap.String("key", d.Key),
		zap.Int("partition", d.Partition),
		zap.Int64("offset", d.Offset),
	)

	if err := sharedUtils.UnmarshalAndHandle(c.log, d.Value, func(rec sharedEvents.DeadLetterRecord) error {
		c.log.Error("Dead letter details",
			zap.String("original_topic", rec.OriginalTopic),
			zap.String("original_key", rec.OriginalKey),
			zap.Int("retry_count", rec.RetryCount),
			zap.Time("failed_at", rec.FailedAt),
			zap.String("error_message", rec.ErrorMessage),
			zap.String("original_message", rec.OriginalMessage),
		)
		return c.store.Record(ctx, rec)
	}); err != nil {
		c.log.Error("Failed to process DLQ message", zap.String("key", d.Key), zap.Error(err))
	}
	return nil
}

var _ sharedBus.MessageHandler = (*DLQConsumer)(nil)
