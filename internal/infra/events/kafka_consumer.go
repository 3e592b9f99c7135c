package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
)

// NewKafkaReader crea un reader de grupo sin auto-commit: el offset solo avanza con Ack.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,    // commits síncronos
		StartOffset:    kafka.FirstOffset,
	})
}

// ConsumerAdapter es el "oído" que escucha en Kafka.
// Cada adapter procesa sus particiones de forma estrictamente secuencial.
type ConsumerAdapter struct {
	reader  *kafka.Reader
	handler sharedBus.MessageHandler
	policy  RedeliveryPolicy
	log     *zap.Logger
	done    chan struct{}
}

func NewConsumerAdapter(reader *kafka.Reader, handler sharedBus.MessageHandler, policy RedeliveryPolicy, log *zap.Logger) *ConsumerAdapter {
	return &ConsumerAdapter{
		reader:  reader,
		handler: handler,
		policy:  policy,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start inicia el bucle de consumo de mensajes en una goroutine.
func (c *ConsumerAdapter) Start(ctx context.Context) {
	cfg := c.reader.Config()
	c.log.Info("🎧 Starting Kafka consumer",
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID),
		zap.Strings("brokers", cfg.Brokers),
	)

	go func() {
		defer close(c.done)
		for {
			// FetchMessage no confirma: el commit lo hace el handler a través de Ack.
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.log.Info("Kafka consumer stopped", zap.String("topic", cfg.Topic))
					return
				}
				c.log.Error("Error reading message from Kafka", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			delivery := sharedBus.NewDelivery(
				msg.Topic, string(msg.Key), msg.Value, fromKafkaHeaders(msg.Headers),
				msg.Partition, msg.Offset,
				func(ackCtx context.Context) error {
					return c.reader.CommitMessages(ackCtx, msg)
				},
			)

			if err := c.policy.Deliver(ctx, c.handler, delivery, c.log); err != nil && ctx.Err() != nil {
				c.log.Info("Kafka consumer stopped during redelivery", zap.String("topic", cfg.Topic))
				return
			}
		}
	}()
}

// Done se cierra cuando termina el bucle de consumo.
func (c *ConsumerAdapter) Done() <-chan struct{} {
	return c.done
}

func (c *ConsumerAdapter) Close() error {
	return c.reader.Close()
}
