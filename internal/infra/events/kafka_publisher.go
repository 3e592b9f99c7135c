package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/segmentio/kafka-go"

	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
)

// NewKafkaWriter crea un writer genérico: el topic va en cada mensaje.
// El balanceo por hash de la key mantiene todos los eventos de una orden en la misma partición.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaPublisher(writer *kafka.Writer, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg sharedBus.Message) error {
	kmsg := kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: toKafkaHeaders(msg.Headers),
	}

	if err := p.writer.WriteMessages(ctx, kmsg); err != nil {
		p.log.Error("Error publishing to Kafka",
			zap.String("topic", msg.Topic),
			zap.String("key", msg.Key),
			zap.Error(err),
		)
		return err
	}

	p.log.Debug("Message published to Kafka", zap.String("topic", msg.Topic), zap.String("key", msg.Key))
	return nil
}

func toKafkaHeaders(headers map[string]string) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func fromKafkaHeaders(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

// Verificación estática
var _ sharedBus.EventBus = (*KafkaPublisher)(nil)
