package events

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
)

func TestKafkaHeaders_RoundTrip(t *testing.T) {
	in := map[string]string{sharedBus.RetryCountHeader: "2", "source": "order-service"}

	headers := toKafkaHeaders(in)

	assert.Len(t, headers, 2)
	assert.Equal(t, in, fromKafkaHeaders(headers))
	assert.Equal(t, 2, sharedBus.AttemptFromHeaders(fromKafkaHeaders(headers)))
}

func TestKafkaHeaders_Empty(t *testing.T) {
	assert.Nil(t, toKafkaHeaders(nil))
	assert.Empty(t, fromKafkaHeaders([]kafka.Header{}))
	assert.Equal(t, 0, sharedBus.AttemptFromHeaders(fromKafkaHeaders(nil)))
}

func TestNewKafkaReader_ManualCommit(t *testing.T) {
	r := NewKafkaReader([]string{"localhost:9092"}, "order-events", "etl-service")
	defer r.Close()

	cfg := r.Config()
	assert.Equal(t, "order-events", cfg.Topic)
	assert.Equal(t, "etl-service", cfg.GroupID)
	assert.Zero(t, cfg.CommitInterval)
}
