package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "order-events", cfg.OrderEventsTopic)
	assert.Equal(t, "order-events-dlq", cfg.DLQTopic)
	assert.Equal(t, "etl-service", cfg.ConsumerGroup)
	assert.Equal(t, "dlq-monitoring-group", cfg.DLQConsumerGroup)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5, cfg.SimulationLimit)
	assert.Equal(t, 0.8, cfg.SimulationSuccessRate)
	assert.False(t, cfg.UseKafka)
	assert.False(t, cfg.UsePostgres())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("REDELIVERY_BACKOFF", "250ms")
	t.Setenv("OUTBOX_PERIOD", "2")
	t.Setenv("SIMULATION_SUCCESS_RATE", "0.5")
	t.Setenv("DATABASE_URL", "postgres://localhost/orders")
	t.Setenv("LOCAL_DEPLOYMENT", "false")
	t.Setenv("CONSUMER_WORKERS", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RedeliveryBackoff)
	assert.Equal(t, 2*time.Second, cfg.OutboxPeriod)
	assert.Equal(t, 0.5, cfg.SimulationSuccessRate)
	assert.True(t, cfg.UsePostgres())
	assert.Equal(t, 3, cfg.ConsumerWorkers, "Un valor inválido usa el valor por defecto")
}
