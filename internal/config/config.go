package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort string

	// Persistencia
	SQLitePath      string
	DatabaseURL     string
	LocalDeployment bool
	RedisAddr       string
	CacheTTL        time.Duration

	// Transporte
	UseKafka         bool
	KafkaBrokers     []string
	OrderEventsTopic string
	DLQTopic         string
	ConsumerGroup    string
	DLQConsumerGroup string
	ConsumerWorkers  int
	BusPartitions    int

	// Reintentos y DLQ
	MaxRetries           int
	RedeliveryBackoff    time.Duration
	RedeliveryMaxBackoff time.Duration
	DLQOnDecodeError     bool
	DLQFilePath          string

	// Simulación
	SimulationLimit           int
	SimulationSuccessRate     float64
	SimulationSeed            uint64
	SimulationIsolateFailures bool

	// Outbox
	OutboxPeriod time.Duration
	OutboxLimit  int

	// Backends opcionales
	ClickHouseAddr string
	ClickHouseDB   string
	MongoURI       string
	MongoDB        string
}

// UsePostgres indica si hay que usar Postgres en lugar del SQLite local.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != "" && !c.LocalDeployment
}

func LoadConfig() *Config {
	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		SQLitePath:      getEnv("SQLITE_PATH", "./ordersim.db"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		LocalDeployment: getEnvBool("LOCAL_DEPLOYMENT", true),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		CacheTTL:        getEnvDuration("CACHE_TTL", 5*time.Minute),

		UseKafka:         getEnvBool("USE_KAFKA", false),
		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order-events"),
		DLQTopic:         getEnv("ORDER_EVENTS_DLQ_TOPIC", "order-events-dlq"),
		ConsumerGroup:    getEnv("CONSUMER_GROUP", "etl-service"),
		DLQConsumerGroup: getEnv("DLQ_CONSUMER_GROUP", "dlq-monitoring-group"),
		ConsumerWorkers:  getEnvInt("CONSUMER_WORKERS", 3),
		BusPartitions:    getEnvInt("BUS_PARTITIONS", 3),

		MaxRetries:           getEnvInt("MAX_RETRIES", 3),
		RedeliveryBackoff:    getEnvDuration("REDELIVERY_BACKOFF", 500*time.Millisecond),
		RedeliveryMaxBackoff: getEnvDuration("REDELIVERY_MAX_BACKOFF", 5*time.Second),
		DLQOnDecodeError:     getEnvBool("DLQ_ON_DECODE_ERROR", true),
		DLQFilePath:          getEnv("DLQ_FILE_PATH", "./dead_letters.json"),

		SimulationLimit:           getEnvInt("SIMULATION_LIMIT", 5),
		SimulationSuccessRate:     getEnvFloat("SIMULATION_SUCCESS_RATE", 0.8),
		SimulationSeed:            uint64(getEnvInt("SIMULATION_SEED", 0)),
		SimulationIsolateFailures: getEnvBool("SIMULATION_ISOLATE_FAILURES", false),

		OutboxPeriod: getEnvDuration("OUTBOX_PERIOD", 5*time.Second),
		OutboxLimit:  getEnvInt("OUTBOX_LIMIT", 50),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "default"),
		MongoURI:       getEnv("MONGO_URI", ""),
		MongoDB:        getEnv("MONGO_DB", "ordersim"),
	}
}

// --- Helpers de entorno; un valor mal formado usa el valor por defecto ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return fallback
}

// getEnvDuration acepta "500ms", "5s"... o un número de segundos.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
