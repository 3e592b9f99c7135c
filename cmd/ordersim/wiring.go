package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/davicafu/ordersim/internal/config"
	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	eventClickHouse "github.com/davicafu/ordersim/internal/eventlog/infra/outbound/analytics/clickhouse"
	eventPostgres "github.com/davicafu/ordersim/internal/eventlog/infra/outbound/db/postgre"
	eventSQLite "github.com/davicafu/ordersim/internal/eventlog/infra/outbound/db/sqlite"
	dlqFilesystem "github.com/davicafu/ordersim/internal/eventlog/infra/outbound/dlq/filesystem"
	dlqMongo "github.com/davicafu/ordersim/internal/eventlog/infra/outbound/dlq/mongodb"
	"github.com/davicafu/ordersim/internal/infra/db/postgres"
	"github.com/davicafu/ordersim/internal/infra/db/sqlite"
	infraEvents "github.com/davicafu/ordersim/internal/infra/events"
	orderDomain "github.com/davicafu/ordersim/internal/order/domain"
	orderPostgres "github.com/davicafu/ordersim/internal/order/infra/outbound/db/postgre"
	orderSQLite "github.com/davicafu/ordersim/internal/order/infra/outbound/db/sqlite"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
	sharedCache "github.com/davicafu/ordersim/internal/shared/infra/platform/cache"

	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// storage agrupa los repositorios que comparten la misma base de datos.
type storage struct {
	db        *sql.DB
	Orders    orderDomain.OrderRepository
	Outbox    sharedDomain.OutboxRepository
	Events    eventlogDomain.EventLogRepository
	Analytics eventlogDomain.EventAnalytics // nil sin ClickHouse
	closers   []func() error
}

func (s *storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// openStorage usa Postgres si hay DATABASE_URL fuera del despliegue local, SQLite si no.
// Con CLICKHOUSE_ADDR el historial de eventos va a ClickHouse.
func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	s := &storage{}

	if cfg.UsePostgres() {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.InitSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		s.db = db
		s.Orders = orderPostgres.NewOrderRepoPostgres(db)
		s.Outbox = postgres.NewOutboxRepoPostgres(db)
		s.Events = eventPostgres.NewEventRepoPostgres(db)
		log.Info("✅ Using Postgres storage")
	} else {
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := sqlite.InitSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		s.db = db
		s.Orders = orderSQLite.NewOrderRepoSQLite(db)
		s.Outbox = sqlite.NewOutboxRepoSQLite(db)
		s.Events = eventSQLite.NewEventRepoSQLite(db)
		log.Info("✅ Using SQLite storage", zap.String("path", cfg.SQLitePath))
	}
	s.closers = append(s.closers, s.db.Close)

	if cfg.ClickHouseAddr != "" {
		ch, err := eventClickHouse.NewEventRepoClickHouse(cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err == nil {
			err = ch.InitSchema()
		}
		if err != nil {
			log.Warn("⚠️ ClickHouse not available, event log stays in the SQL database", zap.Error(err))
		} else {
			s.Events = ch
			s.Analytics = ch
			s.closers = append(s.closers, ch.Close)
			log.Info("✅ Event log stored in ClickHouse", zap.String("addr", cfg.ClickHouseAddr))
		}
	}
	return s, nil
}

// openCache usa Redis si responde y, si no, una caché en memoria.
func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (sharedCache.Cache, func()) {
	if cfg.RedisAddr != "" {
		rdb, err := sharedCache.NewRedisClient(ctx, cfg.RedisAddr)
		if err == nil {
			log.Info("✅ Redis connected, cache enabled")
			return sharedCache.NewRedisCache(rdb, cfg.CacheTTL), func() { _ = rdb.Close() }
		}
		log.Warn("⚠️ Redis not available, using in-memory cache", zap.Error(err))
	}
	mem := sharedCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
	return mem, mem.Stop
}

// openDeadLetterStore usa MongoDB si hay MONGO_URI y, si no, un fichero JSON.
func openDeadLetterStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (eventlogDomain.DeadLetterStore, func()) {
	if cfg.MongoURI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err == nil {
			var store *dlqMongo.DeadLetterStoreMongoDB
			store, err = dlqMongo.NewDeadLetterStoreMongoDB(connectCtx, client, cfg.MongoDB)
			if err == nil {
				if idxErr := store.EnsureIndexes(connectCtx); idxErr != nil {
					log.Warn("⚠️ Could not create DLQ indexes", zap.Error(idxErr))
				}
				log.Info("✅ Dead letters stored in MongoDB", zap.String("db", cfg.MongoDB))
				return store, func() { _ = client.Disconnect(context.Background()) }
			}
			_ = client.Disconnect(context.Background())
		}
		log.Warn("⚠️ MongoDB not available, dead letters stored on disk", zap.Error(err))
	}
	return dlqFilesystem.NewJSONDeadLetterStore(cfg.DLQFilePath), func() {}
}

// transport envuelve Kafka o el bus en memoria con el mismo ciclo de vida.
type transport struct {
	Bus sharedBus.EventBus

	memBus    *infraEvents.InMemoryEventBus
	writer    *kafka.Writer
	consumers []*infraEvents.ConsumerAdapter
	policy    infraEvents.RedeliveryPolicy
	log       *zap.Logger
}

func openTransport(cfg *config.Config, log *zap.Logger) *transport {
	policy := infraEvents.RedeliveryPolicy{Backoff: cfg.RedeliveryBackoff, MaxBackoff: cfg.RedeliveryMaxBackoff}
	t := &transport{policy: policy, log: log}

	if cfg.UseKafka {
		log.Info("🚀 Using Kafka as event bus", zap.Strings("brokers", cfg.KafkaBrokers))
		t.writer = infraEvents.NewKafkaWriter(cfg.KafkaBrokers)
		t.Bus = infraEvents.NewKafkaPublisher(t.writer, log)
		return t
	}

	log.Info("⚡️ Using in-memory event bus", zap.Int("partitions", cfg.BusPartitions))
	t.memBus = infraEvents.NewInMemoryEventBus(cfg.BusPartitions, 0, policy, log)
	t.Bus = t.memBus
	return t
}

// Subscribe arranca el consumidor de eventos y el de la DLQ.
// En Kafka se lanzan CONSUMER_WORKERS readers del mismo grupo.
func (t *transport) Subscribe(ctx context.Context, cfg *config.Config, events, dlq sharedBus.MessageHandler) error {
	if t.memBus != nil {
		if err := t.memBus.Subscribe(ctx, cfg.OrderEventsTopic, events); err != nil {
			return err
		}
		return t.memBus.Subscribe(ctx, cfg.DLQTopic, dlq)
	}

	workers := cfg.ConsumerWorkers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		reader := infraEvents.NewKafkaReader(cfg.KafkaBrokers, cfg.OrderEventsTopic, cfg.ConsumerGroup)
		t.consumers = append(t.consumers, infraEvents.NewConsumerAdapter(reader, events, t.policy, t.log))
	}
	dlqReader := infraEvents.NewKafkaReader(cfg.KafkaBrokers, cfg.DLQTopic, cfg.DLQConsumerGroup)
	t.consumers = append(t.consumers, infraEvents.NewConsumerAdapter(dlqReader, dlq, t.policy, t.log))

	for _, c := range t.consumers {
		c.Start(ctx)
	}
	return nil
}

// Wait espera a que los consumidores terminen el mensaje en curso.
func (t *transport) Wait(ctx context.Context) {
	for _, c := range t.consumers {
		select {
		case <-c.Done():
		case <-ctx.Done():
			return
		}
	}
}

func (t *transport) Close() {
	for _, c := range t.consumers {
		if err := c.Close(); err != nil {
			t.log.Warn("Failed to close Kafka reader", zap.Error(err))
		}
	}
	if t.writer != nil {
		if err := t.writer.Close(); err != nil {
			t.log.Warn("Failed to close Kafka writer", zap.Error(err))
		}
	}
	if t.memBus != nil {
		t.memBus.Close()
	}
}
