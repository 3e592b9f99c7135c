package integration

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	eventPostgres "github.com/davicafu/ordersim/internal/eventlog/infra/outbound/db/postgre"
	"github.com/davicafu/ordersim/internal/infra/db/postgres"
	orderApp "github.com/davicafu/ordersim/internal/order/application"
	orderDomain "github.com/davicafu/ordersim/internal/order/domain"
	orderPostgres "github.com/davicafu/ordersim/internal/order/infra/outbound/db/postgre"
	sharedApp "github.com/davicafu/ordersim/internal/shared/application"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	"github.com/davicafu/ordersim/tests/mocks"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupPostgresTestDB se conecta a Postgres, crea el esquema y limpia las tablas.
func setupPostgresTestDB(t *testing.T) *sql.DB {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		t.Skip("DATABASE_URL no está configurada, saltando test de integración con Postgres")
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, connStr)
	require.NoError(t, err)
	require.NoError(t, postgres.InitSchema(ctx, db))

	// Limpiar las tablas antes de cada test para asegurar el aislamiento
	_, err = db.Exec(`TRUNCATE TABLE orders, outbox, event_log RESTART IDENTITY`)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgres_OrderLifecycle(t *testing.T) {
	db := setupPostgresTestDB(t)
	ctx := context.Background()
	repo := orderPostgres.NewOrderRepoPostgres(db)
	pub := &mocks.RecordingPublisher{}
	dispatcher := sharedApp.NewOutboxDispatcher(postgres.NewOutboxRepoPostgres(db), pub, sharedEvents.JSONCodec{}, zap.NewNop())
	svc := orderApp.NewOrderService(repo, dispatcher, sharedEvents.JSONCodec{},
		mocks.NewDummyCache(), orderApp.ServiceConfig{}, zap.NewNop())

	created, err := svc.CreateOrder(ctx, orderApp.CreateOrderCommand{
		Symbol:   "NVDA",
		Quantity: decimal.NewFromInt(3),
		Price:    decimal.RequireFromString("875.5000"),
		Side:     orderDomain.SideBuy,
	})
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(decimal.RequireFromString("875.5")))

	_, err = svc.CancelOrder(ctx, created.ID)
	require.NoError(t, err)
	_, err = svc.CancelOrder(ctx, created.ID)
	assert.ErrorIs(t, err, sharedDomain.ErrInvalidState)

	var processed int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM outbox WHERE aggregate_id = $1 AND processed`, "1").Scan(&processed))
	assert.Equal(t, 2, processed)
}

func TestPostgres_EventLogIsIdempotent(t *testing.T) {
	db := setupPostgresTestDB(t)
	repo := eventPostgres.NewEventRepoPostgres(db)
	ctx := context.Background()

	entry := eventlogDomain.EventLogEntry{OrderID: 1, EventType: "ORDER_EXECUTED", EventData: `{"id":1}`, CreatedAt: time.Now().UTC()}
	first, err := repo.Save(ctx, entry)
	require.NoError(t, err)
	again, err := repo.Save(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	history, err := repo.ListByOrder(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPostgres_PendingByAggregateFollowsInsertionOrder(t *testing.T) {
	db := setupPostgresTestDB(t)
	ctx := context.Background()
	repo := postgres.NewOutboxRepoPostgres(db)
	sameInstant := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, eventType := range []sharedEvents.EventType{sharedEvents.OrderCreated, sharedEvents.OrderFailed} {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, postgres.InsertOutboxTx(ctx, tx, sharedDomain.OutboxEvent{
			ID:            id,
			AggregateType: "order",
			AggregateID:   "11",
			EventType:     string(eventType),
			Topic:         sharedEvents.OrderEventsTopic,
			Payload:       []byte(`{}`),
			CreatedAt:     sameInstant,
		}))
	}
	require.NoError(t, tx.Commit())

	pending, err := repo.FetchPendingByAggregate(ctx, "order", "11")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID, "seq desempata created_at")
	assert.Equal(t, ids[1], pending[1].ID)
}
