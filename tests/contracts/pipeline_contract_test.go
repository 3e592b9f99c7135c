package contracts

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	eventlogApp "github.com/davicafu/ordersim/internal/eventlog/application"
	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	eventlogEvents "github.com/davicafu/ordersim/internal/eventlog/infra/inbound/events"
	infraEvents "github.com/davicafu/ordersim/internal/infra/events"
	orderApp "github.com/davicafu/ordersim/internal/order/application"
	orderDomain "github.com/davicafu/ordersim/internal/order/domain"
	orderEvents "github.com/davicafu/ordersim/internal/order/infra/outbound/events"
	sharedApp "github.com/davicafu/ordersim/internal/shared/application"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
	"github.com/davicafu/ordersim/tests/mocks"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pipeline conecta servicio de órdenes, bus en memoria y consumidores del historial.
type pipeline struct {
	bus      *infraEvents.InMemoryEventBus
	orders   *mocks.InMemoryOrderRepo
	service  *orderApp.OrderService
	eventLog eventlogDomain.EventLogRepository
	dlqStore *mocks.InMemoryDeadLetterStore
}

func newPipeline(t *testing.T, eventLog eventlogDomain.EventLogRepository, simulation orderApp.SimulationOptions) *pipeline {
	t.Helper()
	log := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())

	bus := infraEvents.NewInMemoryEventBus(3, 100,
		infraEvents.RedeliveryPolicy{Backoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}, log)
	t.Cleanup(func() {
		cancel()
		bus.Close()
	})

	codec := sharedEvents.JSONCodec{}
	dlqStore := &mocks.InMemoryDeadLetterStore{}
	consumer := eventlogEvents.NewEventConsumer(
		codec,
		eventlogApp.NewEventProcessor(eventLog, log),
		eventlogApp.NewDLQService(bus, sharedEvents.OrderEventsDLQTopic, log),
		sharedDomain.NewRetryPolicy(3),
		eventlogEvents.DecodeFailureDeadLetter,
		log,
	)
	require.NoError(t, bus.Subscribe(ctx, sharedEvents.OrderEventsTopic, consumer))
	require.NoError(t, bus.Subscribe(ctx, sharedEvents.OrderEventsDLQTopic, eventlogEvents.NewDLQConsumer(dlqStore, log)))

	orders := mocks.NewInMemoryOrderRepo()
	dispatcher := sharedApp.NewOutboxDispatcher(orders,
		orderEvents.NewOrderPublisher(bus, codec, sharedEvents.OrderEventsTopic, log), codec, log)
	service := orderApp.NewOrderService(orders, dispatcher,
		codec, mocks.NewDummyCache(), orderApp.ServiceConfig{Simulation: simulation}, log)

	return &pipeline{bus: bus, orders: orders, service: service, eventLog: eventLog, dlqStore: dlqStore}
}

func (p *pipeline) eventTypes(t *testing.T, orderID int64) []string {
	entries, err := p.eventLog.ListByOrder(context.Background(), orderID)
	require.NoError(t, err)
	types := make([]string, 0, len(entries))
	for _, e := range entries {
		types = append(types, e.EventType)
	}
	return types
}

func buyCommand(symbol string) orderApp.CreateOrderCommand {
	return orderApp.CreateOrderCommand{
		Symbol:   symbol,
		Quantity: decimal.NewFromInt(10),
		Price:    decimal.RequireFromString("150.25"),
		Side:     orderDomain.SideBuy,
	}
}

func TestPipeline_CreateAndCancelReachEventLog(t *testing.T) {
	p := newPipeline(t, mocks.NewInMemoryEventLogRepo(), orderApp.SimulationOptions{})
	ctx := context.Background()

	order, err := p.service.CreateOrder(ctx, buyCommand("AAPL"))
	require.NoError(t, err)
	_, err = p.service.CancelOrder(ctx, order.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(p.eventTypes(t, order.ID)) == 2
	}, 2*time.Second, 10*time.Millisecond, "Ambos eventos deben llegar al historial")

	assert.ElementsMatch(t,
		[]string{string(sharedEvents.OrderCreated), string(sharedEvents.OrderCancelled)},
		p.eventTypes(t, order.ID))
	assert.Zero(t, p.orders.PendingOutbox(), "Publicado directo: nada pendiente en el outbox")

	dead, err := p.dlqStore.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

type alwaysExecute struct{}

func (alwaysExecute) Succeeds(*orderDomain.Order) bool { return true }

func TestPipeline_SimulationEventsReachEventLog(t *testing.T) {
	p := newPipeline(t, mocks.NewInMemoryEventLogRepo(), orderApp.SimulationOptions{Policy: alwaysExecute{}})
	ctx := context.Background()

	for _, symbol := range []string{"AAPL", "MSFT", "NVDA"} {
		_, err := p.service.CreateOrder(ctx, buyCommand(symbol))
		require.NoError(t, err)
	}

	processed, err := p.service.SimulateExecution(ctx, 2)
	require.NoError(t, err)
	require.Len(t, processed, 2)

	for _, o := range processed {
		id := o.ID
		assert.Eventually(t, func() bool {
			return len(p.eventTypes(t, id)) == 2
		}, 2*time.Second, 10*time.Millisecond)
		assert.Contains(t, p.eventTypes(t, id), string(sharedEvents.OrderExecuted))
	}
}

// failingEventLog falla siempre al guardar y cuenta los intentos.
type failingEventLog struct {
	*mocks.InMemoryEventLogRepo
	saves atomic.Int32
}

func (f *failingEventLog) Save(ctx context.Context, e eventlogDomain.EventLogEntry) (int64, error) {
	f.saves.Add(1)
	return 0, errors.New("connection refused")
}

func TestPipeline_PersistentFailureEndsInDeadLetterOnce(t *testing.T) {
	store := &failingEventLog{InMemoryEventLogRepo: mocks.NewInMemoryEventLogRepo()}
	p := newPipeline(t, store, orderApp.SimulationOptions{})
	ctx := context.Background()

	order, err := p.service.CreateOrder(ctx, buyCommand("TSLA"))
	require.NoError(t, err)

	var records []sharedEvents.DeadLetterRecord
	require.Eventually(t, func() bool {
		records, _ = p.dlqStore.List(ctx, 0)
		return len(records) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// Intentos 0, 1 y 2 se reentregan; el 3 va a la DLQ.
	assert.Equal(t, int32(4), store.saves.Load())
	rec := records[0]
	assert.Equal(t, 3, rec.RetryCount)
	assert.Equal(t, sharedEvents.OrderEventsTopic, rec.OriginalTopic)
	assert.Equal(t, "1", rec.OriginalKey)
	assert.Contains(t, rec.ErrorMessage, "connection refused")
	assert.Contains(t, rec.OriginalMessage, `"orderId":1`)

	// Ya confirmado: no hay más intentos.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(4), store.saves.Load())
	records, _ = p.dlqStore.List(ctx, 0)
	assert.Len(t, records, 1)
	assert.Equal(t, int64(1), order.ID)
}

func TestPipeline_UndecodableMessageGoesToDeadLetter(t *testing.T) {
	eventLog := mocks.NewInMemoryEventLogRepo()
	p := newPipeline(t, eventLog, orderApp.SimulationOptions{})
	ctx := context.Background()

	require.NoError(t, p.bus.Publish(ctx, busMessage("garbage", []byte("{not json"))))

	require.Eventually(t, func() bool {
		records, _ := p.dlqStore.List(ctx, 0)
		return len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)

	records, _ := p.dlqStore.List(ctx, 0)
	assert.Equal(t, 0, records[0].RetryCount, "Sin reintentos para un mensaje ilegible")
	assert.Equal(t, "{not json", records[0].OriginalMessage)

	all, err := eventLog.ListByType(ctx, string(sharedEvents.OrderCreated), sharedQuery.OffsetPagination{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func busMessage(key string, value []byte) sharedBus.Message {
	return sharedBus.Message{Topic: sharedEvents.OrderEventsTopic, Key: key, Value: value}
}
