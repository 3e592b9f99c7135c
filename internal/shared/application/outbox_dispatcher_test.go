package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	"github.com/davicafu/ordersim/tests/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pendingRow(t *testing.T, orderID int64, eventType sharedEvents.EventType) sharedDomain.OutboxEvent {
	t.Helper()
	evt := sharedEvents.DomainEvent{
		OrderID:   orderID,
		Symbol:    "AAPL",
		EventType: eventType,
		Payload:   []byte(`{"id":1}`),
		EmittedAt: time.Now().UTC(),
	}
	payload, err := sharedEvents.JSONCodec{}.Encode(evt)
	require.NoError(t, err)
	return sharedDomain.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   evt.PartitionKey(),
		EventType:     string(eventType),
		Payload:       payload,
		CreatedAt:     evt.EmittedAt,
	}
}

func eventTypes(events []sharedEvents.DomainEvent) []sharedEvents.EventType {
	out := make([]sharedEvents.EventType, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.EventType)
	}
	return out
}

func TestFlush_PublishesInInsertionOrder(t *testing.T) {
	repo := mocks.NewInMemoryOrderRepo()
	repo.Outbox = append(repo.Outbox,
		pendingRow(t, 1, sharedEvents.OrderCreated),
		pendingRow(t, 2, sharedEvents.OrderCreated),
		pendingRow(t, 1, sharedEvents.OrderCancelled),
	)
	pub := &mocks.RecordingPublisher{}
	dispatcher := NewOutboxDispatcher(repo, pub, sharedEvents.JSONCodec{}, zap.NewNop())

	n, err := dispatcher.Flush(context.Background(), "order", "1")

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t,
		[]sharedEvents.EventType{sharedEvents.OrderCreated, sharedEvents.OrderCancelled},
		eventTypes(pub.Published()))
	assert.Equal(t, 1, repo.PendingOutbox(), "La orden 2 no se toca")
}

func TestFlush_StopsAtFirstPublishFailure(t *testing.T) {
	repo := mocks.NewInMemoryOrderRepo()
	repo.Outbox = append(repo.Outbox,
		pendingRow(t, 1, sharedEvents.OrderCreated),
		pendingRow(t, 1, sharedEvents.OrderCancelled),
	)
	pub := &mocks.RecordingPublisher{FailNext: 1}
	dispatcher := NewOutboxDispatcher(repo, pub, sharedEvents.JSONCodec{}, zap.NewNop())

	n, err := dispatcher.Flush(context.Background(), "order", "1")

	assert.ErrorIs(t, err, sharedDomain.ErrPublish)
	assert.Equal(t, 0, n)
	assert.Empty(t, pub.Published(), "El CANCELLED no adelanta al CREATED")
	assert.Equal(t, 2, repo.PendingOutbox())

	// El siguiente intento vacía el agregado en orden
	n, err = dispatcher.Flush(context.Background(), "order", "1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t,
		[]sharedEvents.EventType{sharedEvents.OrderCreated, sharedEvents.OrderCancelled},
		eventTypes(pub.Published()))
}

func TestFlush_CorruptRowBlocksItsAggregate(t *testing.T) {
	repo := mocks.NewInMemoryOrderRepo()
	corrupt := pendingRow(t, 1, sharedEvents.OrderCreated)
	corrupt.Payload = []byte(`{"orderId":0}`)
	repo.Outbox = append(repo.Outbox, corrupt, pendingRow(t, 1, sharedEvents.OrderCancelled))
	pub := &mocks.RecordingPublisher{}
	dispatcher := NewOutboxDispatcher(repo, pub, sharedEvents.JSONCodec{}, zap.NewNop())

	_, err := dispatcher.Flush(context.Background(), "order", "1")

	assert.ErrorIs(t, err, sharedDomain.ErrSerialization)
	assert.Empty(t, pub.Published())
	assert.Equal(t, 2, repo.PendingOutbox())
}

func TestFlush_MarkFailureDoesNotBlockLaterRows(t *testing.T) {
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)
	created := pendingRow(t, 5, sharedEvents.OrderCreated)
	executed := pendingRow(t, 5, sharedEvents.OrderExecuted)

	repo.On("FetchPendingByAggregate", mock.Anything, "order", "5").
		Return([]sharedDomain.OutboxEvent{created, executed}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Twice()
	repo.On("MarkOutboxProcessed", mock.Anything, created.ID).Return(errors.New("database is locked")).Once()
	repo.On("MarkOutboxProcessed", mock.Anything, executed.ID).Return(nil).Once()

	dispatcher := NewOutboxDispatcher(repo, publisher, sharedEvents.JSONCodec{}, zap.NewNop())
	n, err := dispatcher.Flush(context.Background(), "order", "5")

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestFlush_FetchErrorIsReturned(t *testing.T) {
	repo := new(mocks.MockOutboxRepository)
	repo.On("FetchPendingByAggregate", mock.Anything, "order", "9").
		Return([]sharedDomain.OutboxEvent(nil), errors.New("connection refused")).Once()

	dispatcher := NewOutboxDispatcher(repo, new(mocks.MockPublisher), sharedEvents.JSONCodec{}, zap.NewNop())
	_, err := dispatcher.Flush(context.Background(), "order", "9")

	assert.ErrorContains(t, err, "connection refused")
}

func TestFlush_ConcurrentCallsPublishEachRowOnce(t *testing.T) {
	repo := mocks.NewInMemoryOrderRepo()
	repo.Outbox = append(repo.Outbox,
		pendingRow(t, 1, sharedEvents.OrderCreated),
		pendingRow(t, 1, sharedEvents.OrderExecuted),
	)
	pub := &mocks.RecordingPublisher{}
	dispatcher := NewOutboxDispatcher(repo, pub, sharedEvents.JSONCodec{}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = dispatcher.Flush(context.Background(), "order", "1")
		}()
	}
	wg.Wait()

	assert.Equal(t,
		[]sharedEvents.EventType{sharedEvents.OrderCreated, sharedEvents.OrderExecuted},
		eventTypes(pub.Published()))
	assert.Equal(t, 0, repo.PendingOutbox())
}
