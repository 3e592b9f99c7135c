package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockBus struct {
	mock.Mock
}

func (m *mockBus) Publish(ctx context.Context, msg sharedBus.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func TestDLQService_SendFailure_BuildsRecord(t *testing.T) {
	bus := new(mockBus)
	var sent sharedBus.Message
	bus.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(sharedBus.Message) }).
		Return(nil).Once()

	svc := NewDLQService(bus, "", zap.NewNop())
	start := time.Now().UTC()
	cause := errors.New("Simulated processing failure for DLQ testing")

	err := svc.SendFailure(context.Background(), sharedEvents.OrderEventsTopic, "test-key-123", []byte("payload"), cause, 3)

	require.NoError(t, err)
	assert.Equal(t, sharedEvents.OrderEventsDLQTopic, sent.Topic)
	assert.Equal(t, "test-key-123", sent.Key, "La key original se conserva")

	var rec sharedEvents.DeadLetterRecord
	require.NoError(t, json.Unmarshal(sent.Value, &rec))
	assert.NotEqual(t, [16]byte{}, [16]byte(rec.ID))
	assert.Equal(t, sharedEvents.OrderEventsTopic, rec.OriginalTopic)
	assert.Equal(t, "test-key-123", rec.OriginalKey)
	assert.Equal(t, "payload", rec.OriginalMessage)
	assert.Equal(t, cause.Error(), rec.ErrorMessage)
	assert.Contains(t, rec.StackTrace, "Simulated processing failure")
	assert.Equal(t, 3, rec.RetryCount)
	assert.False(t, rec.FailedAt.Before(start.Truncate(time.Second)))
}

func TestDLQService_PublishFailureIsSinkError(t *testing.T) {
	bus := new(mockBus)
	down := errors.New("broker down")
	bus.On("Publish", mock.Anything, mock.Anything).Return(down)

	err := NewDLQService(bus, "dlq", zap.NewNop()).
		SendFailure(context.Background(), "orders", "1", nil, errors.New("x"), 3)

	assert.ErrorIs(t, err, sharedDomain.ErrSink)
	assert.ErrorIs(t, err, down)
}

func TestNewDeadLetterRecord_WalksErrorChain(t *testing.T) {
	root := errors.New("disk full")
	cause := sharedDomain.NewProcessingError("failed to store event", root)

	rec := NewDeadLetterRecord("t", "k", []byte("m"), cause, 3, time.Now())

	assert.Contains(t, rec.StackTrace, "failed to store event")
	assert.Contains(t, rec.StackTrace, "disk full")
	assert.Contains(t, rec.StackTrace, "goroutine")
	assert.Equal(t, time.UTC, rec.FailedAt.Location())
}
