package events

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
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

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, evt sharedEvents.DomainEvent, attempt int) sharedDomain.Outcome {
	args := m.Called(ctx, evt, attempt)
	return args.Get(0).(sharedDomain.Outcome)
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Send(ctx context.Context, rec sharedEvents.DeadLetterRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func encodedEvent(t *testing.T) []byte {
	t.Helper()
	data, err := sharedEvents.JSONCodec{}.Encode(sharedEvents.DomainEvent{
		OrderID:   5,
		Symbol:    "AAPL",
		EventType: sharedEvents.OrderCreated,
		Payload:   []byte(`{"id":5}`),
		EmittedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return data
}

// delivery construye una entrega con el intento indicado y cuenta los commits.
func delivery(value []byte, attempt int, commits *int32) *sharedBus.Delivery {
	headers := map[string]string{}
	if attempt > 0 {
		headers[sharedBus.RetryCountHeader] = strconv.Itoa(attempt)
	}
	return sharedBus.NewDelivery(sharedEvents.OrderEventsTopic, "5", value, headers, 1, 40, func(context.Context) error {
		atomic.AddInt32(commits, 1)
		return nil
	})
}

func newConsumer(p Processor, s DeadLetterSender, decode DecodeFailurePolicy) *EventConsumer {
	return NewEventConsumer(sharedEvents.JSONCodec{}, p, s, sharedDomain.NewRetryPolicy(sharedDomain.DefaultMaxRetries), decode, zap.NewNop())
}

func TestEventConsumer_SuccessAcks(t *testing.T) {
	proc := new(mockProcessor)
	sink := new(mockSink)
	proc.On("Process", mock.Anything, mock.Anything, 0).Return(sharedDomain.OK())

	var commits int32
	d := delivery(encodedEvent(t), 0, &commits)
	err := newConsumer(proc, sink, DecodeFailureRetry).HandleMessage(context.Background(), d)

	require.NoError(t, err)
	assert.True(t, d.Acked())
	assert.Equal(t, int32(1), commits)
	sink.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestEventConsumer_RetriesThenDeadLettersOnce(t *testing.T) {
	proc := new(mockProcessor)
	sink := new(mockSink)
	failure := sharedDomain.Retryable(errors.New("database is locked"))
	proc.On("Process", mock.Anything, mock.Anything, mock.Anything).Return(failure)
	sink.On("Send", mock.Anything, mock.MatchedBy(func(rec sharedEvents.DeadLetterRecord) bool {
		return rec.RetryCount == 3 && rec.OriginalKey == "5" && rec.Partition == 1 && rec.Offset == 40
	})).Return(nil).Once()

	consumer := newConsumer(proc, sink, DecodeFailureRetry)
	value := encodedEvent(t)
	var commits int32

	for attempt := 0; attempt < 3; attempt++ {
		d := delivery(value, attempt, &commits)
		err := consumer.HandleMessage(context.Background(), d)
		assert.Error(t, err, "El intento %d debe pedir reentrega", attempt)
		assert.False(t, d.Acked())
	}
	assert.Equal(t, int32(0), commits)

	last := delivery(value, 3, &commits)
	require.NoError(t, consumer.HandleMessage(context.Background(), last))
	assert.True(t, last.Acked())
	assert.Equal(t, int32(1), commits)
	sink.AssertExpectations(t)
}

func TestEventConsumer_PermanentGoesStraightToDLQ(t *testing.T) {
	proc := new(mockProcessor)
	sink := new(mockSink)
	proc.On("Process", mock.Anything, mock.Anything, 0).Return(sharedDomain.Permanent(errors.New("bad data")))
	sink.On("Send", mock.Anything, mock.MatchedBy(func(rec sharedEvents.DeadLetterRecord) bool {
		return rec.RetryCount == 0
	})).Return(nil).Once()

	var commits int32
	d := delivery(encodedEvent(t), 0, &commits)
	require.NoError(t, newConsumer(proc, sink, DecodeFailureRetry).HandleMessage(context.Background(), d))

	assert.True(t, d.Acked())
	sink.AssertExpectations(t)
}

func TestEventConsumer_DecodeFailurePolicies(t *testing.T) {
	garbage := []byte("{not json")

	t.Run("retry", func(t *testing.T) {
		proc := new(mockProcessor)
		sink := new(mockSink)
		var commits int32
		d := delivery(garbage, 0, &commits)

		err := newConsumer(proc, sink, DecodeFailureRetry).HandleMessage(context.Background(), d)

		assert.ErrorIs(t, err, sharedDomain.ErrSerialization)
		assert.False(t, d.Acked())
		proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("dead letter", func(t *testing.T) {
		proc := new(mockProcessor)
		sink := new(mockSink)
		sink.On("Send", mock.Anything, mock.MatchedBy(func(rec sharedEvents.DeadLetterRecord) bool {
			return rec.OriginalMessage == "{not json"
		})).Return(nil).Once()
		var commits int32
		d := delivery(garbage, 0, &commits)

		err := newConsumer(proc, sink, DecodeFailureDeadLetter).HandleMessage(context.Background(), d)

		require.NoError(t, err)
		assert.True(t, d.Acked())
		sink.AssertExpectations(t)
	})
}

func TestEventConsumer_SinkFailureStillAcks(t *testing.T) {
	proc := new(mockProcessor)
	sink := new(mockSink)
	proc.On("Process", mock.Anything, mock.Anything, 3).Return(sharedDomain.Retryable(errors.New("boom")))
	sink.On("Send", mock.Anything, mock.Anything).Return(sharedDomain.NewSinkError("dlq down", nil))

	var commits int32
	d := delivery(encodedEvent(t), 3, &commits)
	err := newConsumer(proc, sink, DecodeFailureRetry).HandleMessage(context.Background(), d)

	require.NoError(t, err)
	assert.True(t, d.Acked())
	assert.Equal(t, int32(1), commits)
}

func TestEventConsumer_DeadLetterRecordCarriesContext(t *testing.T) {
	proc := new(mockProcessor)
	sink := new(mockSink)
	proc.On("Process", mock.Anything, mock.Anything, 3).Return(sharedDomain.Retryable(errors.New("deadlock detected")))

	var sent sharedEvents.DeadLetterRecord
	sink.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(sharedEvents.DeadLetterRecord)
	}).Return(nil).Once()

	value := encodedEvent(t)
	d := sharedBus.NewDelivery(sharedEvents.OrderEventsTopic, "42", value,
		map[string]string{sharedBus.RetryCountHeader: "3"}, 0, 7, func(context.Context) error { return nil })

	started := time.Now().UTC()
	require.NoError(t, newConsumer(proc, sink, DecodeFailureRetry).HandleMessage(context.Background(), d))

	assert.Equal(t, "order-events", sent.OriginalTopic)
	assert.Equal(t, "42", sent.OriginalKey)
	assert.Equal(t, 3, sent.RetryCount)
	assert.Equal(t, "deadlock detected", sent.ErrorMessage)
	assert.Equal(t, string(value), sent.OriginalMessage)
	assert.NotEmpty(t, sent.StackTrace)
	assert.False(t, sent.FailedAt.Before(started), "failedAt no puede ser anterior al inicio del procesamiento")
	assert.True(t, d.Acked())
}
