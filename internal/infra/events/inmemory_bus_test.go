package events

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
)

func fastPolicy() RedeliveryPolicy {
	return RedeliveryPolicy{Backoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestInMemoryBus_PreservesOrderPerKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewInMemoryEventBus(4, 50, fastPolicy(), zap.NewNop())

	var mu sync.Mutex
	received := map[string][]string{}
	var wg sync.WaitGroup
	wg.Add(20)

	err := b.Subscribe(ctx, "orders", sharedBus.HandlerFunc(func(ctx context.Context, d *sharedBus.Delivery) error {
		mu.Lock()
		received[d.Key] = append(received[d.Key], string(d.Value))
		mu.Unlock()
		wg.Done()
		return d.Ack(ctx)
	}))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		for _, key := range []string{"1", "2"} {
			require.NoError(t, b.Publish(ctx, sharedBus.Message{Topic: "orders", Key: key, Value: []byte(strconv.Itoa(i))}))
		}
	}

	waitGroupOrFail(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	for _, key := range []string{"1", "2"} {
		require.Len(t, received[key], 10)
		for i, v := range received[key] {
			assert.Equal(t, strconv.Itoa(i), v)
		}
	}
}

func TestInMemoryBus_RedeliversUntilHandled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewInMemoryEventBus(1, 10, fastPolicy(), zap.NewNop())

	var attempts []int
	var headers []string
	done := make(chan struct{})

	err := b.Subscribe(ctx, "orders", sharedBus.HandlerFunc(func(ctx context.Context, d *sharedBus.Delivery) error {
		attempts = append(attempts, d.Attempt)
		headers = append(headers, d.Headers[sharedBus.RetryCountHeader])
		if d.Attempt < 2 {
			return errors.New("transient")
		}
		require.NoError(t, d.Ack(ctx))
		close(done)
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, sharedBus.Message{Topic: "orders", Key: "9", Value: []byte("x")}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not redelivered")
	}

	assert.Equal(t, []int{0, 1, 2}, attempts)
	assert.Equal(t, []string{"", "1", "2"}, headers)
	assert.Eventually(t, func() bool { return b.Committed("orders", 0) == 0 }, time.Second, 5*time.Millisecond)
}

func TestInMemoryBus_HandlerPanicCountsAsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewInMemoryEventBus(1, 10, fastPolicy(), zap.NewNop())
	done := make(chan int, 1)

	err := b.Subscribe(ctx, "orders", sharedBus.HandlerFunc(func(ctx context.Context, d *sharedBus.Delivery) error {
		if d.Attempt == 0 {
			panic("boom")
		}
		done <- d.Attempt
		return d.Ack(ctx)
	}))
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, sharedBus.Message{Topic: "orders", Key: "1"}))

	select {
	case attempt := <-done:
		assert.Equal(t, 1, attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("panic stopped the consumer")
	}
}

func TestInMemoryBus_SecondSubscriberRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewInMemoryEventBus(2, 10, fastPolicy(), zap.NewNop())
	noop := sharedBus.HandlerFunc(func(ctx context.Context, d *sharedBus.Delivery) error { return d.Ack(ctx) })

	require.NoError(t, b.Subscribe(ctx, "orders", noop))
	assert.Error(t, b.Subscribe(ctx, "orders", noop))
}

func TestInMemoryBus_PublishAfterCloseFails(t *testing.T) {
	b := NewInMemoryEventBus(1, 1, fastPolicy(), zap.NewNop())
	b.Close()

	err := b.Publish(context.Background(), sharedBus.Message{Topic: "orders", Key: "1"})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestInMemoryBus_PublishRespectsContextWhenFull(t *testing.T) {
	b := NewInMemoryEventBus(1, 1, fastPolicy(), zap.NewNop())
	require.NoError(t, b.Publish(context.Background(), sharedBus.Message{Topic: "orders", Key: "1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Publish(ctx, sharedBus.Message{Topic: "orders", Key: "1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedeliveryPolicy_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handler := sharedBus.HandlerFunc(func(ctx context.Context, d *sharedBus.Delivery) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("always failing")
	})

	d := sharedBus.NewDelivery("orders", "1", nil, nil, 0, 0, nil)
	err := fastPolicy().Deliver(ctx, handler, d, zap.NewNop())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls)
}

func waitGroupOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for messages")
	}
}
