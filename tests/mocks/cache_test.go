package mocks

import (
	"context"
	"testing"
	"time"

	orderDomain "github.com/davicafu/ordersim/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummyCache_HonorsTTL(t *testing.T) {
	c := NewDummyCache()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "order:id:1", orderDomain.Order{ID: 1, Status: orderDomain.StatusPending}, 60))

	ttl, ok := c.TTL("order:id:1")
	require.True(t, ok)
	assert.Equal(t, time.Minute, ttl)

	now = now.Add(59 * time.Second)
	got, hit := c.Order(1)
	assert.True(t, hit)
	assert.Equal(t, orderDomain.StatusPending, got.Status)

	now = now.Add(time.Second)
	assert.False(t, c.Has("order:id:1"), "Expirada al cumplirse el TTL")
	_, hit = c.Order(1)
	assert.False(t, hit)
}

func TestDummyCache_ZeroTTLNeverExpires(t *testing.T) {
	c := NewDummyCache()
	now := time.Now()
	c.Now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", 1, 0))
	now = now.Add(24 * time.Hour)

	assert.True(t, c.Has("k"))
	_, ok := c.TTL("k")
	assert.False(t, ok)
}
