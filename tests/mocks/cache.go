package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	orderDomain "github.com/davicafu/ordersim/internal/order/domain"
	sharedCache "github.com/davicafu/ordersim/internal/shared/infra/platform/cache"
)

// DummyCache guarda JSON como Redis y respeta el TTL de cada Set (ttlSecs <= 0 no expira).
// Now se puede sustituir para adelantar el reloj en las pruebas.
type DummyCache struct {
	mu      sync.RWMutex
	entries map[string]dummyEntry
	Now     func() time.Time
}

type dummyEntry struct {
	data      []byte
	expiresAt time.Time // cero: sin expiración
}

var _ sharedCache.Cache = (*DummyCache)(nil)

func NewDummyCache() *DummyCache {
	return &DummyCache{entries: make(map[string]dummyEntry), Now: time.Now}
}

func (c *DummyCache) lookup(key string) (dummyEntry, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return dummyEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !c.Now().Before(entry.expiresAt) {
		return dummyEntry{}, false
	}
	return entry, true
}

func (c *DummyCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.lookup(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *DummyCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	entry := dummyEntry{data: data}
	if ttlSecs > 0 {
		entry.expiresAt = c.Now().Add(time.Duration(ttlSecs) * time.Second)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	return nil
}

func (c *DummyCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Has indica si la clave está en caché y sin expirar.
func (c *DummyCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.lookup(key)
	return ok
}

// TTL devuelve el tiempo de vida restante; false si no hay entrada o no expira.
func (c *DummyCache) TTL(key string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.lookup(key)
	if !ok || entry.expiresAt.IsZero() {
		return 0, false
	}
	return entry.expiresAt.Sub(c.Now()), true
}

// Order devuelve la instantánea cacheada de una orden.
func (c *DummyCache) Order(id int64) (orderDomain.Order, bool) {
	var o orderDomain.Order
	hit, err := c.Get(context.Background(), orderDomain.OrderCacheKeyByID(id), &o)
	return o, hit && err == nil
}
