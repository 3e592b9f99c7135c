package cache

import (
	"context"
	"time"

	sharedUtils "github.com/davicafu/ordersim/internal/shared/infra/utils"
	"go.uber.org/zap"
)

const asyncTimeout = 200 * time.Millisecond

// AsyncCacheSetGuarded actualiza caché en background sin bloquear. allow se evalúa justo
// antes de escribir, bajo el lock de la clave; con locks nil no se serializa nada.
// value debe ser una copia: se serializa en otra goroutine.
func AsyncCacheSetGuarded(ctx context.Context, cache Cache, locks *sharedUtils.KeyedMutex, key string, value interface{}, ttl int, allow func(ctx context.Context) bool, log *zap.Logger) {
	if cache == nil {
		return
	}

	go func() {
		// Contexto propio: la petición original puede haber terminado ya.
		cacheCtx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()

		written, err := SetGuarded(cacheCtx, cache, locks, key, value, ttl, allow)
		if err != nil {
			log.Warn("Cache update failed",
				zap.String("key", key),
				zap.Error(err))
			return
		}
		if !written {
			log.Debug("Cache update skipped, cached value is newer", zap.String("key", key))
		}
	}()
}

// SetGuarded escribe value si allow lo permite y devuelve si llegó a escribir.
func SetGuarded(ctx context.Context, cache Cache, locks *sharedUtils.KeyedMutex, key string, value interface{}, ttl int, allow func(ctx context.Context) bool) (bool, error) {
	if locks != nil {
		unlock := locks.Lock(key)
		defer unlock()
	}
	if allow != nil && !allow(ctx) {
		return false, nil
	}
	if err := cache.Set(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// AsyncCacheDelete elimina de caché en background
func AsyncCacheDelete(ctx context.Context, cache Cache, key string, log *zap.Logger) {
	if cache == nil {
		return
	}

	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()

		if err := cache.Delete(cacheCtx, key); err != nil {
			log.Warn("Cache deletion failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}()
}
