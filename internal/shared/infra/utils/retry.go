package utils

import (
	"context"
	"time"
)

// Retry ejecuta una función con reintentos configurables.
// stop permite cortar antes ante errores que no tiene sentido reintentar (puede ser nil).
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error, stop ...func(error) bool) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		for _, s := range stop {
			if s != nil && s(err) {
				return err
			}
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(delay):
			// espera antes del siguiente intento
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// LinearBackoff devuelve base*(attempt+1) sin pasar de max.
func LinearBackoff(attempt int, base, max time.Duration) time.Duration {
	d := base * time.Duration(attempt+1)
	if max > 0 && d > max {
		return max
	}
	return d
}

// Sleep espera d o hasta que se cancele el contexto.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
