package events

import (
	"context"
	"fmt"
	"time"

	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
	sharedUtils "github.com/davicafu/ordersim/internal/shared/infra/utils"
	"go.uber.org/zap"
)

// RedeliveryPolicy controla cómo el transporte vuelve a entregar un mensaje no confirmado.
// No hay tope propio: lo acota la política de reintentos del consumidor.
type RedeliveryPolicy struct {
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func DefaultRedeliveryPolicy() RedeliveryPolicy {
	return RedeliveryPolicy{Backoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

// Deliver entrega el mensaje al handler hasta que este devuelva nil o se cancele el contexto.
// Cada fallo produce una reentrega del mismo mensaje con Attempt+1; mientras tanto la
// partición no avanza.
func (p RedeliveryPolicy) Deliver(ctx context.Context, handler sharedBus.MessageHandler, first *sharedBus.Delivery, log *zap.Logger) error {
	d := first
	for {
		err := safeHandle(ctx, handler, d)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := sharedUtils.LinearBackoff(d.Attempt, p.Backoff, p.MaxBackoff)
		log.Debug("Message not acknowledged, scheduling redelivery",
			zap.String("topic", d.Topic),
			zap.String("key", d.Key),
			zap.Int("partition", d.Partition),
			zap.Int64("offset", d.Offset),
			zap.Int("retry_count", d.Attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := sharedUtils.Sleep(ctx, wait); err != nil {
			return err
		}
		d = d.Redelivery()
	}
}

// safeHandle evita que un panic del handler tumbe el consumidor: cuenta como fallo.
func safeHandle(ctx context.Context, handler sharedBus.MessageHandler, d *sharedBus.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.HandleMessage(ctx, d)
}
