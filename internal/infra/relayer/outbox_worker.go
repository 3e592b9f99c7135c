package relayer

import (
	"context"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	"go.uber.org/zap"
)

// Flusher publica en orden las filas pendientes de un agregado.
type Flusher interface {
	Flush(ctx context.Context, aggregateType, aggregateID string) (int, error)
}

// Worker publica las filas de outbox que la publicación directa dejó pendientes.
// No publica por su cuenta: delega cada agregado en el mismo Flusher que usa el
// servicio y los eventos de cada orden salen en secuencia.
// Puede duplicar un evento ya publicado; el historial lo absorbe al ser idempotente.
type Worker struct {
	repo      sharedDomain.OutboxRepository
	flusher   Flusher
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func NewOutboxWorker(
	repo sharedDomain.OutboxRepository,
	flusher Flusher,
	interval time.Duration,
	batchSize int,
	log *zap.Logger,
) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Worker{
		repo:      repo,
		flusher:   flusher,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Start inicia el bucle de polling del worker.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("🚀 Outbox worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 Outbox worker stopped")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch devuelve cuántas filas se publicaron. Cada agregado del lote se vacía
// una sola vez; un fallo solo retiene las filas posteriores de ese agregado.
func (w *Worker) ProcessBatch(ctx context.Context) int {
	rows, err := w.repo.FetchPendingOutbox(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("⚠️ Failed to fetch pending outbox events", zap.Error(err))
		return 0
	}
	if len(rows) > 0 {
		w.log.Info(fmt.Sprintf("📬 %d pending outbox events", len(rows)))
	}

	published := 0
	flushed := make(map[string]bool)
	for _, row := range rows {
		key := row.AggregateType + ":" + row.AggregateID
		if flushed[key] {
			continue
		}
		flushed[key] = true

		n, err := w.flusher.Flush(ctx, row.AggregateType, row.AggregateID)
		published += n
		if err != nil {
			w.log.Warn("⚠️ Outbox aggregate still pending",
				zap.String("aggregate_type", row.AggregateType),
				zap.String("aggregate_id", row.AggregateID),
				zap.Error(err),
			)
		}
	}
	return published
}
