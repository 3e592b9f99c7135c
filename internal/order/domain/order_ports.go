package domain

import (
	"context"
	"errors"
	"fmt"

	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
)

// ErrStatusConflict: la orden cambió de estado entre la lectura y la escritura.
var ErrStatusConflict = errors.New("order status changed concurrently")

// OutboxBuilder construye la fila de outbox a partir de la orden ya persistida
// (con ID asignado), dentro de la misma transacción.
type OutboxBuilder func(o *Order) (sharedDomain.OutboxEvent, error)

// --- Repositorio de Orders ---
type OrderRepository interface {
	// Create asigna el ID a o y guarda la orden y su evento en una única transacción.
	Create(ctx context.Context, o *Order, build OutboxBuilder) error
	// Update persiste estado y updatedAt solo si la fila sigue en from; si no, ErrStatusConflict.
	// Cantidad y precio nunca se actualizan.
	Update(ctx context.Context, o *Order, from Status, evt sharedDomain.OutboxEvent) error
	// GetByID devuelve *sharedDomain.NotFoundError si no existe.
	GetByID(ctx context.Context, id int64) (*Order, error)
	// FindByStatus devuelve las órdenes en orden de creación.
	FindByStatus(ctx context.Context, status Status) ([]*Order, error)
	ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.OffsetPagination, sort sharedQuery.Sort) ([]*Order, error)
}

// Campos filtrables y ordenables (campo lógico -> columna).
var (
	FilterColumns = map[string]string{
		"status":     "status",
		"symbol":     "symbol",
		"side":       "side",
		"created_at": "created_at",
	}
	SortColumns = map[string]string{
		"id":         "id",
		"symbol":     "symbol",
		"created_at": "created_at",
		"updated_at": "updated_at",
	}
)

// ---------- Helpers comunes (cache keys, etc.) ----------

func OrderCacheKeyByID(id int64) string {
	return fmt.Sprintf("order:id:%d", id)
}
