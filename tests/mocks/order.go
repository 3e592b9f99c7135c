package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	orderDomain "github.com/davicafu/ordersim/internal/order/domain"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
	"github.com/google/uuid"
)

// InMemoryOrderRepo simula OrderRepository y OutboxRepository sobre mapas.
// Guarda y devuelve copias, como haría una base de datos.
type InMemoryOrderRepo struct {
	Orders map[int64]*orderDomain.Order
	Outbox []sharedDomain.OutboxEvent
	nextID int64
	mu     sync.Mutex

	// Errores inyectables para las pruebas.
	CreateErr error
	UpdateErr error
}

func NewInMemoryOrderRepo() *InMemoryOrderRepo {
	return &InMemoryOrderRepo{
		Orders: make(map[int64]*orderDomain.Order),
		Outbox: []sharedDomain.OutboxEvent{},
	}
}

var (
	_ orderDomain.OrderRepository   = (*InMemoryOrderRepo)(nil)
	_ sharedDomain.OutboxRepository = (*InMemoryOrderRepo)(nil)
)

func (r *InMemoryOrderRepo) Create(ctx context.Context, o *orderDomain.Order, build orderDomain.OutboxBuilder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}

	o.ID = r.nextID + 1
	evt, err := build(o)
	if err != nil {
		o.ID = 0
		return err
	}
	r.nextID = o.ID
	stored := *o
	r.Orders[o.ID] = &stored
	r.Outbox = append(r.Outbox, evt)
	return nil
}

func (r *InMemoryOrderRepo) Update(ctx context.Context, o *orderDomain.Order, from orderDomain.Status, evt sharedDomain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.UpdateErr != nil {
		return r.UpdateErr
	}

	current, ok := r.Orders[o.ID]
	if !ok {
		return sharedDomain.NewNotFoundError(o.ID)
	}
	if current.Status != from {
		return orderDomain.ErrStatusConflict
	}
	current.Status = o.Status
	current.UpdatedAt = o.UpdatedAt
	r.Outbox = append(r.Outbox, evt)
	return nil
}

func (r *InMemoryOrderRepo) GetByID(ctx context.Context, id int64) (*orderDomain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.Orders[id]
	if !ok {
		return nil, sharedDomain.NewNotFoundError(id)
	}
	cp := *o
	return &cp, nil
}

func (r *InMemoryOrderRepo) FindByStatus(ctx context.Context, status orderDomain.Status) ([]*orderDomain.Order, error) {
	// Limit 0: sin paginar.
	return r.ListByCriteria(ctx, orderDomain.StatusCriteria{Status: status}, sharedQuery.OffsetPagination{}, sharedQuery.Sort{Field: "id"})
}

func (r *InMemoryOrderRepo) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.OffsetPagination, s sharedQuery.Sort) ([]*orderDomain.Order, error) {
	list := r.snapshot()

	var conds []sharedDomain.Criterion
	if criteria != nil {
		conds = criteria.ToConditions()
	}
	filtered := list[:0]
	for _, o := range list {
		if matchOrder(o, conds) {
			filtered = append(filtered, o)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return compareOrders(filtered[i], filtered[j], s.Field, s.Desc)
	})

	start := pagination.Offset
	if start > len(filtered) {
		return []*orderDomain.Order{}, nil
	}
	end := len(filtered)
	if pagination.Limit > 0 && start+pagination.Limit < end {
		end = start + pagination.Limit
	}
	return filtered[start:end], nil
}

// snapshot copia todas las órdenes bajo el mutex.
func (r *InMemoryOrderRepo) snapshot() []*orderDomain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]*orderDomain.Order, 0, len(r.Orders))
	for _, o := range r.Orders {
		cp := *o
		list = append(list, &cp)
	}
	return list
}

func matchOrder(o *orderDomain.Order, conds []sharedDomain.Criterion) bool {
	for _, cond := range conds {
		var match bool
		switch strings.ToLower(cond.Field) {
		case "status":
			match = string(o.Status) == fmt.Sprintf("%v", cond.Value)
		case "symbol":
			match = o.Symbol == fmt.Sprintf("%v", cond.Value)
		case "side":
			match = string(o.Side) == fmt.Sprintf("%v", cond.Value)
		case "created_at":
			t, ok := cond.Value.(time.Time)
			if ok {
				switch cond.Op {
				case sharedDomain.OpGte:
					match = !o.CreatedAt.Before(t)
				case sharedDomain.OpLte:
					match = !o.CreatedAt.After(t)
				}
			}
		}
		if !match {
			return false
		}
	}
	return true
}

func compareOrders(a, b *orderDomain.Order, field string, desc bool) bool {
	var less bool
	switch strings.ToLower(field) {
	case "symbol":
		less = a.Symbol < b.Symbol
	case "created_at":
		less = a.CreatedAt.Before(b.CreatedAt)
	case "updated_at":
		less = a.UpdatedAt.Before(b.UpdatedAt)
	default:
		less = a.ID < b.ID
	}
	if desc {
		return !less
	}
	return less
}

// --- Outbox ---

func (r *InMemoryOrderRepo) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []sharedDomain.OutboxEvent
	for _, evt := range r.Outbox {
		if evt.Processed {
			continue
		}
		pending = append(pending, evt)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (r *InMemoryOrderRepo) FetchPendingByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]sharedDomain.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []sharedDomain.OutboxEvent
	for _, evt := range r.Outbox {
		if !evt.Processed && evt.AggregateType == aggregateType && evt.AggregateID == aggregateID {
			pending = append(pending, evt)
		}
	}
	return pending, nil
}

func (r *InMemoryOrderRepo) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Outbox {
		if r.Outbox[i].ID == id {
			r.Outbox[i].Processed = true
			return nil
		}
	}
	return fmt.Errorf("outbox event not found: %s", id)
}

// PendingOutbox cuenta las filas sin publicar.
func (r *InMemoryOrderRepo) PendingOutbox() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.Outbox {
		if !evt.Processed {
			n++
		}
	}
	return n
}
