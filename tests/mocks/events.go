package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// RecordingPublisher guarda los eventos publicados. Err hace fallar cada Publish;
// FailNext solo los próximos N.
type RecordingPublisher struct {
	mu       sync.Mutex
	Events   []sharedEvents.DomainEvent
	Err      error
	FailNext int
}

var _ sharedEvents.Publisher = (*RecordingPublisher)(nil)

func (p *RecordingPublisher) Publish(ctx context.Context, evt sharedEvents.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	if p.FailNext > 0 {
		p.FailNext--
		return sharedDomain.NewPublishError(fmt.Sprintf("broker unavailable for order %d", evt.OrderID), nil)
	}
	p.Events = append(p.Events, evt)
	return nil
}

// Published devuelve una copia de lo publicado.
func (p *RecordingPublisher) Published() []sharedEvents.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]sharedEvents.DomainEvent, len(p.Events))
	copy(out, p.Events)
	return out
}

// MockPublisher es la versión testify del Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evt sharedEvents.DomainEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

// MockOutboxRepository simula el repositorio de outbox.
type MockOutboxRepository struct {
	mock.Mock
}

var _ sharedDomain.OutboxRepository = (*MockOutboxRepository)(nil)

func (m *MockOutboxRepository) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]sharedDomain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) FetchPendingByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]sharedDomain.OutboxEvent, error) {
	args := m.Called(ctx, aggregateType, aggregateID)
	return args.Get(0).([]sharedDomain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// InMemoryEventLogRepo es un historial en memoria con la misma unicidad que la tabla real.
type InMemoryEventLogRepo struct {
	mu      sync.Mutex
	entries []eventlogDomain.EventLogEntry
}

var _ eventlogDomain.EventLogRepository = (*InMemoryEventLogRepo)(nil)

func NewInMemoryEventLogRepo() *InMemoryEventLogRepo {
	return &InMemoryEventLogRepo{}
}

func (r *InMemoryEventLogRepo) Save(ctx context.Context, e eventlogDomain.EventLogEntry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.entries {
		if existing.OrderID == e.OrderID && existing.EventType == e.EventType {
			return existing.ID, nil
		}
	}
	e.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, e)
	return e.ID, nil
}

func (r *InMemoryEventLogRepo) ListByOrder(ctx context.Context, orderID int64) ([]eventlogDomain.EventLogEntry, error) {
	return r.filter(func(e eventlogDomain.EventLogEntry) bool { return e.OrderID == orderID }), nil
}

func (r *InMemoryEventLogRepo) ListByType(ctx context.Context, eventType string, p sharedQuery.OffsetPagination) ([]eventlogDomain.EventLogEntry, error) {
	all := r.filter(func(e eventlogDomain.EventLogEntry) bool { return e.EventType == eventType })
	p = p.Normalize()
	if p.Offset >= len(all) {
		return []eventlogDomain.EventLogEntry{}, nil
	}
	end := p.Offset + p.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[p.Offset:end], nil
}

// All devuelve todas las entradas en orden de inserción.
func (r *InMemoryEventLogRepo) All() []eventlogDomain.EventLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]eventlogDomain.EventLogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// filter devuelve las entradas que cumplen keep, la más reciente primero.
func (r *InMemoryEventLogRepo) filter(keep func(eventlogDomain.EventLogEntry) bool) []eventlogDomain.EventLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventlogDomain.EventLogEntry
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// InMemoryDeadLetterStore guarda los registros de la DLQ en memoria.
type InMemoryDeadLetterStore struct {
	mu      sync.Mutex
	records []sharedEvents.DeadLetterRecord
}

var _ eventlogDomain.DeadLetterStore = (*InMemoryDeadLetterStore)(nil)

func (s *InMemoryDeadLetterStore) Record(ctx context.Context, rec sharedEvents.DeadLetterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == rec.ID {
			return nil
		}
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryDeadLetterStore) List(ctx context.Context, limit int) ([]sharedEvents.DeadLetterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sharedEvents.DeadLetterRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		out = append(out, s.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
