package application

import (
	"context"
	"errors"
	"time"

	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
)

// ErrAnalyticsUnavailable: no hay backend analítico configurado.
var ErrAnalyticsUnavailable = errors.New("event analytics backend not configured")

const defaultDLQListLimit = 50

// EventQueryService expone el historial y la DLQ para consulta.
type EventQueryService struct {
	repo      eventlogDomain.EventLogRepository
	store     eventlogDomain.DeadLetterStore
	analytics eventlogDomain.EventAnalytics
}

// NewEventQueryService admite analytics nil.
func NewEventQueryService(repo eventlogDomain.EventLogRepository, store eventlogDomain.DeadLetterStore, analytics eventlogDomain.EventAnalytics) *EventQueryService {
	return &EventQueryService{repo: repo, store: store, analytics: analytics}
}

func (s *EventQueryService) ListByOrder(ctx context.Context, orderID int64) ([]eventlogDomain.EventLogEntry, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

func (s *EventQueryService) ListByType(ctx context.Context, eventType sharedEvents.EventType, pagination sharedQuery.OffsetPagination) ([]eventlogDomain.EventLogEntry, error) {
	return s.repo.ListByType(ctx, string(eventType), pagination.Normalize())
}

func (s *EventQueryService) ListDeadLetters(ctx context.Context, limit int) ([]sharedEvents.DeadLetterRecord, error) {
	if limit <= 0 {
		limit = defaultDLQListLimit
	}
	return s.store.List(ctx, limit)
}

func (s *EventQueryService) CountByType(ctx context.Context, start, end time.Time) ([]eventlogDomain.EventTypeCount, error) {
	if s.analytics == nil {
		return nil, ErrAnalyticsUnavailable
	}
	return s.analytics.CountByType(ctx, start, end)
}
