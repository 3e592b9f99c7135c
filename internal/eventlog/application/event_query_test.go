package application

import (
	"context"
	"testing"
	"time"

	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
	"github.com/davicafu/ordersim/tests/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEventQueryService_ListByTypeNormalizesPagination(t *testing.T) {
	repo := new(mockEventRepo)
	repo.On("ListByType", mock.Anything, "ORDER_FAILED", sharedQuery.OffsetPagination{Limit: sharedQuery.DefaultPageSize}).
		Return([]eventlogDomain.EventLogEntry{{ID: 1}}, nil).Once()

	svc := NewEventQueryService(repo, &mocks.InMemoryDeadLetterStore{}, nil)
	got, err := svc.ListByType(context.Background(), sharedEvents.OrderFailed, sharedQuery.OffsetPagination{Offset: -3})

	require.NoError(t, err)
	assert.Len(t, got, 1)
	repo.AssertExpectations(t)
}

func TestEventQueryService_ListDeadLettersDefaultLimit(t *testing.T) {
	store := &mocks.InMemoryDeadLetterStore{}
	for i := 0; i < 60; i++ {
		require.NoError(t, store.Record(context.Background(), NewDeadLetterRecord("t", "k", nil, nil, 3, time.Now())))
	}

	got, err := NewEventQueryService(new(mockEventRepo), store, nil).ListDeadLetters(context.Background(), 0)

	require.NoError(t, err)
	assert.Len(t, got, defaultDLQListLimit)
}

func TestEventQueryService_NoAnalytics(t *testing.T) {
	svc := NewEventQueryService(new(mockEventRepo), &mocks.InMemoryDeadLetterStore{}, nil)

	_, err := svc.CountByType(context.Background(), time.Now().Add(-time.Hour), time.Now())

	assert.ErrorIs(t, err, ErrAnalyticsUnavailable)
}
