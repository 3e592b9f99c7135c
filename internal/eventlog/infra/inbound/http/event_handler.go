package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/davicafu/ordersim/internal/eventlog/application"
	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
	"github.com/davicafu/ordersim/pkg/utils"
)

const (
	simulatedDLQKey     = "test-key-123"
	simulatedDLQMessage = "Test message content for DLQ simulation"
	simulatedDLQError   = "Simulated processing failure for DLQ testing"
)

// FailureSender es lo que necesita el endpoint de prueba de la DLQ.
type FailureSender interface {
	SendFailure(ctx context.Context, topic, key string, message []byte, cause error, retryCount int) error
}

// EventHandler encapsula los endpoints de consulta del historial.
type EventHandler struct {
	queries     *application.EventQueryService
	dlq         FailureSender
	sourceTopic string
	maxRetries  int
	log         *zap.Logger
}

func NewEventHandler(queries *application.EventQueryService, dlq FailureSender, sourceTopic string, maxRetries int, log *zap.Logger) *EventHandler {
	if sourceTopic == "" {
		sourceTopic = sharedEvents.OrderEventsTopic
	}
	return &EventHandler{queries: queries, dlq: dlq, sourceTopic: sourceTopic, maxRetries: maxRetries, log: log}
}

// ListEvents endpoint GET /events?orderId=N o GET /events?type=ORDER_CREATED&limit=&offset=
func (h *EventHandler) ListEvents(c *gin.Context) {
	ctx := c.Request.Context()

	if raw := c.Query("orderId"); raw != "" {
		orderID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || orderID <= 0 {
			utils.SendBadRequest(c, "invalid orderId")
			return
		}
		entries, err := h.queries.ListByOrder(ctx, orderID)
		h.sendEntries(c, entries, err)
		return
	}

	if raw := c.Query("type"); raw != "" {
		eventType := sharedEvents.EventType(raw)
		if !eventType.Valid() {
			utils.SendBadRequest(c, "unknown event type "+raw)
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(sharedQuery.DefaultPageSize)))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		entries, err := h.queries.ListByType(ctx, eventType, sharedQuery.OffsetPagination{Limit: limit, Offset: offset})
		h.sendEntries(c, entries, err)
		return
	}

	utils.SendBadRequest(c, "orderId or type is required")
}

// EventStats endpoint GET /events/stats?from=RFC3339&to=RFC3339 (por defecto, últimas 24h)
func (h *EventHandler) EventStats(c *gin.Context) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)
	for param, dst := range map[string]*time.Time{"from": &start, "to": &end} {
		if raw := c.Query(param); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				utils.SendBadRequest(c, param+" must be RFC3339")
				return
			}
			*dst = t
		}
	}

	counts, err := h.queries.CountByType(c.Request.Context(), start, end)
	if errors.Is(err, application.ErrAnalyticsUnavailable) {
		utils.SendError(c, http.StatusNotImplemented, "Not Implemented", err.Error())
		return
	}
	if err != nil {
		utils.SendDomainError(c, h.log, err)
		return
	}
	if counts == nil {
		counts = []eventlogDomain.EventTypeCount{}
	}
	c.JSON(http.StatusOK, counts)
}

// ListDeadLetters endpoint GET /dlq?limit=N
func (h *EventHandler) ListDeadLetters(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	records, err := h.queries.ListDeadLetters(c.Request.Context(), limit)
	if err != nil {
		utils.SendDomainError(c, h.log, err)
		return
	}
	if records == nil {
		records = []sharedEvents.DeadLetterRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// SimulateDLQ endpoint POST /test/simulate-dlq: envía un registro sintético a la DLQ.
func (h *EventHandler) SimulateDLQ(c *gin.Context) {
	err := h.dlq.SendFailure(c.Request.Context(),
		h.sourceTopic,
		simulatedDLQKey,
		[]byte(simulatedDLQMessage),
		errors.New(simulatedDLQError),
		h.maxRetries,
	)
	if err != nil {
		h.log.Error("Failed to send test DLQ message", zap.Error(err))
		utils.SendInternalServerError(c, "Failed to send DLQ test message: "+err.Error())
		return
	}

	h.log.Info("Test DLQ message sent successfully")
	c.JSON(http.StatusOK, gin.H{"message": "DLQ test message sent successfully"})
}

func (h *EventHandler) sendEntries(c *gin.Context, entries []eventlogDomain.EventLogEntry, err error) {
	if err != nil {
		utils.SendDomainError(c, h.log, err)
		return
	}
	if entries == nil {
		entries = []eventlogDomain.EventLogEntry{}
	}
	c.JSON(http.StatusOK, entries)
}
