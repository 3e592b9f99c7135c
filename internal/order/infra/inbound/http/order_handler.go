package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davicafu/ordersim/internal/order/application"
	orderDomain "github.com/davicafu/ordersim/internal/order/domain"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
	"github.com/davicafu/ordersim/pkg/utils"
)

// OrderHandler encapsula los endpoints HTTP relacionados con Order.
type OrderHandler struct {
	service *application.OrderService
	log     *zap.Logger
}

func NewOrderHandler(service *application.OrderService, log *zap.Logger) *OrderHandler {
	return &OrderHandler{service: service, log: log}
}

type createOrderRequest struct {
	Symbol   string          `json:"symbol" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Side     string          `json:"side" binding:"required"`
}

// CreateOrder endpoint POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	side, err := orderDomain.ParseSide(req.Side)
	if err != nil {
		utils.SendValidationError(c, map[string]string{"side": "must be BUY or SELL"})
		return
	}

	h.log.Info("Received create order request", zap.String("symbol", req.Symbol), zap.String("side", string(side)))
	order, err := h.service.CreateOrder(c.Request.Context(), application.CreateOrderCommand{
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		Price:    req.Price,
		Side:     side,
	})
	if err != nil {
		h.sendError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// GetOrder endpoint GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// CancelOrder endpoint POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	h.log.Info("Received cancel order request", zap.Int64("order_id", id))
	order, err := h.service.CancelOrder(c.Request.Context(), id)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// SimulateExecution endpoint POST /orders/simulation-execution?limit=N
func (h *OrderHandler) SimulateExecution(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	h.log.Info("Received simulation execution request", zap.Int("limit", limit))
	orders, err := h.service.SimulateExecution(c.Request.Context(), limit)
	if err != nil {
		h.sendError(c, err)
		return
	}
	if orders == nil {
		orders = []*orderDomain.Order{}
	}
	c.JSON(http.StatusOK, orders)
}

// ListOrders endpoint GET /orders con filtros, paginación y ordenamiento
func (h *OrderHandler) ListOrders(c *gin.Context) {
	var criterias []sharedDomain.Criteria

	// --- Filtros desde query params ---
	if status := c.Query("status"); status != "" {
		s, err := orderDomain.ParseStatus(status)
		if err != nil {
			utils.SendBadRequest(c, err.Error())
			return
		}
		criterias = append(criterias, orderDomain.StatusCriteria{Status: s})
	}
	if symbol := c.Query("symbol"); symbol != "" {
		criterias = append(criterias, orderDomain.SymbolCriteria{Symbol: orderDomain.NormalizeSymbol(symbol)})
	}
	if side := c.Query("side"); side != "" {
		s, err := orderDomain.ParseSide(side)
		if err != nil {
			utils.SendBadRequest(c, err.Error())
			return
		}
		criterias = append(criterias, orderDomain.SideCriteria{Side: s})
	}
	var rng orderDomain.CreatedAtRangeCriteria
	for param, dst := range map[string]**time.Time{"created_from": &rng.Start, "created_to": &rng.End} {
		if raw := c.Query(param); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				utils.SendBadRequest(c, param+" must be RFC3339")
				return
			}
			*dst = &t
		}
	}
	criterias = append(criterias, rng)

	criteria := sharedDomain.And(criterias...)

	// --- Sort ---
	sortParam := sharedQuery.Sort{Field: "created_at", Desc: true}
	if sortField := c.Query("sort_field"); sortField != "" {
		sortParam.Field = sortField
		sortParam.Desc = c.Query("sort_desc") == "true"
	}

	// --- Paginación ---
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(sharedQuery.DefaultPageSize)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	pagination := sharedQuery.OffsetPagination{Limit: limit, Offset: offset}

	orders, err := h.service.ListOrders(c.Request.Context(), criteria, pagination, sortParam)
	if err != nil {
		h.sendError(c, err)
		return
	}
	if orders == nil {
		orders = []*orderDomain.Order{}
	}
	c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) sendError(c *gin.Context, err error) {
	if errors.Is(err, orderDomain.ErrInvalidOrder) {
		h.log.Warn("Validation error", zap.Error(err))
		utils.SendError(c, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	utils.SendDomainError(c, h.log, err)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		utils.SendBadRequest(c, "invalid order id")
		return 0, false
	}
	return id, true
}
