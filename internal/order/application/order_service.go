package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	orderDomain "github.com/davicafu/ordersim/internal/order/domain"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedCache "github.com/davicafu/ordersim/internal/shared/infra/platform/cache"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
	sharedUtils "github.com/davicafu/ordersim/internal/shared/infra/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const aggregateType = "order"

type ServiceConfig struct {
	Topic      string
	CacheTTL   int // segundos
	Simulation SimulationOptions
}

// EventDispatcher publica, en orden de inserción, las filas de outbox pendientes de un agregado.
type EventDispatcher interface {
	Flush(ctx context.Context, aggregateType, aggregateID string) (int, error)
}

// OrderService define los casos de uso relacionados con Order.
// Cada cambio de estado se persiste junto a su fila de outbox y después se publica.
type OrderService struct {
	repo       orderDomain.OrderRepository
	dispatcher EventDispatcher
	codec      sharedEvents.Codec
	cache      sharedCache.Cache
	cacheLocks *sharedUtils.KeyedMutex
	simulator  *Simulator
	topic      string
	cacheTTL   int
	log        *zap.Logger
}

func NewOrderService(
	repo orderDomain.OrderRepository,
	dispatcher EventDispatcher,
	codec sharedEvents.Codec,
	cache sharedCache.Cache,
	cfg ServiceConfig,
	log *zap.Logger,
) *OrderService {
	if cfg.Topic == "" {
		cfg.Topic = sharedEvents.OrderEventsTopic
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60
	}
	s := &OrderService{
		repo:       repo,
		dispatcher: dispatcher,
		codec:      codec,
		cache:      cache,
		cacheLocks: sharedUtils.NewKeyedMutex(),
		topic:      cfg.Topic,
		cacheTTL:   cfg.CacheTTL,
		log:        log,
	}
	s.simulator = newSimulator(repo, cfg.Simulation, s.transition, log)
	return s
}

type CreateOrderCommand struct {
	Symbol   string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Side     orderDomain.Side
}

// CreateOrder crea la orden PENDING y emite ORDER_CREATED. Si la publicación falla,
// la orden queda guardada (y su evento en el outbox) pero se devuelve el error.
func (s *OrderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*orderDomain.Order, error) {
	order, err := orderDomain.NewOrder(cmd.Symbol, cmd.Quantity, cmd.Price, cmd.Side, time.Now())
	if err != nil {
		return nil, err
	}

	var evt sharedEvents.DomainEvent
	err = s.repo.Create(ctx, order, func(o *orderDomain.Order) (sharedDomain.OutboxEvent, error) {
		var row sharedDomain.OutboxEvent
		var buildErr error
		evt, row, buildErr = s.buildEvent(o)
		return row, buildErr
	})
	if err != nil {
		s.log.Error("Failed to create order", zap.String("symbol", order.Symbol), zap.Error(err))
		return nil, err
	}

	s.log.Info("Order created", zap.Int64("order_id", order.ID), zap.String("symbol", order.Symbol))
	s.cacheOrder(ctx, *order)

	if err := s.publish(ctx, evt); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder obtiene una orden, usando el patrón cache-aside con reintentos.
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*orderDomain.Order, error) {
	// 1. Intentar obtener de la caché
	if s.cache != nil {
		var o orderDomain.Order
		if hit, _ := s.cache.Get(ctx, orderDomain.OrderCacheKeyByID(id), &o); hit {
			return &o, nil
		}
	}

	// 2. Si es 'miss', ir al repositorio con reintentos (un NotFound no se reintenta)
	var order *orderDomain.Order
	err := sharedUtils.Retry(ctx, 3, 100*time.Millisecond, func() error {
		var errRetry error
		order, errRetry = s.repo.GetByID(ctx, id)
		return errRetry
	}, isNotFound)
	if err != nil {
		if isNotFound(err) {
			s.log.Warn("Order not found", zap.Int64("order_id", id))
		} else {
			s.log.Error("Failed to fetch order", zap.Int64("order_id", id), zap.Error(err))
		}
		return nil, err
	}

	// 3. Actualizar caché en segundo plano para la próxima vez
	s.cacheOrder(ctx, *order)
	return order, nil
}

// ListOrders es un pass-through al repositorio para listados genéricos.
func (s *OrderService) ListOrders(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.OffsetPagination, sort sharedQuery.Sort) ([]*orderDomain.Order, error) {
	return s.repo.ListByCriteria(ctx, criteria, pagination.Normalize(), sort)
}

// CancelOrder solo es válido desde PENDING.
func (s *OrderService) CancelOrder(ctx context.Context, id int64) (*orderDomain.Order, error) {
	// Siempre desde el repositorio: la caché puede tener un estado antiguo.
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, order, orderDomain.OpCancel); err != nil {
		return nil, err
	}
	return order, nil
}

// SimulateExecution ejecuta o falla un lote de órdenes pendientes.
func (s *OrderService) SimulateExecution(ctx context.Context, limit int) ([]*orderDomain.Order, error) {
	return s.simulator.Simulate(ctx, limit)
}

// transition valida la operación, persiste estado + outbox y publica el evento.
func (s *OrderService) transition(ctx context.Context, order *orderDomain.Order, op string) error {
	from, fromUpdatedAt := order.Status, order.UpdatedAt
	if err := order.Apply(op, time.Now()); err != nil {
		s.log.Warn("Rejected order transition",
			zap.Int64("order_id", order.ID),
			zap.String("status", string(from)),
			zap.String("operation", op),
		)
		return err
	}

	evt, row, err := s.buildEvent(order)
	if err != nil {
		order.Status, order.UpdatedAt = from, fromUpdatedAt
		return err
	}

	if err := s.repo.Update(ctx, order, from, row); err != nil {
		order.Status, order.UpdatedAt = from, fromUpdatedAt
		if errors.Is(err, orderDomain.ErrStatusConflict) {
			return s.conflictError(ctx, order.ID, op)
		}
		s.log.Error("Failed to persist order transition", zap.Int64("order_id", order.ID), zap.Error(err))
		return err
	}

	s.log.Info("Order transitioned",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)),
	)
	s.cacheOrder(ctx, *order)

	return s.publish(ctx, evt)
}

// conflictError traduce una escritura perdida al estado real de la orden.
func (s *OrderService) conflictError(ctx context.Context, id int64, op string) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	sharedCache.AsyncCacheDelete(ctx, s.cache, orderDomain.OrderCacheKeyByID(id), s.log)
	return sharedDomain.NewInvalidStateError(id, string(current.Status), op)
}

func (s *OrderService) buildEvent(o *orderDomain.Order) (sharedEvents.DomainEvent, sharedDomain.OutboxEvent, error) {
	now := time.Now().UTC()
	evt, err := o.Event(now)
	if err != nil {
		return sharedEvents.DomainEvent{}, sharedDomain.OutboxEvent{}, err
	}
	data, err := s.codec.Encode(evt)
	if err != nil {
		return sharedEvents.DomainEvent{}, sharedDomain.OutboxEvent{}, err
	}
	return evt, sharedDomain.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   evt.PartitionKey(),
		EventType:     string(evt.EventType),
		Topic:         s.topic,
		Payload:       data,
		CreatedAt:     now,
	}, nil
}

// cacheOrder refresca la caché en segundo plano sin pisar una instantánea más reciente:
// una lectura lenta no puede devolver a PENDING una orden ya cancelada.
func (s *OrderService) cacheOrder(ctx context.Context, o orderDomain.Order) {
	key := orderDomain.OrderCacheKeyByID(o.ID)
	sharedCache.AsyncCacheSetGuarded(ctx, s.cache, s.cacheLocks, key, o, s.cacheTTL, func(ctx context.Context) bool {
		var cached orderDomain.Order
		hit, err := s.cache.Get(ctx, key, &cached)
		return err != nil || !hit || !cached.NewerThan(o)
	}, s.log)
}

// publish vacía el outbox de la orden, incluidas filas anteriores que quedaron pendientes.
// Si su evento no sale, la fila queda para el relayer y el llamante recibe un ProcessingError.
func (s *OrderService) publish(ctx context.Context, evt sharedEvents.DomainEvent) error {
	if _, err := s.dispatcher.Flush(ctx, aggregateType, evt.PartitionKey()); err != nil {
		s.log.Error("Order persisted but event not published",
			zap.Int64("order_id", evt.OrderID),
			zap.String("event_type", string(evt.EventType)),
			zap.Error(err),
		)
		return sharedDomain.NewProcessingError(
			fmt.Sprintf("order %d saved but %s event was not published", evt.OrderID, evt.EventType), err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, sharedDomain.ErrNotFound)
}
