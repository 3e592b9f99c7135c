package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
	"github.com/shopspring/decimal"
)

var ErrInvalidOrder = errors.New("invalid order")

const MaxSymbolLength = 10

// Operaciones del ciclo de vida. Son las que aparecen en los errores de estado inválido.
const (
	OpCancel  = "cancel"
	OpExecute = "execute"
	OpFail    = "fail"
)

// transitions es la máquina de estados completa: solo PENDING tiene salidas.
var transitions = map[Status]map[string]Status{
	StatusPending: {
		OpCancel:  StatusCancelled,
		OpExecute: StatusExecuted,
		OpFail:    StatusFailed,
	},
}

type Order struct {
	ID        int64           `json:"id"`
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Side      Side            `json:"side"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NormalizeSymbol es la forma canónica en que se guardan los tickers.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NewOrder valida la entrada y devuelve una orden PENDING sin ID (lo asigna el repositorio).
func NewOrder(symbol string, quantity, price decimal.Decimal, side Side, now time.Time) (*Order, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" || len(symbol) > MaxSymbolLength {
		return nil, fmt.Errorf("%w: symbol must have between 1 and %d characters", ErrInvalidOrder, MaxSymbolLength)
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	if side != SideBuy && side != SideSell {
		return nil, fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	}

	now = now.UTC()
	return &Order{
		Symbol:    symbol,
		Quantity:  quantity,
		Price:     price,
		Side:      side,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (o *Order) PartitionKey() string {
	return strconv.FormatInt(o.ID, 10)
}

// NewerThan indica si o es una instantánea posterior a other de la misma orden.
// Los estados terminales son definitivos, así que ganan a PENDING sea cual sea la hora.
func (o *Order) NewerThan(other Order) bool {
	if o.ID != other.ID {
		return false
	}
	if o.Status.IsTerminal() != other.Status.IsTerminal() {
		return o.Status.IsTerminal()
	}
	return o.UpdatedAt.After(other.UpdatedAt)
}

// --- Métodos de dominio ---

func (o *Order) Cancel(now time.Time) error  { return o.apply(OpCancel, now) }
func (o *Order) Execute(now time.Time) error { return o.apply(OpExecute, now) }
func (o *Order) Fail(now time.Time) error    { return o.apply(OpFail, now) }

// Apply ejecuta una operación por nombre (cancel, execute, fail).
func (o *Order) Apply(op string, now time.Time) error { return o.apply(op, now) }

func (o *Order) apply(op string, now time.Time) error {
	target, ok := transitions[o.Status][op]
	if !ok {
		return sharedDomain.NewInvalidStateError(o.ID, string(o.Status), op)
	}
	o.Status = target
	o.UpdatedAt = now.UTC()
	return nil
}

// CanApply indica si la operación es legal en el estado actual, sin modificar la orden.
func (o *Order) CanApply(op string) bool {
	_, ok := transitions[o.Status][op]
	return ok
}

// EventTypeFor devuelve el tipo de evento que corresponde a entrar en un estado.
func EventTypeFor(status Status) (sharedEvents.EventType, error) {
	switch status {
	case StatusPending:
		return sharedEvents.OrderCreated, nil
	case StatusCancelled:
		return sharedEvents.OrderCancelled, nil
	case StatusExecuted:
		return sharedEvents.OrderExecuted, nil
	case StatusFailed:
		return sharedEvents.OrderFailed, nil
	default:
		return "", fmt.Errorf("no event type for status %q", status)
	}
}

// Event construye el evento del estado actual con la foto completa de la orden.
func (o *Order) Event(emittedAt time.Time) (sharedEvents.DomainEvent, error) {
	eventType, err := EventTypeFor(o.Status)
	if err != nil {
		return sharedEvents.DomainEvent{}, err
	}
	snapshot, err := json.Marshal(o)
	if err != nil {
		return sharedEvents.DomainEvent{}, sharedDomain.NewSerializationError(
			fmt.Sprintf("failed to snapshot order %d", o.ID), err)
	}
	return sharedEvents.DomainEvent{
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		EventType: eventType,
		Payload:   snapshot,
		EmittedAt: emittedAt.UTC(),
	}, nil
}

// Verificación estática
var _ sharedBus.Keyer = (*Order)(nil)
