package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	orderDomain "github.com/davicafu/ordersim/internal/order/domain"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	"go.uber.org/zap"
)

const (
	DefaultSimulationLimit = 5
	DefaultSuccessRate     = 0.8
)

// NewRand crea un generador con semilla fija; seed 0 usa la hora actual.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// --- Selección de candidatas ---

// Selector elige hasta limit órdenes de entre las candidatas.
type Selector interface {
	Select(candidates []*orderDomain.Order, limit int) []*orderDomain.Order
}

// FirstKSelector toma las primeras en orden de creación.
type FirstKSelector struct{}

func (FirstKSelector) Select(candidates []*orderDomain.Order, limit int) []*orderDomain.Order {
	if limit > len(candidates) {
		limit = len(candidates)
	}
	out := make([]*orderDomain.Order, limit)
	copy(out, candidates[:limit])
	return out
}

// RandomSelector baraja las candidatas con un generador inyectado.
type RandomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomSelector(rng *rand.Rand) *RandomSelector {
	return &RandomSelector{rng: rng}
}

func (s *RandomSelector) Select(candidates []*orderDomain.Order, limit int) []*orderDomain.Order {
	shuffled := make([]*orderDomain.Order, len(candidates))
	copy(shuffled, candidates)

	s.mu.Lock()
	s.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	s.mu.Unlock()

	if limit > len(shuffled) {
		limit = len(shuffled)
	}
	return shuffled[:limit]
}

// --- Resultado de la ejecución ---

// ExecutionPolicy decide si la ejecución simulada de una orden tiene éxito.
type ExecutionPolicy interface {
	Succeeds(o *orderDomain.Order) bool
}

// ProbabilisticExecution tiene éxito con probabilidad rate, cada orden de forma independiente.
type ProbabilisticExecution struct {
	mu   sync.Mutex
	rate float64
	rng  *rand.Rand
}

func NewProbabilisticExecution(rate float64, rng *rand.Rand) *ProbabilisticExecution {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &ProbabilisticExecution{rate: rate, rng: rng}
}

func (p *ProbabilisticExecution) Succeeds(*orderDomain.Order) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < p.rate
}

// --- Simulador ---

type SimulationOptions struct {
	Selector     Selector
	Policy       ExecutionPolicy
	DefaultLimit int
	// IsolateFailures sigue con el resto del lote cuando falla una orden.
	// Por defecto el lote se aborta en el primer error.
	IsolateFailures bool
}

// DefaultSimulationOptions reproduce el comportamiento clásico: 5 órdenes al azar, 80% de éxito.
func DefaultSimulationOptions(seed uint64) SimulationOptions {
	return NewSimulationOptions(seed, DefaultSimulationLimit, DefaultSuccessRate, false)
}

// NewSimulationOptions usa selección aleatoria y éxito con probabilidad rate.
func NewSimulationOptions(seed uint64, limit int, rate float64, isolateFailures bool) SimulationOptions {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	// Cada componente con su propio generador: rand.Rand no es seguro entre goroutines.
	return SimulationOptions{
		Selector:        NewRandomSelector(NewRand(seed)),
		Policy:          NewProbabilisticExecution(rate, NewRand(seed+1)),
		DefaultLimit:    limit,
		IsolateFailures: isolateFailures,
	}
}

// transitionFunc aplica una operación a la orden, la persiste y publica su evento.
type transitionFunc func(ctx context.Context, o *orderDomain.Order, op string) error

type Simulator struct {
	repo  orderDomain.OrderRepository
	opts  SimulationOptions
	apply transitionFunc
	log   *zap.Logger
}

func newSimulator(repo orderDomain.OrderRepository, opts SimulationOptions, apply transitionFunc, log *zap.Logger) *Simulator {
	if opts.Selector == nil {
		opts.Selector = FirstKSelector{}
	}
	if opts.Policy == nil {
		opts.Policy = NewProbabilisticExecution(DefaultSuccessRate, NewRand(0))
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultSimulationLimit
	}
	return &Simulator{repo: repo, opts: opts, apply: apply, log: log}
}

// Simulate ejecuta o falla hasta limit órdenes PENDING (limit <= 0 usa el valor por defecto).
// Devuelve las órdenes que llegaron a cambiar de estado.
func (s *Simulator) Simulate(ctx context.Context, limit int) ([]*orderDomain.Order, error) {
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}

	pending, err := s.repo.FindByStatus(ctx, orderDomain.StatusPending)
	if err != nil {
		return nil, sharedDomain.NewProcessingError("failed to load pending orders", err)
	}

	selected := s.opts.Selector.Select(pending, limit)
	s.log.Info("Simulating order execution",
		zap.Int("pending", len(pending)),
		zap.Int("selected", len(selected)),
	)

	processed := make([]*orderDomain.Order, 0, len(selected))
	var errs []error
	for _, o := range selected {
		op := orderDomain.OpFail
		if s.opts.Policy.Succeeds(o) {
			op = orderDomain.OpExecute
		}

		if err := s.apply(ctx, o, op); err != nil {
			perr := sharedDomain.NewProcessingError(fmt.Sprintf("error processing order %d", o.ID), err)
			s.log.Error("Simulation failed for order", zap.Int64("order_id", o.ID), zap.Error(err))
			if !s.opts.IsolateFailures {
				return processed, perr
			}
			errs = append(errs, perr)
			continue
		}

		s.log.Info("Order simulated", zap.Int64("order_id", o.ID), zap.String("status", string(o.Status)))
		processed = append(processed, o)
	}

	return processed, errors.Join(errs...)
}
