package domain

// DefaultMaxRetries es el número de reentregas antes de escalar a la DLQ.
const DefaultMaxRetries = 3

// RetryDecision es el resultado de consultar la política de reintentos.
type RetryDecision int

const (
	// Proceed: se puede volver a intentar (no se confirma el mensaje).
	Proceed RetryDecision = iota
	// Exhausted: se agotaron los intentos, toca la DLQ.
	Exhausted
)

func (d RetryDecision) String() string {
	if d == Exhausted {
		return "exhausted"
	}
	return "proceed"
}

// RetryPolicy decide, a partir del número de reentrega (base 0), si un fallo se reintenta.
type RetryPolicy struct {
	MaxRetries int
}

func NewRetryPolicy(maxRetries int) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return RetryPolicy{MaxRetries: maxRetries}
}

// Decide devuelve Proceed mientras attempt < MaxRetries.
func (p RetryPolicy) Decide(attempt int) RetryDecision {
	if attempt < p.MaxRetries {
		return Proceed
	}
	return Exhausted
}

// OutcomeKind clasifica el resultado de procesar un mensaje.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeRetryable
	OutcomePermanent
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome es lo que devuelve una función de procesamiento: el consumidor
// decide ack/reintento/DLQ según Kind, nunca según el tipo del error.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func OK() Outcome { return Outcome{Kind: OutcomeOK} }

func Retryable(err error) Outcome { return Outcome{Kind: OutcomeRetryable, Err: err} }

func Permanent(err error) Outcome { return Outcome{Kind: OutcomePermanent, Err: err} }

func (o Outcome) Succeeded() bool { return o.Kind == OutcomeOK }
