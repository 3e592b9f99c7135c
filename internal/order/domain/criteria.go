package domain

import (
	"time"

	shared "github.com/davicafu/ordersim/internal/shared/domain"
)

// --- Criterios Específicos para el Dominio Order ---

// StatusCriteria busca órdenes por su estado.
type StatusCriteria struct {
	Status Status
}

func (c StatusCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		{Field: "status", Op: shared.OpEq, Value: string(c.Status)},
	}
}

// -----------------------------------------------------------

// SymbolCriteria busca por ticker exacto.
type SymbolCriteria struct {
	Symbol string
}

func (c SymbolCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		{Field: "symbol", Op: shared.OpEq, Value: c.Symbol},
	}
}

// -----------------------------------------------------------

type SideCriteria struct {
	Side Side
}

func (c SideCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		{Field: "side", Op: shared.OpEq, Value: string(c.Side)},
	}
}

// -----------------------------------------------------------

// CreatedAtRangeCriteria busca órdenes creadas en un rango de fechas.
// Usamos punteros para que los filtros de fecha de inicio y fin sean opcionales.
type CreatedAtRangeCriteria struct {
	Start *time.Time
	End   *time.Time
}

func (c CreatedAtRangeCriteria) ToConditions() []shared.Criterion {
	var conds []shared.Criterion
	if c.Start != nil {
		conds = append(conds, shared.Criterion{Field: "created_at", Op: shared.OpGte, Value: c.Start.UTC()})
	}
	if c.End != nil {
		conds = append(conds, shared.Criterion{Field: "created_at", Op: shared.OpLte, Value: c.End.UTC()})
	}
	return conds
}
