package domain

import (
	"fmt"
	"strings"
)

// ---------------- Operadores ----------------

type Operator string

const (
	OpEq   Operator = "="
	OpGte  Operator = ">="
	OpLte  Operator = "<="
	OpLike Operator = "LIKE"
)

// ---------------- Criterion ----------------

// Criterion describe una condición neutral de filtrado
type Criterion struct {
	Field string
	Op    Operator
	Value interface{}
}

// Criteria permite transformar filtros a condiciones neutrales
type Criteria interface {
	ToConditions() []Criterion
}

// CompositeCriteria combina varios criterios con AND.
type CompositeCriteria struct {
	Criterias []Criteria
}

func (c CompositeCriteria) ToConditions() []Criterion {
	var all []Criterion
	for _, crit := range c.Criterias {
		if crit == nil {
			continue
		}
		all = append(all, crit.ToConditions()...)
	}
	return all
}

// And crea un CompositeCriteria
func And(criterias ...Criteria) CompositeCriteria {
	return CompositeCriteria{Criterias: criterias}
}

// Placeholder genera el marcador de parámetro del driver (? en SQLite, $n en Postgres).
type Placeholder func(n int) string

func QuestionPlaceholder(int) string { return "?" }

func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// BuildWhere traduce criterios a una cláusula WHERE parametrizada.
// Solo se aceptan campos presentes en allowed (campo lógico -> columna) para
// que ningún nombre de columna llegue al SQL sin validar.
func BuildWhere(criteria Criteria, allowed map[string]string, ph Placeholder) (string, []interface{}, error) {
	if criteria == nil {
		return "", nil, nil
	}
	conds := criteria.ToConditions()
	if len(conds) == 0 {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(conds))
	args := make([]interface{}, 0, len(conds))
	for i, c := range conds {
		column, ok := allowed[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("unsupported filter field %q", c.Field)
		}
		switch c.Op {
		case OpEq, OpGte, OpLte, OpLike:
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
		clauses = append(clauses, fmt.Sprintf("%s %s %s", column, c.Op, ph(i+1)))
		args = append(args, c.Value)
	}
	return strings.Join(clauses, " AND "), args, nil
}
