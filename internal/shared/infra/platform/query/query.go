package query

import sharedUtils "github.com/davicafu/ordersim/internal/shared/infra/utils"

// ---------- Paginación / ordenamiento ----------

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// OffsetPagination para paginación clásica
type OffsetPagination struct {
	Limit  int
	Offset int
}

// Normalize aplica el tamaño por defecto y los límites.
func (p OffsetPagination) Normalize() OffsetPagination {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Sort indica campo y dirección.
type Sort struct {
	Field string // ej. "created_at", "symbol"
	Desc  bool
}

// Column devuelve la columna real si el campo está permitido, o fallback si no.
func (s Sort) Column(allowed map[string]string, fallback string) string {
	if col, ok := allowed[s.Field]; ok {
		return col
	}
	return fallback
}

func (s Sort) Direction() string {
	return sharedUtils.Ternary(s.Desc, "DESC", "ASC")
}
