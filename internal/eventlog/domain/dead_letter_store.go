package domain

import (
	"context"

	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
)

// DeadLetterStore guarda lo que llega al canal de dead-letter para poder consultarlo.
type DeadLetterStore interface {
	// Record ignora registros con un ID ya guardado.
	Record(ctx context.Context, rec sharedEvents.DeadLetterRecord) error
	// List devuelve los últimos registros, el más reciente primero.
	List(ctx context.Context, limit int) ([]sharedEvents.DeadLetterRecord, error)
}
