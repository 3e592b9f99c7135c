package domain

import (
	"errors"
	"fmt"
)

// Sentinelas de la taxonomía de errores. Se comparan siempre con errors.Is.
var (
	ErrInvalidState  = errors.New("invalid order state")
	ErrNotFound      = errors.New("order not found")
	ErrSerialization = errors.New("serialization error")
	ErrPublish       = errors.New("publish error")
	ErrProcessing    = errors.New("processing error")
	ErrSink          = errors.New("dead letter sink error")
)

// InvalidStateError indica una transición no permitida desde el estado actual.
type InvalidStateError struct {
	OrderID   int64
	Status    string
	Operation string
}

func NewInvalidStateError(orderID int64, status, operation string) *InvalidStateError {
	return &InvalidStateError{OrderID: orderID, Status: status, Operation: operation}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s order %d in status %s", e.Operation, e.OrderID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// NotFoundError indica que no existe una orden con ese ID.
type NotFoundError struct {
	OrderID int64
}

func NewNotFoundError(orderID int64) *NotFoundError {
	return &NotFoundError{OrderID: orderID}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order not found with id: %d", e.OrderID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PipelineError agrupa los errores del pipeline de eventos (serialización,
// publicación, procesamiento y DLQ). Kind es una de las sentinelas de arriba.
type PipelineError struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *PipelineError) Error() string {
	if e.Cause == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
}

// Unwrap expone tanto la categoría como la causa para que errors.Is funcione con ambas.
func (e *PipelineError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func NewSerializationError(msg string, cause error) *PipelineError {
	return &PipelineError{Kind: ErrSerialization, Msg: msg, Cause: cause}
}

func NewPublishError(msg string, cause error) *PipelineError {
	return &PipelineError{Kind: ErrPublish, Msg: msg, Cause: cause}
}

func NewProcessingError(msg string, cause error) *PipelineError {
	return &PipelineError{Kind: ErrProcessing, Msg: msg, Cause: cause}
}

func NewSinkError(msg string, cause error) *PipelineError {
	return &PipelineError{Kind: ErrSink, Msg: msg, Cause: cause}
}
