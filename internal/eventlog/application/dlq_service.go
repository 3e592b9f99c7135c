package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DLQService publica los mensajes que han fallado definitivamente en el canal de dead-letter.
type DLQService struct {
	bus   sharedBus.EventBus
	topic string
	log   *zap.Logger
	now   func() time.Time
}

func NewDLQService(bus sharedBus.EventBus, topic string, log *zap.Logger) *DLQService {
	if topic == "" {
		topic = sharedEvents.OrderEventsDLQTopic
	}
	return &DLQService{bus: bus, topic: topic, log: log, now: time.Now}
}

// NewDeadLetterRecord construye el registro a partir del mensaje original y el error que lo hizo fallar.
func NewDeadLetterRecord(topic, key string, message []byte, cause error, retryCount int, failedAt time.Time) sharedEvents.DeadLetterRecord {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return sharedEvents.DeadLetterRecord{
		ID:              uuid.New(),
		OriginalTopic:   topic,
		OriginalKey:     key,
		OriginalMessage: string(message),
		ErrorMessage:    msg,
		StackTrace:      diagnostic(cause),
		RetryCount:      retryCount,
		FailedAt:        failedAt.UTC(),
	}
}

// Send publica el registro con la misma key que el mensaje original.
func (s *DLQService) Send(ctx context.Context, rec sharedEvents.DeadLetterRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return sharedDomain.NewSinkError("failed to encode dead letter record", err)
	}

	msg := sharedBus.Message{Topic: s.topic, Key: rec.PartitionKey(), Value: data}
	if err := s.bus.Publish(ctx, msg); err != nil {
		s.log.Error("Failed to send message to DLQ",
			zap.String("original_topic", rec.OriginalTopic),
			zap.String("original_key", rec.OriginalKey),
			zap.Error(err),
		)
		return sharedDomain.NewSinkError(fmt.Sprintf("failed to publish to %s", s.topic), err)
	}

	s.log.Error("Message sent to DLQ",
		zap.String("original_topic", rec.OriginalTopic),
		zap.String("original_key", rec.OriginalKey),
		zap.Int("retry_count", rec.RetryCount),
		zap.String("error", rec.ErrorMessage),
	)
	return nil
}

// SendFailure construye el registro con la hora actual y lo envía.
func (s *DLQService) SendFailure(ctx context.Context, topic, key string, message []byte, cause error, retryCount int) error {
	return s.Send(ctx, NewDeadLetterRecord(topic, key, message, cause, retryCount, s.now()))
}

// diagnostic vuelca la cadena de errores y la pila de la goroutine que escala el mensaje.
func diagnostic(err error) string {
	var b strings.Builder
	depth := 0
	for e := err; e != nil; depth++ {
		fmt.Fprintf(&b, "%s%T: %s\n", strings.Repeat("  ", depth), e, e.Error())
		switch x := e.(type) {
		case interface{ Unwrap() []error }:
			// En errores múltiples seguimos la última causa, la más concreta.
			causes := x.Unwrap()
			if len(causes) == 0 {
				e = nil
			} else {
				e = causes[len(causes)-1]
			}
		default:
			e = errors.Unwrap(e)
		}
	}
	b.WriteString("\n")
	b.Write(debug.Stack())
	return b.String()
}
