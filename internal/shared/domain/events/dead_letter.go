package events

import (
	"time"

	"github.com/google/uuid"
)

// DeadLetterRecord es lo que se envía a la DLQ cuando un mensaje agota sus reintentos.
// Se crea una sola vez y no se modifica nunca.
type DeadLetterRecord struct {
	ID              uuid.UUID `json:"id"`
	OriginalTopic   string    `json:"originalTopic"`
	OriginalKey     string    `json:"originalKey"`
	OriginalMessage string    `json:"originalMessage"`
	ErrorMessage    string    `json:"errorMessage"`
	StackTrace      string    `json:"stackTrace"`
	RetryCount      int       `json:"retryCount"`
	FailedAt        time.Time `json:"failedAt"`

	// Solo para diagnóstico.
	Partition int   `json:"partition"`
	Offset    int64 `json:"offset"`
}

func (r DeadLetterRecord) PartitionKey() string {
	return r.OriginalKey
}
