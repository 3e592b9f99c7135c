package bus

import (
	"context"
	"strconv"
	"sync"
)

type Keyer interface {
	PartitionKey() string
}

// Message es lo que se envía al transporte. La semántica de topic y el formato
// del payload los deciden los adapters.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// EventBus es el lado productor del transporte.
type EventBus interface {
	Publish(ctx context.Context, msg Message) error
}

// Delivery es un mensaje recibido del transporte, pendiente de confirmación.
type Delivery struct {
	Topic     string
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	// Attempt es el número de reentrega, 0 en la primera entrega.
	Attempt int

	ack     func(ctx context.Context) error
	once    sync.Once
	acked   bool
	ackErr  error
	ackLock sync.Mutex
}

// NewDelivery construye una entrega. ack es la confirmación propia del transporte
// (commit de offset en Kafka); puede ser nil.
func NewDelivery(topic, key string, value []byte, headers map[string]string, partition int, offset int64, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{
		Topic:     topic,
		Key:       key,
		Value:     value,
		Headers:   headers,
		Partition: partition,
		Offset:    offset,
		Attempt:   AttemptFromHeaders(headers),
		ack:       ack,
	}
}

// Ack confirma el mensaje. Llamarlo más de una vez no tiene efecto adicional.
func (d *Delivery) Ack(ctx context.Context) error {
	d.once.Do(func() {
		var err error
		if d.ack != nil {
			err = d.ack(ctx)
		}
		d.ackLock.Lock()
		d.acked = err == nil
		d.ackErr = err
		d.ackLock.Unlock()
	})
	d.ackLock.Lock()
	defer d.ackLock.Unlock()
	return d.ackErr
}

func (d *Delivery) Acked() bool {
	d.ackLock.Lock()
	defer d.ackLock.Unlock()
	return d.acked
}

// AttemptFromHeaders lee la cabecera retry-count; ausente o inválida => 0.
func AttemptFromHeaders(headers map[string]string) int {
	raw, ok := headers[RetryCountHeader]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// RetryCountHeader es la cabecera que transporta el número de reentrega.
const RetryCountHeader = "retry-count"

// MessageHandler es el contrato de cualquier consumidor de mensajes.
// Devolver nil significa que el resultado es definitivo (el handler ya confirmó);
// devolver un error pide al transporte que reentregue el mismo mensaje.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *Delivery) error
}

// HandlerFunc adapta una función a MessageHandler.
type HandlerFunc func(ctx context.Context, msg *Delivery) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Delivery) error {
	return f(ctx, msg)
}

// Redelivery devuelve una nueva entrega del mismo mensaje con el contador incrementado.
// La confirmación subyacente es la misma; el control de doble ack es por entrega.
func (d *Delivery) Redelivery() *Delivery {
	headers := make(map[string]string, len(d.Headers)+1)
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[RetryCountHeader] = strconv.Itoa(d.Attempt + 1)

	next := NewDelivery(d.Topic, d.Key, d.Value, headers, d.Partition, d.Offset, d.ack)
	next.Attempt = d.Attempt + 1
	return next
}
