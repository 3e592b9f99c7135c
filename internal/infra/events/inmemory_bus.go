package events

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	sharedBus "github.com/davicafu/ordersim/internal/shared/infra/platform/bus"
)

var ErrBusClosed = errors.New("event bus closed")

// InMemoryEventBus es un transporte en proceso con topics particionados.
// La key decide la partición (mismo criterio que el balanceo por hash de Kafka), y cada
// partición se consume de forma secuencial: el siguiente mensaje no sale hasta que el
// anterior termina.
type InMemoryEventBus struct {
	partitions int
	bufferSize int
	policy     RedeliveryPolicy
	log        *zap.Logger

	mu     sync.RWMutex
	topics map[string]*memTopic
	closed bool
	wg     sync.WaitGroup
}

type memTopic struct {
	parts      []chan memMessage
	next       []int64 // próximo offset por partición
	committed  []int64 // último offset confirmado por partición, -1 si ninguno
	subscribed bool
	pubMu      sync.Mutex // asignación de offset y encolado
	ackMu      sync.Mutex // offsets confirmados
}

type memMessage struct {
	msg    sharedBus.Message
	offset int64
}

// Verifica en tiempo de compilación que cumple la interfaz
var _ sharedBus.EventBus = (*InMemoryEventBus)(nil)

func NewInMemoryEventBus(partitions, bufferSize int, policy RedeliveryPolicy, log *zap.Logger) *InMemoryEventBus {
	if partitions <= 0 {
		partitions = 1
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryEventBus{
		partitions: partitions,
		bufferSize: bufferSize,
		policy:     policy,
		log:        log,
		topics:     make(map[string]*memTopic),
	}
}

func (b *InMemoryEventBus) topic(name string) *memTopic {
	b.mu.RLock()
	t, ok := b.topics[name]
	b.mu.RUnlock()
	if ok {
		return t
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok = b.topics[name]; ok {
		return t
	}
	t = &memTopic{
		parts:     make([]chan memMessage, b.partitions),
		next:      make([]int64, b.partitions),
		committed: make([]int64, b.partitions),
	}
	for i := range t.parts {
		t.parts[i] = make(chan memMessage, b.bufferSize)
		t.committed[i] = -1
	}
	b.topics[name] = t
	return t
}

// PartitionFor devuelve la partición de una key.
func (b *InMemoryEventBus) PartitionFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(b.partitions))
}

// Publish encola el mensaje en su partición. Si el buffer está lleno espera
// hasta que haya hueco o se cancele el contexto.
func (b *InMemoryEventBus) Publish(ctx context.Context, msg sharedBus.Message) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrBusClosed
	}

	t := b.topic(msg.Topic)
	p := b.PartitionFor(msg.Key)

	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	m := memMessage{msg: copyMessage(msg), offset: t.next[p]}
	select {
	case t.parts[p] <- m:
		t.next[p]++
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe arranca un consumidor por partición del topic. Solo se admite un grupo por
// topic: la confirmación es compartida como en un consumer group.
func (b *InMemoryEventBus) Subscribe(ctx context.Context, topicName string, handler sharedBus.MessageHandler) error {
	t := b.topic(topicName)

	t.ackMu.Lock()
	if t.subscribed {
		t.ackMu.Unlock()
		return errors.New("topic already has a subscriber: " + topicName)
	}
	t.subscribed = true
	t.ackMu.Unlock()

	for p := range t.parts {
		b.wg.Add(1)
		go b.consume(ctx, topicName, t, p, handler)
	}
	b.log.Info("🎧 In-memory subscriber started", zap.String("topic", topicName), zap.Int("partitions", b.partitions))
	return nil
}

func (b *InMemoryEventBus) consume(ctx context.Context, topicName string, t *memTopic, p int, handler sharedBus.MessageHandler) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-t.parts[p]:
			offset := m.offset
			d := sharedBus.NewDelivery(topicName, m.msg.Key, m.msg.Value, m.msg.Headers, p, offset,
				func(context.Context) error {
					t.ackMu.Lock()
					if offset > t.committed[p] {
						t.committed[p] = offset
					}
					t.ackMu.Unlock()
					return nil
				})
			if err := b.policy.Deliver(ctx, handler, d, b.log); err != nil {
				return
			}
		}
	}
}

// Committed devuelve el último offset confirmado de una partición, -1 si ninguno.
func (b *InMemoryEventBus) Committed(topicName string, partition int) int64 {
	t := b.topic(topicName)
	t.ackMu.Lock()
	defer t.ackMu.Unlock()
	if partition < 0 || partition >= len(t.committed) {
		return -1
	}
	return t.committed[partition]
}

// Close rechaza nuevas publicaciones y espera a que terminen los consumidores
// (que paran al cancelar su contexto).
func (b *InMemoryEventBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

func copyMessage(m sharedBus.Message) sharedBus.Message {
	out := sharedBus.Message{Topic: m.Topic, Key: m.Key}
	if m.Value != nil {
		out.Value = append([]byte(nil), m.Value...)
	}
	if m.Headers != nil {
		out.Headers = make(map[string]string, len(m.Headers))
		for k, v := range m.Headers {
			out.Headers[k] = v
		}
	}
	return out
}
