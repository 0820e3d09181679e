// Package queue implements the inbound message transport: an in-process
// broker with at-least-once delivery and dead-lettering, plus network
// sources that publish raw payloads into it. Consumers signal failure by
// returning an error, which triggers redelivery up to the configured
// attempt cap — mirroring the redelivery/dead-letter contract of a hosted
// queue service.
package queue

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultWorkers is the number of concurrent consumer workers.
	DefaultWorkers = 4

	// DefaultMaxDeliveries caps delivery attempts before dead-lettering.
	DefaultMaxDeliveries = 5

	// DefaultBufferSize is the pending-message channel capacity.
	DefaultBufferSize = 10_000

	// redeliveryDelay spaces out redelivery attempts of a failed message.
	redeliveryDelay = 250 * time.Millisecond
)

// Message is one inbound delivery. DeliveryCount starts at 1 on first
// delivery and increments on each redelivery.
type Message struct {
	ID            string
	Body          []byte
	DeliveryCount int
	Sequence      uint64
	EnqueuedAt    time.Time
}

// Handler processes one delivery. A non-nil return abandons the message
// and schedules redelivery.
type Handler func(ctx context.Context, msg Message) error

// BrokerConfig holds tunable parameters for the broker.
type BrokerConfig struct {
	Workers       int
	MaxDeliveries int
	BufferSize    int
}

// Broker is an in-process at-least-once message queue. Publish never
// blocks the caller unless the buffer is full.
type Broker struct {
	conf    BrokerConfig
	ch      chan Message
	seq     atomic.Uint64
	handler Handler

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	mu         sync.Mutex
	deadLetter []Message
}

// NewBroker creates a broker delivering to handler once started.
func NewBroker(handler Handler, conf ...BrokerConfig) *Broker {
	c := BrokerConfig{
		Workers:       DefaultWorkers,
		MaxDeliveries: DefaultMaxDeliveries,
		BufferSize:    DefaultBufferSize,
	}
	if len(conf) > 0 {
		if conf[0].Workers > 0 {
			c.Workers = conf[0].Workers
		}
		if conf[0].MaxDeliveries > 0 {
			c.MaxDeliveries = conf[0].MaxDeliveries
		}
		if conf[0].BufferSize > 0 {
			c.BufferSize = conf[0].BufferSize
		}
	}
	return &Broker{
		conf:    c,
		ch:      make(chan Message, c.BufferSize),
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Publish enqueues one raw payload for delivery.
func (b *Broker) Publish(body []byte) {
	msg := Message{
		ID:            uuid.NewString(),
		Body:          body,
		DeliveryCount: 1,
		Sequence:      b.seq.Add(1),
		EnqueuedAt:    time.Now().UTC(),
	}
	select {
	case b.ch <- msg:
	case <-b.done:
	}
}

// Start launches the consumer worker pool.
func (b *Broker) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		for i := 0; i < b.conf.Workers; i++ {
			b.wg.Add(1)
			go b.worker(ctx)
		}
	})
}

// Stop shuts down delivery and waits for in-flight handlers to finish.
// Messages still buffered are dropped; a durable broker would retain
// them, but process shutdown is the accepted loss boundary here.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
	})
}

func (b *Broker) worker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case <-ctx.Done():
			return
		case msg := <-b.ch:
			b.deliver(ctx, msg)
		}
	}
}

func (b *Broker) deliver(ctx context.Context, msg Message) {
	err := b.handler(ctx, msg)
	if err == nil {
		return
	}

	if msg.DeliveryCount >= b.conf.MaxDeliveries {
		log.Printf("queue: dead-lettering message %s after %d attempts: %v", msg.ID, msg.DeliveryCount, err)
		b.mu.Lock()
		b.deadLetter = append(b.deadLetter, msg)
		b.mu.Unlock()
		return
	}

	log.Printf("queue: abandoning message %s (attempt %d/%d): %v", msg.ID, msg.DeliveryCount, b.conf.MaxDeliveries, err)
	msg.DeliveryCount++

	select {
	case <-time.After(redeliveryDelay):
	case <-b.done:
		return
	}
	select {
	case b.ch <- msg:
	case <-b.done:
	}
}

// DeadLetters returns a snapshot of dead-lettered messages.
func (b *Broker) DeadLetters() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.deadLetter))
	copy(out, b.deadLetter)
	return out
}
