package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"hlpulse/internal/errs"
	"hlpulse/internal/metrics"
)

const defaultQueueSize = 10_000

const publishDeadline = 2 * time.Second

// subscription is one (topic, handler) registration with its own bounded inbox; the
// inbox is drained by a dedicated goroutine so Publish never blocks on a slow
// handler.
type subscription struct {
	topic   Topic
	handler Handler
	inbox   chan Message
	dropped atomic.Uint64
}

// MemoryBus is the single-node in-memory Bus implementation permitted for
// development (§6): each topic's subscriber list is looked up once, the payload is
// marshaled once for all subscribers, and a full inbox drops its oldest buffered
// message to make room for the new one rather than blocking the publisher.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[Topic][]*subscription
	log  zerolog.Logger
}

// NewMemoryBus builds an in-memory bus.
func NewMemoryBus(log zerolog.Logger) *MemoryBus {
	return &MemoryBus{
		subs: make(map[Topic][]*subscription),
		log:  log.With().Str("component", "eventbus.memory").Logger(),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic Topic, payload interface{}) error {
	raw, err := encode(payload)
	if err != nil {
		return &errs.ProtocolError{Component: "eventbus.memory", Err: err}
	}

	deadline, cancel := context.WithTimeout(ctx, publishDeadline)
	defer cancel()

	b.mu.RLock()
	targets := append([]*subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	metrics.BusPublishedTotal.WithLabelValues(string(topic)).Inc()

	msg := Message{Topic: topic, Payload: raw}
	for _, sub := range targets {
		select {
		case <-deadline.Done():
			return deadline.Err()
		default:
		}

		before := sub.dropped.Load()
		sendDroppingOldest(sub.inbox, &sub.dropped, msg)
		if sub.dropped.Load() > before {
			b.log.Warn().Str("topic", string(topic)).Uint64("dropped_total", sub.dropped.Load()).
				Msg("subscriber queue full, dropping oldest buffered message")
			metrics.BusDroppedTotal.WithLabelValues(string(topic)).Set(float64(b.DroppedCount(topic)))
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic Topic, handler Handler) error {
	sub := &subscription{
		topic:   topic,
		handler: handler,
		inbox:   make(chan Message, defaultQueueSize),
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	go func() {
		for msg := range sub.inbox {
			sub.handler(msg)
		}
	}()
	return nil
}

func (b *MemoryBus) DroppedCount(topic Topic) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total uint64
	for _, sub := range b.subs[topic] {
		total += sub.dropped.Load()
	}
	return total
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.inbox)
		}
	}
	b.subs = make(map[Topic][]*subscription)
	return nil
}
