package eventbus

import (
	"context"
	"encoding/json"
	"sync/atomic"
)

// Message is one published frame: Topic plus its JSON-encoded payload. Consumers
// decode Payload into the concrete event type for Topic.
type Message struct {
	Topic   Topic
	Payload json.RawMessage
}

// Handler processes one delivered message. Consumers must be idempotent keyed by
// (event_type, trader|symbol, t) per §4.3 delivery semantics — the handler, not the
// bus, is responsible for that idempotence check.
type Handler func(msg Message)

// Bus is the event bus abstraction (§4.3, §6): at-least-once delivery, ordering
// guaranteed only within one publisher's single connection, no cross-channel
// ordering. Two implementations satisfy it: an in-memory fan-out (dev/test) and a
// Redis-backed PUBLISH/SUBSCRIBE transport (production).
type Bus interface {
	// Publish encodes payload as JSON and publishes it to topic. The publish call
	// itself carries the §5 pub/sub publish deadline (2s) internally.
	Publish(ctx context.Context, topic Topic, payload interface{}) error

	// Subscribe registers handler for topic; handler runs on the subscriber's own
	// task and must not block indefinitely (messages are delivered from a bounded
	// in-process queue per subscriber, §4.3 Backpressure).
	Subscribe(topic Topic, handler Handler) error

	// DroppedCount returns the monotonic overflow counter for a subscriber whose
	// bounded queue has overflowed (§4.3 Backpressure, §7 status exposure).
	DroppedCount(topic Topic) uint64

	// Close releases resources; safe to call once.
	Close() error
}

// sendDroppingOldest enqueues msg into inbox without blocking. When inbox is full it
// evicts the single oldest buffered message first, so a lagging subscriber catches up
// toward fresh data on overflow rather than getting stuck replaying a stale backlog
// while every new arrival is discarded (§4.3 Backpressure: drop-oldest, not
// drop-newest).
func sendDroppingOldest(inbox chan Message, dropped *atomic.Uint64, msg Message) {
	select {
	case inbox <- msg:
		return
	default:
	}

	select {
	case <-inbox:
		dropped.Add(1)
	default:
	}

	select {
	case inbox <- msg:
	default:
		// a concurrent consumer drained and refilled the slot first; count this
		// arrival as dropped rather than spin for room.
		dropped.Add(1)
	}
}

func encode(payload interface{}) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return b, nil
}
