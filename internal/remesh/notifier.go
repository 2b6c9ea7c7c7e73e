// Package remesh publishes fire-and-forget remesh notifications after a
// committed edit. The real deployment target is an
// external message broker, which is out of scope; InMemoryPublisher is an
// in-process stand-in using a buffered-channel fan-out to subscribers,
// with mutex-guarded subscriber bookkeeping.
package remesh

import (
	"context"
	"log"
	"sync"
)

// Payload is the serialized remesh event.
type Payload struct {
	OperationID    uint64   `json:"operation_id"`
	NewLvl2IDs     []uint64 `json:"new_lvl2_ids"`
	NewRootIDs     []uint64 `json:"new_root_ids"`
	TableID        string   `json:"table_id"`
	UserID         string   `json:"user_id"`
	RemeshPriority bool     `json:"remesh_priority"`
}

// Publisher sends a Payload to the remesh exchange. No delivery guarantee
// beyond at-least-once from the transport is required; operation_id lets
// downstream consumers dedup.
type Publisher interface {
	Publish(ctx context.Context, payload Payload) error
}

// InMemoryPublisher is a buffered-channel fan-out Publisher: every
// subscriber receives every published Payload on its own channel. A full
// subscriber channel drops the event and logs it rather than blocking the
// publisher, matching §7's "publish errors are swallowed" rule.
type InMemoryPublisher struct {
	exchange string

	mu          sync.RWMutex
	subscribers []chan Payload
	logger      *log.Logger
}

// NewInMemoryPublisher constructs a publisher bound to exchange (from
// internal/config's EditsExchange).
func NewInMemoryPublisher(exchange string, logger *log.Logger) *InMemoryPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &InMemoryPublisher{exchange: exchange, logger: logger}
}

// Exchange returns the bound exchange name.
func (p *InMemoryPublisher) Exchange() string { return p.exchange }

// Subscribe registers a new buffered channel that receives every future
// Publish call. The caller owns the channel and should drain it; capacity
// bounds how far a slow subscriber can lag before events are dropped.
func (p *InMemoryPublisher) Subscribe(capacity int) <-chan Payload {
	ch := make(chan Payload, capacity)
	p.mu.Lock()
	p.subscribers = append(p.subscribers, ch)
	p.mu.Unlock()
	return ch
}

// Publish fans payload out to every subscriber, non-blocking.
func (p *InMemoryPublisher) Publish(ctx context.Context, payload Payload) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subscribers {
		select {
		case ch <- payload:
		default:
			p.logger.Printf("remesh: dropped event for operation %d, subscriber channel full", payload.OperationID)
		}
	}
	return nil
}

var _ Publisher = (*InMemoryPublisher)(nil)
