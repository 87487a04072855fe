package relay

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/mfersafe-core/internal/process"
)

// Policy decides what Send does when the sink is full.
type Policy string

const (
	// PolicyBlock makes Send wait for the consumer.
	PolicyBlock Policy = "block"

	// PolicyDropOldest evicts the oldest buffered event.
	PolicyDropOldest Policy = "drop_oldest"
)

// DefaultCapacity is the sink size used when none is configured.
const DefaultCapacity = 1000

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("sink is closed")

	// ErrStopped is returned to a relay that was detached mid-send.
	ErrStopped = errors.New("relay stopped")

	// ErrUnknownPolicy is returned by NewSink for an unrecognised policy.
	ErrUnknownPolicy = errors.New("unknown overflow policy")
)

// Sink is the bounded, multi-producer single-consumer event channel.
type Sink struct {
	ch     chan process.Event
	policy Policy

	// mu is held shared by senders and exclusively by Close, so the channel
	// is never closed under an in-flight send.
	mu      sync.RWMutex
	closed  bool
	closing chan struct{}
	once    sync.Once

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewSink creates a sink with the given capacity and overflow policy.
func NewSink(capacity int, policy Policy) (*Sink, error) {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	switch policy {
	case PolicyBlock, PolicyDropOldest:
	case "":
		policy = PolicyBlock
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}

	return &Sink{
		ch:      make(chan process.Event, capacity),
		policy:  policy,
		closing: make(chan struct{}),
	}, nil
}

// Send delivers ev according to the sink's policy.
func (s *Sink) Send(ev process.Event) error {
	return s.send(ev, nil)
}

// send is Send that gives up with ErrStopped once stop is closed.
// A nil stop never fires.
func (s *Sink) send(ev process.Event, stop <-chan struct{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	select {
	case <-stop:
		return ErrStopped
	default:
	}

	if s.policy == PolicyDropOldest {
		for {
			select {
			case s.ch <- ev:
				s.sent.Add(1)
				return nil
			default:
			}
			select {
			case <-s.ch:
				s.dropped.Add(1)
			default:
			}
		}
	}

	select {
	case s.ch <- ev:
		s.sent.Add(1)
		return nil
	case <-s.closing:
		return ErrClosed
	case <-stop:
		return ErrStopped
	}
}

// Events is the consumer side. It closes after Close once drained.
func (s *Sink) Events() <-chan process.Event {
	return s.ch
}

// Close ends the stream. Blocked senders return ErrClosed.
func (s *Sink) Close() {
	s.once.Do(func() {
		close(s.closing)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Policy returns the overflow policy.
func (s *Sink) Policy() Policy {
	return s.policy
}

// Cap returns the sink capacity.
func (s *Sink) Cap() int {
	return cap(s.ch)
}

// Len returns the number of buffered events.
func (s *Sink) Len() int {
	return len(s.ch)
}

// Sent returns how many events were accepted.
func (s *Sink) Sent() uint64 {
	return s.sent.Load()
}

// Dropped returns how many buffered events were evicted under PolicyDropOldest.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}
