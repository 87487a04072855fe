package emitter

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/mfersafe-core/internal/process"
	"github.com/nerrad567/mfersafe-core/internal/relay"
)

// Channel is the name every relayed event is published under.
const Channel = "mfernode-event"

// Emitted is one event as delivered to the host.
type Emitted struct {
	Seq     uint64            `json:"seq"`
	Channel string            `json:"channel"`
	Payload string            `json:"payload"`
	Kind    process.EventKind `json:"kind"`
	PID     int               `json:"pid,omitempty"`
	Time    time.Time         `json:"time"`
}

// Target receives every emitted event. Emit must not block.
type Target interface {
	Emit(Emitted)
}

// TargetFunc adapts a function to Target.
type TargetFunc func(Emitted)

// Emit calls f(e).
func (f TargetFunc) Emit(e Emitted) { f(e) }

// Logger defines the logging interface for the emitter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Emitter is the single consumer of a relay.Sink.
type Emitter struct {
	sink   *relay.Sink
	buffer *LogBuffer
	logger Logger

	mu      sync.RWMutex
	targets []Target
	seq     uint64
}

// New creates an emitter reading from sink and keeping bufferSize recent events.
func New(sink *relay.Sink, bufferSize int, logger Logger) *Emitter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Emitter{
		sink:   sink,
		buffer: NewLogBuffer(bufferSize),
		logger: logger,
	}
}

// AddTarget registers t for all events emitted after this call.
func (e *Emitter) AddTarget(t Target) {
	e.mu.Lock()
	e.targets = append(e.targets, t)
	e.mu.Unlock()
}

// Run consumes the sink until it is closed or ctx is cancelled.
// It returns nil when the sink closes.
func (e *Emitter) Run(ctx context.Context) error {
	events := e.sink.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				e.logger.Debug("event sink closed, emitter stopping")
				return nil
			}
			e.deliver(ev)
		}
	}
}

// Recent returns up to n of the latest emitted events, oldest first.
func (e *Emitter) Recent(n int) []Emitted {
	return e.buffer.Recent(n)
}

// deliver renders ev once and fans it out.
func (e *Emitter) deliver(ev process.Event) {
	if !ev.IsOutput() {
		e.logger.Debug("node event", "kind", ev.Kind, "pid", ev.PID, "detail", ev.Line)
	}

	e.mu.Lock()
	e.seq++
	out := Emitted{
		Seq:     e.seq,
		Channel: Channel,
		Payload: ev.String(),
		Kind:    ev.Kind,
		PID:     ev.PID,
		Time:    ev.Time,
	}
	targets := e.targets
	e.mu.Unlock()

	e.buffer.Add(out)
	for _, t := range targets {
		t.Emit(out)
	}
}
