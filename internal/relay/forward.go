package relay

import (
	"sync"

	"github.com/nerrad567/mfersafe-core/internal/process"
)

// Relay is one handle's segment of the sink's stream.
type Relay struct {
	stop       chan struct{}
	stopOnce   sync.Once
	forwarding chan struct{}
	done       chan struct{}
}

// Forward copies events into sink in arrival order until events closes.
//
// Once the sink is closed or the relay is stopped, the remaining events
// are discarded, so the producing handle can still be reaped.
func Forward(events <-chan process.Event, sink *Sink) *Relay {
	r := &Relay{
		stop:       make(chan struct{}),
		forwarding: make(chan struct{}),
		done:       make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		r.forward(events, sink)
		close(r.forwarding)
		for range events {
		}
	}()

	return r
}

func (r *Relay) forward(events <-chan process.Event, sink *Sink) {
	for {
		select {
		case <-r.stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sink.send(ev, r.stop); err != nil {
				return
			}
		}
	}
}

// Done is closed when the source stream has been fully consumed.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Stop detaches the relay from its sink. When Stop returns no further
// event from this relay reaches the sink; the rest of the source is discarded.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.forwarding
}
