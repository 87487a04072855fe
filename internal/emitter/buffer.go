package emitter

import "sync"

// DefaultBufferSize is the ring size used when none is configured.
const DefaultBufferSize = 1000

// LogBuffer keeps the most recent emitted events.
type LogBuffer struct {
	mu    sync.RWMutex
	items []Emitted
	next  int
	full  bool
}

// NewLogBuffer creates a ring holding up to size events.
func NewLogBuffer(size int) *LogBuffer {
	if size < 1 {
		size = DefaultBufferSize
	}
	return &LogBuffer{items: make([]Emitted, size)}
}

// Add appends e, evicting the oldest entry when full.
func (b *LogBuffer) Add(e Emitted) {
	b.mu.Lock()
	b.items[b.next] = e
	b.next = (b.next + 1) % len(b.items)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()
}

// Len returns the number of buffered events.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.full {
		return len(b.items)
	}
	return b.next
}

// Recent returns up to n events, oldest first. n <= 0 returns everything.
func (b *LogBuffer) Recent(n int) []Emitted {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.next
	if b.full {
		count = len(b.items)
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]Emitted, n)
	start := (b.next - n + len(b.items)) % len(b.items)
	for i := range n {
		out[i] = b.items[(start+i)%len(b.items)]
	}
	return out
}
