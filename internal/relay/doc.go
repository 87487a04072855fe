// Package relay moves node events from process handles into the single
// outbound Sink.
//
// The Sink outlives every handle. Each handle segment gets its own Forward
// goroutine, which copies events in arrival order until the handle's stream
// closes. When the Sink is full the configured Policy decides whether the
// relay waits (PolicyBlock, so backpressure reaches the child's pipes) or
// evicts the oldest buffered event (PolicyDropOldest, counted by Dropped).
package relay
