package process

import (
	"context"
	"fmt"
	"net"
	"time"
)

const (
	// readyPollInterval is the delay between connection attempts.
	readyPollInterval = 100 * time.Millisecond

	// dialTimeout bounds a single connection attempt.
	dialTimeout = 500 * time.Millisecond
)

// WaitListening dials addr until it accepts a TCP connection, the timeout
// elapses, ctx is cancelled or h exits. h may be nil.
func WaitListening(ctx context.Context, h *Handle, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	dialer := net.Dialer{Timeout: dialTimeout}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for %s: %w", addr, ctx.Err())
		default:
		}

		if h != nil && !h.Running() {
			return fmt.Errorf("%w: pid %d exited before listening on %s", ErrNotListening, h.PID(), addr)
		}

		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %v: %w", ErrNotListening, addr, timeout, err)
		}

		select {
		case <-ctx.Done():
		case <-time.After(readyPollInterval):
		}
	}
}
