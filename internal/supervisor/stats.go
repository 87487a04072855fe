package supervisor

import (
	"time"

	"github.com/nerrad567/mfersafe-core/internal/relay"
)

// Stats is a point-in-time snapshot of the supervised node.
type Stats struct {
	Status         Status        `json:"status"`
	PID            int           `json:"pid,omitempty"`
	StartedAt      time.Time     `json:"started_at,omitempty"`
	Uptime         time.Duration `json:"uptime"`
	RestartCount   int           `json:"restart_count"`
	FailedRestarts int           `json:"failed_restarts"`
	LastError      string        `json:"last_error,omitempty"`
	Args           []string      `json:"args"`
	SinkPolicy     relay.Policy  `json:"sink_policy"`
	SinkBuffered   int           `json:"sink_buffered"`
	SinkSent       uint64        `json:"sink_sent"`
	SinkDropped    uint64        `json:"sink_dropped"`
}

// Stats returns the current status of the node and its sink.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Status:         s.status,
		RestartCount:   s.restartCount,
		FailedRestarts: s.failedRestarts,
		Args:           s.cfg.BuildArgs(),
		SinkPolicy:     s.sink.Policy(),
		SinkBuffered:   s.sink.Len(),
		SinkSent:       s.sink.Sent(),
		SinkDropped:    s.sink.Dropped(),
	}

	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}

	if s.handle != nil && s.status == StatusRunning {
		st.PID = s.handle.PID()
		st.StartedAt = s.startedAt
		st.Uptime = time.Since(s.startedAt)
	}

	return st
}

// IsRunning reports whether a node is installed and alive.
func (s *Supervisor) IsRunning() bool {
	return s.Stats().Status == StatusRunning
}
