package supervisor

import (
	"context"
	"time"

	"github.com/nerrad567/mfersafe-core/internal/nodeconfig"
)

// Restart sources recorded with each attempt.
const (
	SourceAPI     = "api"
	SourceMQTT    = "mqtt"
	SourceUnknown = "unknown"
)

// Attempt describes one Restart call after it finished.
type Attempt struct {
	RequestedAt time.Time
	FinishedAt  time.Time

	// Source names the surface that asked for the restart.
	Source string

	// Config is the requested config, not necessarily the installed one.
	Config nodeconfig.Config

	OldPID int
	NewPID int

	Success    bool
	RolledBack bool

	// Err is the spawn or readiness failure; nil on success.
	Err error

	// KillErr and SaveErr are non-fatal problems during an attempt.
	KillErr error
	SaveErr error
}

// Duration returns how long the attempt took.
func (a Attempt) Duration() time.Duration {
	return a.FinishedAt.Sub(a.RequestedAt)
}

type sourceKey struct{}

// WithSource tags ctx with the surface requesting a restart.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the restart source carried by ctx.
func SourceFrom(ctx context.Context) string {
	if v, ok := ctx.Value(sourceKey{}).(string); ok && v != "" {
		return v
	}
	return SourceUnknown
}
