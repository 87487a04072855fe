package supervisor

import "errors"

var (
	// ErrClosed is returned by Restart after Close.
	ErrClosed = errors.New("supervisor is closed")

	// ErrRestartFailed wraps the spawn error of a failed restart.
	ErrRestartFailed = errors.New("restart failed")
)
