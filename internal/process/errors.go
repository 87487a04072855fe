package process

import "errors"

var (
	// ErrNotRunning is returned by Kill when the child was already killed or
	// has exited on its own.
	ErrNotRunning = errors.New("process is not running")

	// ErrSpawnFailed wraps every failure to start the child.
	ErrSpawnFailed = errors.New("spawn failed")

	// ErrSidecarNotFound is returned when no executable matches the sidecar name.
	ErrSidecarNotFound = errors.New("sidecar executable not found")

	// ErrReapTimeout is returned by Kill when the child did not exit after SIGKILL.
	ErrReapTimeout = errors.New("process did not exit after SIGKILL")

	// ErrNotListening is returned by WaitListening when the address never accepted a connection.
	ErrNotListening = errors.New("process is not listening")
)
