package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const (
	// defaultGracefulTimeout applies when Options.GracefulTimeout is zero.
	defaultGracefulTimeout = 5 * time.Second

	// defaultEventBuffer is the capacity of a handle's event channel.
	defaultEventBuffer = 64

	// reapTimeout bounds the wait for exit after SIGKILL.
	reapTimeout = 5 * time.Second

	// maxLineSize is the longest output line delivered as one event. Longer
	// lines arrive as consecutive events of at most this many bytes.
	maxLineSize = 1 << 20
)

// Options tunes how a child is started and stopped.
type Options struct {
	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// GracefulTimeout is how long Kill waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// EventBuffer is the capacity of the Events channel.
	EventBuffer int

	// Logger receives spawn and termination diagnostics.
	Logger Logger
}

// Logger defines the logging interface for process handles.
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

// Handle is one spawned child process.
type Handle struct {
	cmd       *exec.Cmd
	pid       int
	binary    string
	args      []string
	startedAt time.Time
	graceful  time.Duration
	logger    Logger

	events chan Event
	done   chan struct{}

	// exitErr is written once by the reaper before done is closed.
	exitErr error

	killMu sync.Mutex
	killed bool
}

// Spawn starts binary with args in a new process group and returns at once.
// ctx only guards the start itself; cancelling it later does not affect the child.
func Spawn(ctx context.Context, binary string, args []string, opts Options) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	if opts.GracefulTimeout <= 0 {
		opts.GracefulTimeout = defaultGracefulTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	cmd := exec.Command(binary, args...) //nolint:gosec // Binary comes from ResolveSidecar

	// Create a new process group so we can signal all children on shutdown
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if opts.Env != nil {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: creating stdout pipe: %w", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: creating stderr pipe: %w", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %w", ErrSpawnFailed, binary, err)
	}

	h := &Handle{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		binary:    binary,
		args:      append([]string(nil), args...),
		startedAt: time.Now(),
		graceful:  opts.GracefulTimeout,
		logger:    opts.Logger,
		events:    make(chan Event, opts.EventBuffer),
		done:      make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go h.captureOutput(&readers, EventStdout, stdout)
	go h.captureOutput(&readers, EventStderr, stderr)
	go h.reap(&readers)

	h.logger.Info("process started", "binary", binary, "pid", h.pid)

	return h, nil
}

// captureOutput turns one pipe into line events.
func (h *Handle) captureOutput(wg *sync.WaitGroup, kind EventKind, r io.Reader) {
	defer wg.Done()

	err := readLines(r, maxLineSize, func(line string) {
		h.events <- Event{Kind: kind, Line: line, PID: h.pid, Time: time.Now()}
	})
	if err != nil && !errors.Is(err, os.ErrClosed) {
		h.events <- Event{
			Kind: EventError,
			Line: fmt.Sprintf("reading %s: %v", kind, err),
			PID:  h.pid,
			Time: time.Now(),
		}
	}
}

// reap waits for both pipes to close, collects the exit status and ends the stream.
func (h *Handle) reap(readers *sync.WaitGroup) {
	readers.Wait()
	err := h.cmd.Wait()

	ev := Event{Kind: EventTerminated, PID: h.pid, Time: time.Now()}
	if state := h.cmd.ProcessState; state != nil {
		ev.Line = state.String()
		ev.ExitCode = state.ExitCode()
	} else if err != nil {
		ev.Line = err.Error()
		ev.ExitCode = -1
	}

	h.exitErr = err
	close(h.done)

	h.logger.Info("process exited", "pid", h.pid, "status", ev.Line)

	h.events <- ev
	close(h.events)
}

// Events returns the child's output stream. Terminated is always the last
// event and the channel is closed right after it.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Done is closed once the child has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitErr returns the error from waiting on the child, nil for a clean exit.
// It is only meaningful after Done is closed.
func (h *Handle) ExitErr() error {
	select {
	case <-h.done:
		return h.exitErr
	default:
		return nil
	}
}

// PID returns the child's process id.
func (h *Handle) PID() int {
	return h.pid
}

// Args returns a copy of the arguments the child was started with.
func (h *Handle) Args() []string {
	return append([]string(nil), h.args...)
}

// StartedAt returns when the child was spawned.
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// Running reports whether the child has not been reaped yet.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Kill terminates the child's process group: SIGTERM, then SIGKILL after
// the graceful timeout. It returns once the child has been reaped.
func (h *Handle) Kill() error {
	h.killMu.Lock()
	defer h.killMu.Unlock()

	if h.killed || !h.Running() {
		h.killed = true
		return ErrNotRunning
	}
	h.killed = true

	h.logger.Info("stopping process", "pid", h.pid)

	// Negative PID signals the whole group created via Setpgid.
	if err := syscall.Kill(-h.pid, syscall.SIGTERM); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			h.logger.Warn("failed to send SIGTERM to process group", "pid", h.pid, "error", err)
		}
	}

	select {
	case <-h.done:
		h.logger.Info("process stopped gracefully", "pid", h.pid)
		return nil
	case <-time.After(h.graceful):
		h.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"pid", h.pid,
			"timeout", h.graceful,
		)
	}

	if err := syscall.Kill(-h.pid, syscall.SIGKILL); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("killing process group %d: %w", h.pid, err)
		}
	}

	select {
	case <-h.done:
		h.logger.Info("process killed", "pid", h.pid)
		return nil
	case <-time.After(reapTimeout):
		return fmt.Errorf("%w: pid %d", ErrReapTimeout, h.pid)
	}
}
