package process

import (
	"fmt"
	"time"
)

// EventKind identifies the variant carried by an Event.
type EventKind string

const (
	// EventStdout carries one line written to the child's stdout.
	EventStdout EventKind = "stdout"

	// EventStderr carries one line written to the child's stderr.
	EventStderr EventKind = "stderr"

	// EventTerminated is always the last event of a handle.
	EventTerminated EventKind = "terminated"

	// EventError reports a failure reading one of the child's pipes.
	EventError EventKind = "error"

	// EventStarted, EventRestarted and EventRestartFailed are emitted by the
	// supervisor to mark lifecycle boundaries in the stream.
	EventStarted       EventKind = "started"
	EventRestarted     EventKind = "restarted"
	EventRestartFailed EventKind = "restart_failed"
)

// Event is one immutable item of a node's output stream.
type Event struct {
	Kind EventKind `json:"kind"`

	// Line is the output line for stdout/stderr and a human-readable
	// description for every other kind.
	Line string `json:"line"`

	// PID of the child the event belongs to; zero for RestartFailed when no
	// child could be started.
	PID int `json:"pid,omitempty"`

	// ExitCode is set on Terminated; -1 when the child died from a signal.
	ExitCode int `json:"exit_code,omitempty"`

	Time time.Time `json:"time"`
}

// IsOutput reports whether the event carries a line written by the child.
func (e Event) IsOutput() bool {
	return e.Kind == EventStdout || e.Kind == EventStderr
}

// String renders non-output events as a bracketed marker,
// e.g. "[terminated: exit status 1]".
func (e Event) String() string {
	switch e.Kind {
	case EventStdout:
		return e.Line
	case EventStderr:
		return "StdErr: " + e.Line
	}
	if e.Line == "" {
		return fmt.Sprintf("[%s]", e.Kind)
	}
	return fmt.Sprintf("[%s: %s]", e.Kind, e.Line)
}

// Lifecycle builds a supervisor-emitted event.
func Lifecycle(kind EventKind, pid int, detail string) Event {
	return Event{Kind: kind, Line: detail, PID: pid, Time: time.Now()}
}
