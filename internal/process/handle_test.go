package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// writeScript creates an executable /bin/sh script in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-node")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

// collect reads every event until the stream closes.
func collect(t *testing.T, h *Handle, timeout time.Duration) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("event stream did not close within %v (got %d events)", timeout, len(events))
			return nil
		}
	}
}

// drain discards events so the child never blocks on a full channel.
func drain(h *Handle) {
	for range h.Events() {
	}
}

func TestSpawn_InvalidBinary(t *testing.T) {
	_, err := Spawn(context.Background(), "/nonexistent/mfer-node", nil, Options{})
	if !errors.Is(err, ErrSpawnFailed) {
		t.Errorf("Spawn() error = %v, want ErrSpawnFailed", err)
	}
}

func TestSpawn_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Spawn(ctx, "/bin/true", nil, Options{})
	if !errors.Is(err, ErrSpawnFailed) || !errors.Is(err, context.Canceled) {
		t.Errorf("Spawn() error = %v, want ErrSpawnFailed wrapping context.Canceled", err)
	}
}

func TestSpawn_RelaysOutputAndExit(t *testing.T) {
	script := writeScript(t, `echo "first $1"
echo second
echo "oops" 1>&2
exit 3`)

	h, err := Spawn(context.Background(), script, []string{"arg"}, Options{})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	events := collect(t, h, 5*time.Second)

	var stdout, stderr []string
	for _, ev := range events {
		switch ev.Kind {
		case EventStdout:
			stdout = append(stdout, ev.Line)
		case EventStderr:
			stderr = append(stderr, ev.Line)
		}
		if ev.PID != h.PID() {
			t.Errorf("event PID = %d, want %d", ev.PID, h.PID())
		}
	}

	if len(stdout) != 2 || stdout[0] != "first arg" || stdout[1] != "second" {
		t.Errorf("stdout lines = %q, want [first arg second]", stdout)
	}
	if len(stderr) != 1 || stderr[0] != "oops" {
		t.Errorf("stderr lines = %q, want [oops]", stderr)
	}

	last := events[len(events)-1]
	if last.Kind != EventTerminated {
		t.Fatalf("last event kind = %s, want terminated", last.Kind)
	}
	if last.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", last.ExitCode)
	}
	if last.Line != "exit status 3" {
		t.Errorf("terminated line = %q, want %q", last.Line, "exit status 3")
	}

	if h.Running() {
		t.Error("Running() = true after stream closed")
	}
	if h.ExitErr() == nil {
		t.Error("ExitErr() = nil, want exit status error")
	}
}

func TestSpawn_OverlongLineDoesNotStopStream(t *testing.T) {
	script := writeScript(t, `head -c 1100000 /dev/zero | tr '\0' 'x'
echo
echo after-long-line
echo second`)

	h, err := Spawn(context.Background(), script, nil, Options{})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	var stdout []string
	for _, ev := range collect(t, h, 10*time.Second) {
		switch ev.Kind {
		case EventStdout:
			stdout = append(stdout, ev.Line)
		case EventError:
			t.Errorf("unexpected error event: %s", ev.Line)
		}
	}

	total := 0
	for _, line := range stdout {
		if len(line) > maxLineSize {
			t.Errorf("line of %d bytes exceeds %d", len(line), maxLineSize)
		}
		if strings.Trim(line, "x") == "" {
			total += len(line)
		}
	}
	if total != 1100000 {
		t.Errorf("long line delivered %d bytes, want 1100000", total)
	}

	n := len(stdout)
	if n < 2 || stdout[n-2] != "after-long-line" || stdout[n-1] != "second" {
		t.Errorf("trailing lines = %q, want [after-long-line second]", stdout[max(0, n-2):])
	}
}

func TestHandle_KillThenKillAgain(t *testing.T) {
	h, err := Spawn(context.Background(), "/bin/sleep", []string{"30"}, Options{GracefulTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	var events []Event
	streamDone := make(chan struct{})
	go func() {
		for ev := range h.Events() {
			events = append(events, ev)
		}
		close(streamDone)
	}()

	if err := h.Kill(); err != nil {
		t.Fatalf("first Kill() error = %v", err)
	}
	if h.Running() {
		t.Error("Running() = true after Kill returned")
	}

	if err := h.Kill(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Kill() error = %v, want ErrNotRunning", err)
	}

	select {
	case <-streamDone:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream did not close after Kill")
	}

	if len(events) == 0 || events[len(events)-1].Kind != EventTerminated {
		t.Errorf("events = %v, want trailing terminated", events)
	}
	if events[len(events)-1].ExitCode != -1 {
		t.Errorf("exit code = %d, want -1 for signal", events[len(events)-1].ExitCode)
	}
}

func TestHandle_KillAfterExit(t *testing.T) {
	h, err := Spawn(context.Background(), "/bin/true", nil, Options{})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	collect(t, h, 5*time.Second)

	if err := h.Kill(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Kill() after exit error = %v, want ErrNotRunning", err)
	}
}

func TestHandle_KillEscalatesToSIGKILL(t *testing.T) {
	// The ignored disposition is inherited by sleep, so SIGTERM reaches no one.
	script := writeScript(t, `trap '' TERM
sleep 30`)

	h, err := Spawn(context.Background(), script, nil, Options{GracefulTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	go drain(h)

	// Give the shell a moment to install the trap.
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	if err := h.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("Kill() returned after %v, expected to wait for the graceful timeout", elapsed)
	}
	if h.Running() {
		t.Error("Running() = true after SIGKILL")
	}
}

func TestHandle_ConcurrentKill(t *testing.T) {
	h, err := Spawn(context.Background(), "/bin/sleep", []string{"30"}, Options{})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	go drain(h)

	const callers = 8
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- h.Kill()
		}()
	}
	wg.Wait()
	close(results)

	var nils, notRunning int
	for err := range results {
		switch {
		case err == nil:
			nils++
		case errors.Is(err, ErrNotRunning):
			notRunning++
		default:
			t.Errorf("Kill() unexpected error = %v", err)
		}
	}
	if nils != 1 || notRunning != callers-1 {
		t.Errorf("nil results = %d, ErrNotRunning = %d; want 1 and %d", nils, notRunning, callers-1)
	}
}

func TestHandle_Accessors(t *testing.T) {
	args := []string{"30"}
	h, err := Spawn(context.Background(), "/bin/sleep", args, Options{})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	defer h.Kill() //nolint:errcheck // Test cleanup
	go drain(h)

	if h.PID() <= 0 {
		t.Errorf("PID() = %d, want > 0", h.PID())
	}
	if h.StartedAt().IsZero() {
		t.Error("StartedAt() is zero")
	}
	if !h.Running() {
		t.Error("Running() = false for a live child")
	}
	if h.ExitErr() != nil {
		t.Errorf("ExitErr() = %v before exit, want nil", h.ExitErr())
	}

	got := h.Args()
	got[0] = "mutated"
	if h.Args()[0] != "30" {
		t.Error("Args() exposes internal slice")
	}
}

func TestSpawn_Env(t *testing.T) {
	script := writeScript(t, `echo "$MFER_TEST_VALUE"`)

	h, err := Spawn(context.Background(), script, nil, Options{Env: []string{"MFER_TEST_VALUE=hello"}})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	events := collect(t, h, 5*time.Second)
	if events[0].Kind != EventStdout || events[0].Line != "hello" {
		t.Errorf("first event = %+v, want stdout hello", events[0])
	}
}
