package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/mfersafe-core/internal/nodeconfig"
	"github.com/nerrad567/mfersafe-core/internal/process"
	"github.com/nerrad567/mfersafe-core/internal/relay"
)

// Status represents the state of the supervised node.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusRestarting Status = "restarting"
	StatusStopped    Status = "stopped"
	StatusFailed     Status = "failed"
	StatusClosed     Status = "closed"
)

// defaultRelayDrainTimeout applies when Options.RelayDrainTimeout is zero.
const defaultRelayDrainTimeout = 2 * time.Second

// Options configures a Supervisor.
type Options struct {
	// Binary is the resolved sidecar executable.
	Binary string

	// ConfigPath is where accepted configs are persisted.
	ConfigPath string

	// Env are extra environment variables for the node.
	Env []string

	// GracefulTimeout is passed to every spawned handle.
	GracefulTimeout time.Duration

	// ReadyTimeout, when positive, requires the node's listen address to
	// accept connections before a spawn counts as successful.
	ReadyTimeout time.Duration

	// RelayDrainTimeout bounds the wait for the previous relay to flush.
	RelayDrainTimeout time.Duration

	// OnRestart is called after every restart attempt, successful or not.
	OnRestart func(Attempt)

	// OnExit is called when the installed node exits without being killed.
	OnExit func(pid int, err error)
}

// Logger defines the logging interface for the supervisor.
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

// Supervisor owns the node process, its config and the outbound sink.
//
// Lock ordering: restartMu is taken before mu. mu is only held for short
// critical sections so Inspect and Stats never wait for a spawn.
type Supervisor struct {
	opts   Options
	sink   *relay.Sink
	logger Logger

	restartMu sync.Mutex

	mu             sync.RWMutex
	cfg            nodeconfig.Config
	handle         *process.Handle
	relay          *relay.Relay
	status         Status
	startedAt      time.Time
	restartCount   int
	failedRestarts int
	lastError      error
	closed         bool
}

// New spawns the node with cfg and starts relaying its events into sink.
// A spawn failure here is returned as-is; callers treat it as fatal.
func New(ctx context.Context, cfg nodeconfig.Config, sink *relay.Sink, opts Options, logger Logger) (*Supervisor, error) {
	if sink == nil {
		return nil, errors.New("supervisor: sink is required")
	}
	if opts.Binary == "" {
		return nil, errors.New("supervisor: binary is required")
	}
	if opts.RelayDrainTimeout <= 0 {
		opts.RelayDrainTimeout = defaultRelayDrainTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}

	s := &Supervisor{
		opts:   opts,
		sink:   sink,
		logger: logger,
		cfg:    cfg,
		status: StatusStarting,
	}

	h, err := s.spawn(ctx, cfg)
	if err != nil {
		s.status = StatusFailed
		s.lastError = err
		return nil, err
	}

	s.emit(process.Lifecycle(process.EventStarted, h.PID(), fmt.Sprintf("pid %d", h.PID())))
	r := relay.Forward(h.Events(), sink)

	if err := s.awaitReady(ctx, h, cfg); err != nil {
		h.Kill() //nolint:errcheck // Readiness failure is what gets reported
		s.waitRelay(r)
		return nil, err
	}

	s.install(cfg, h, r)
	s.logger.Info("node started", "pid", h.PID(), "binary", opts.Binary)

	return s, nil
}

// Restart replaces the running node with one started from newCfg.
//
// Concurrent calls queue. On spawn failure the previous config is respawned,
// a RestartFailed event is emitted and the spawn error is returned wrapped
// in ErrRestartFailed. The new config is persisted on success; a persistence
// failure is logged only.
func (s *Supervisor) Restart(ctx context.Context, newCfg nodeconfig.Config) error {
	if err := newCfg.Validate(); err != nil {
		return err
	}

	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	attempt := Attempt{
		RequestedAt: time.Now(),
		Source:      SourceFrom(ctx),
		Config:      newCfg,
	}

	// Take and clear the current handle.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old := s.handle
	oldCfg := s.cfg
	oldRelay := s.relay
	s.handle = nil
	s.relay = nil
	s.status = StatusRestarting
	s.mu.Unlock()

	if old != nil {
		attempt.OldPID = old.PID()
		if err := old.Kill(); err != nil && !errors.Is(err, process.ErrNotRunning) {
			attempt.KillErr = err
			s.logger.Warn("failed to stop node, continuing restart", "pid", old.PID(), "error", err)
		}
	}
	s.waitRelay(oldRelay)

	h, err := s.spawn(ctx, newCfg)
	if err == nil {
		s.emit(process.Lifecycle(process.EventRestarted, h.PID(), fmt.Sprintf("pid %d", h.PID())))
		r := relay.Forward(h.Events(), s.sink)
		if err = s.awaitReady(ctx, h, newCfg); err != nil {
			h.Kill() //nolint:errcheck // Readiness failure is what gets reported
			s.waitRelay(r)
		} else {
			if saveErr := nodeconfig.Save(newCfg, s.opts.ConfigPath); saveErr != nil {
				attempt.SaveErr = saveErr
				s.logger.Error("failed to persist node config", "path", s.opts.ConfigPath, "error", saveErr)
			}

			s.install(newCfg, h, r)

			s.mu.Lock()
			s.restartCount++
			s.mu.Unlock()

			attempt.Success = true
			attempt.NewPID = h.PID()
			s.finish(attempt)

			s.logger.Info("node restarted", "old_pid", attempt.OldPID, "new_pid", h.PID())
			return nil
		}
	}

	attempt.Err = err
	s.logger.Error("node restart failed, rolling back", "error", err)

	rb, rbErr := s.spawn(context.WithoutCancel(ctx), oldCfg)
	if rbErr != nil {
		s.emit(process.Lifecycle(process.EventRestartFailed, 0, fmt.Sprintf("%v; rollback failed: %v", err, rbErr)))

		s.mu.Lock()
		s.status = StatusFailed
		s.lastError = errors.Join(err, rbErr)
		s.failedRestarts++
		s.mu.Unlock()

		s.finish(attempt)
		s.logger.Error("rollback failed, node is not running", "error", rbErr)
		return fmt.Errorf("%w: %w (rollback: %w)", ErrRestartFailed, err, rbErr)
	}

	attempt.RolledBack = true
	attempt.NewPID = rb.PID()
	s.emit(process.Lifecycle(process.EventRestartFailed, rb.PID(), fmt.Sprintf("%v; rolled back to previous config", err)))
	s.install(oldCfg, rb, relay.Forward(rb.Events(), s.sink))

	s.mu.Lock()
	s.failedRestarts++
	s.lastError = err
	s.mu.Unlock()

	s.finish(attempt)
	return fmt.Errorf("%w: %w", ErrRestartFailed, err)
}

// Inspect returns a copy of the installed config.
func (s *Supervisor) Inspect() nodeconfig.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Sink returns the outbound event sink.
func (s *Supervisor) Sink() *relay.Sink {
	return s.sink
}

// Close kills the node and closes the sink. It is safe to call more than once.
func (s *Supervisor) Close() error {
	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	h := s.handle
	r := s.relay
	s.handle = nil
	s.relay = nil
	s.status = StatusClosed
	s.mu.Unlock()

	var err error
	if h != nil {
		if killErr := h.Kill(); killErr != nil && !errors.Is(killErr, process.ErrNotRunning) {
			err = fmt.Errorf("stopping node: %w", killErr)
		}
	}
	s.waitRelay(r)
	s.sink.Close()

	return err
}

// spawn starts a handle for cfg without touching supervisor state.
func (s *Supervisor) spawn(ctx context.Context, cfg nodeconfig.Config) (*process.Handle, error) {
	h, err := process.Spawn(ctx, s.opts.Binary, cfg.BuildArgs(), process.Options{
		Env:             s.opts.Env,
		GracefulTimeout: s.opts.GracefulTimeout,
		Logger:          s.logger,
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// awaitReady waits for the listen port when ReadyTimeout is set.
func (s *Supervisor) awaitReady(ctx context.Context, h *process.Handle, cfg nodeconfig.Config) error {
	if s.opts.ReadyTimeout <= 0 {
		return nil
	}
	return process.WaitListening(ctx, h, cfg.ListenHostPort, s.opts.ReadyTimeout)
}

// install publishes cfg and h as the current state and watches for exit.
func (s *Supervisor) install(cfg nodeconfig.Config, h *process.Handle, r *relay.Relay) {
	s.mu.Lock()
	s.cfg = cfg
	s.handle = h
	s.relay = r
	s.status = StatusRunning
	s.startedAt = h.StartedAt()
	s.mu.Unlock()

	go s.watchExit(h)
}

// watchExit marks the node stopped if it exits while still installed.
func (s *Supervisor) watchExit(h *process.Handle) {
	<-h.Done()

	s.mu.Lock()
	if s.handle != h {
		s.mu.Unlock()
		return
	}
	s.status = StatusStopped
	s.lastError = h.ExitErr()
	s.mu.Unlock()

	s.logger.Warn("node exited", "pid", h.PID(), "error", h.ExitErr())

	if s.opts.OnExit != nil {
		s.opts.OnExit(h.PID(), h.ExitErr())
	}
}

// waitRelay waits for a relay to drain, bounded by RelayDrainTimeout.
// A relay that misses the deadline is detached, so at most one relay ever
// feeds the sink.
func (s *Supervisor) waitRelay(r *relay.Relay) {
	if r == nil {
		return
	}
	select {
	case <-r.Done():
	case <-time.After(s.opts.RelayDrainTimeout):
		r.Stop()
		s.logger.Warn("previous relay did not drain in time, detached it", "timeout", s.opts.RelayDrainTimeout)
	}
}

// emit sends a lifecycle event, logging if the sink is gone.
func (s *Supervisor) emit(ev process.Event) {
	if err := s.sink.Send(ev); err != nil {
		s.logger.Debug("lifecycle event not delivered", "kind", ev.Kind, "error", err)
	}
}

// finish stamps and reports a restart attempt.
func (s *Supervisor) finish(a Attempt) {
	a.FinishedAt = time.Now()
	if s.opts.OnRestart != nil {
		s.opts.OnRestart(a)
	}
}
