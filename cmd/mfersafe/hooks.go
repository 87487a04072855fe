package main

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/nerrad567/mfersafe-core/internal/history"
	"github.com/nerrad567/mfersafe-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/mfersafe-core/internal/infrastructure/logging"
	"github.com/nerrad567/mfersafe-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/mfersafe-core/internal/nodeconfig"
	"github.com/nerrad567/mfersafe-core/internal/supervisor"
)

const (
	// historyWriteTimeout bounds one restart history insert.
	historyWriteTimeout = 5 * time.Second

	// sinkStatsInterval is how often sink counters are written to InfluxDB.
	sinkStatsInterval = 30 * time.Second
)

// restartResult is published on the restart result topic after each MQTT command.
type restartResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// jsonPublisher is the part of the MQTT client the hooks use.
type jsonPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// managedNode is the part of the supervisor the hooks drive.
type managedNode interface {
	Restart(ctx context.Context, cfg nodeconfig.Config) error
	Stats() supervisor.Stats
}

// nodeHooks connects supervisor callbacks to history, metrics and MQTT.
// influx and mqtt are nil when those integrations are off.
type nodeHooks struct {
	log     *logging.Logger
	history history.Repository
	influx  *influxdb.Client
	mqtt    jsonPublisher
	qos     byte

	// node is set once supervisor.New returns. OnExit can fire before that.
	mu   sync.RWMutex
	node managedNode
}

func (h *nodeHooks) setNode(n managedNode) {
	h.mu.Lock()
	h.node = n
	h.mu.Unlock()
}

func (h *nodeHooks) getNode() managedNode {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.node
}

// options returns supervisor options with the callbacks filled in.
func (h *nodeHooks) options(opts supervisor.Options) supervisor.Options {
	opts.OnRestart = h.onRestart
	opts.OnExit = h.onExit
	return opts
}

func (h *nodeHooks) onRestart(a supervisor.Attempt) {
	rec := history.FromAttempt(a)

	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	if err := h.history.Create(ctx, &rec); err != nil {
		h.log.Error("failed to record restart", "source", a.Source, "error", err)
	}

	if h.influx != nil {
		h.influx.WriteRestart(a.Source, a.Success, a.RolledBack, a.Duration())
	}

	h.publishStatus()
}

func (h *nodeHooks) onExit(pid int, err error) {
	h.log.Warn("node exited unexpectedly", "pid", pid, "error", err)
	h.publishStatus()
}

// publishStatus publishes the retained status snapshot.
func (h *nodeHooks) publishStatus() {
	node := h.getNode()
	if h.mqtt == nil || node == nil {
		return
	}
	if err := h.mqtt.PublishJSON(mqtt.Topics{}.NodeStatus(), node.Stats(), true); err != nil {
		h.log.Warn("failed to publish node status", "error", err)
	}
}

// handleRestartCommand is the MQTT handler for the restart command topic.
// The restart runs in its own goroutine so paho's router is not held for
// the length of a spawn; Restart serialises concurrent commands.
func (h *nodeHooks) handleRestartCommand(ctx context.Context) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		cfg, err := nodeconfig.Decode(bytes.NewReader(payload))
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			h.publishResult(restartResult{Error: err.Error()})
			return err
		}

		node := h.getNode()
		if node == nil {
			h.publishResult(restartResult{Error: "node is not started yet"})
			return nil
		}

		go func() {
			restartCtx := supervisor.WithSource(ctx, supervisor.SourceMQTT)
			if err := node.Restart(restartCtx, cfg); err != nil {
				h.publishResult(restartResult{Error: err.Error()})
				return
			}
			h.publishResult(restartResult{Success: true})
		}()
		return nil
	}
}

func (h *nodeHooks) publishResult(res restartResult) {
	if err := h.mqtt.PublishJSON(mqtt.Topics{}.NodeRestartResult(), res, false); err != nil {
		h.log.Warn("failed to publish restart result", "error", err)
	}
}

// reportSinkStats writes sink counters until ctx is cancelled.
func (h *nodeHooks) reportSinkStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			node := h.getNode()
			if node == nil {
				continue
			}
			st := node.Stats()
			h.influx.WriteSinkStats(string(st.SinkPolicy), st.SinkSent, st.SinkDropped, st.SinkBuffered)
		}
	}
}
