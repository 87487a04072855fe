package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/nerrad567/mfersafe-core/internal/api"
	"github.com/nerrad567/mfersafe-core/internal/emitter"
	"github.com/nerrad567/mfersafe-core/internal/history"
	"github.com/nerrad567/mfersafe-core/internal/infrastructure/config"
	"github.com/nerrad567/mfersafe-core/internal/infrastructure/database"
	"github.com/nerrad567/mfersafe-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/mfersafe-core/internal/infrastructure/logging"
	"github.com/nerrad567/mfersafe-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/mfersafe-core/internal/nodeconfig"
	"github.com/nerrad567/mfersafe-core/internal/process"
	"github.com/nerrad567/mfersafe-core/internal/relay"
	"github.com/nerrad567/mfersafe-core/internal/supervisor"
	"github.com/nerrad567/mfersafe-core/migrations"
)

const (
	// lockFileName sits next to the database and guards against a second supervisor.
	lockFileName = "mfersafe.lock"

	// lockTimeout bounds the wait for the instance lock.
	lockTimeout = 2 * time.Second

	// emitterDrainTimeout bounds the wait for the emitter after the sink closes.
	emitterDrainTimeout = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start mfer-node and serve the control API",
	Long: `Start the node sidecar with the persisted config and run until SIGINT/SIGTERM.

A failure to start the node at launch is fatal. Later restarts that fail are
rolled back to the previous config and reported on the API, MQTT and the
restart history.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), getConfigPath())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// run is the actual application logic, separated from the command for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting mfersafe",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	lock, err := acquireInstanceLock(ctx, filepath.Join(filepath.Dir(cfg.Database.Path), lockFileName))
	if err != nil {
		return err
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			log.Error("error releasing instance lock", "error", unlockErr)
		}
	}()

	binary, err := process.ResolveSidecar(cfg.Supervisor.Sidecar)
	if err != nil {
		return fmt.Errorf("resolving node binary: %w", err)
	}
	log.Info("node binary resolved", "path", binary)

	nodePath, err := nodeConfigPath(cfg)
	if err != nil {
		return err
	}
	nodeCfg, loadErr := nodeconfig.LoadStrict(nodePath)
	if loadErr != nil {
		nodeCfg = nodeconfig.Default()
		log.Warn("using default node config", "path", nodePath, "reason", loadErr)
	} else {
		log.Info("node config loaded", "path", nodePath)
	}

	// Open database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	checks := map[string]api.HealthChecker{"database": db}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	sink, err := relay.NewSink(cfg.Supervisor.SinkBuffer, relay.Policy(cfg.Supervisor.OverflowPolicy))
	if err != nil {
		return fmt.Errorf("creating event sink: %w", err)
	}

	// The emitter must be consuming before the node starts writing.
	hub := api.NewHub(cfg.WebSocket, log)
	em := emitter.New(sink, cfg.Supervisor.LogBufferSize, log)
	em.AddTarget(emitter.BroadcastTarget(hub))
	if mqttClient != nil {
		// #nosec G115 -- QoS validated to 0-2 by config.Validate
		eventTarget := emitter.NewMQTTTarget(mqttClient, mqtt.Topics{}.NodeEvent(), byte(cfg.MQTT.QoS), 0, log)
		defer func() {
			eventTarget.Close()
			if dropped := eventTarget.Dropped(); dropped > 0 {
				log.Warn("MQTT event publisher dropped events", "dropped", dropped)
			}
		}()
		em.AddTarget(eventTarget)
	}
	if influxClient != nil {
		em.AddTarget(emitter.MetricsTarget(influxClient))
	}

	emCtx, emCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer emCancel()
	emitterDone := make(chan error, 1)
	go func() {
		emitterDone <- em.Run(emCtx)
	}()

	hooks := &nodeHooks{
		log:     log,
		history: history.NewSQLiteRepository(db.DB),
		influx:  influxClient,
		// #nosec G115 -- QoS validated to 0-2 by config.Validate
		qos: byte(cfg.MQTT.QoS),
	}
	if mqttClient != nil {
		hooks.mqtt = mqttClient
	}

	sup, err := supervisor.New(ctx, nodeCfg, sink, hooks.options(supervisor.Options{
		Binary:            binary,
		ConfigPath:        nodePath,
		GracefulTimeout:   cfg.Supervisor.GracefulTimeout,
		ReadyTimeout:      cfg.Supervisor.ReadyTimeout,
		RelayDrainTimeout: cfg.Supervisor.RelayDrainTimeout,
	}), log)
	if err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	hooks.setNode(sup)
	hooks.publishStatus()

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Node:     sup,
		Logs:     em,
		History:  hooks.history,
		Checks:   checks,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		sup.Close() //nolint:errcheck // Startup error is what gets reported
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		sup.Close() //nolint:errcheck // Startup error is what gets reported
		return fmt.Errorf("starting API server: %w", err)
	}

	if mqttClient != nil {
		restartTopic := mqtt.Topics{}.NodeRestart()
		if err := mqttClient.Subscribe(restartTopic, hooks.qos, hooks.handleRestartCommand(context.WithoutCancel(ctx))); err != nil {
			log.Warn("remote restart unavailable", "topic", restartTopic, "error", err)
		}
	}
	if influxClient != nil {
		go hooks.reportSinkStats(emCtx, sinkStatsInterval)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"pid", sup.Stats().PID,
		"api", server.Addr(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	if closeErr := server.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}
	if closeErr := sup.Close(); closeErr != nil {
		log.Error("error stopping node", "error", closeErr)
	}

	// Closing the supervisor closed the sink; let the emitter deliver what is left.
	select {
	case <-emitterDone:
	case <-time.After(emitterDrainTimeout):
		log.Warn("emitter did not drain in time", "timeout", emitterDrainTimeout)
	}
	hooks.publishStatus()

	// Deferred calls run in reverse order:
	// 1. MQTT event publisher
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database
	// 5. Instance lock

	log.Info("mfersafe stopped")
	return nil
}

// acquireInstanceLock takes an exclusive lock so two supervisors never
// manage the same node config and database.
func acquireInstanceLock(ctx context.Context, path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	lock := flock.New(path)

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("acquiring instance lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("another mfersafe instance holds %s", path)
	}
	return lock, nil
}
