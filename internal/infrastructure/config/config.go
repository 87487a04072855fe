package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Overflow policies for the node event sink.
const (
	// OverflowBlock makes relays wait for the consumer when the sink is full.
	OverflowBlock = "block"

	// OverflowDropOldest evicts the oldest buffered event to make room.
	OverflowDropOldest = "drop_oldest"
)

// Config is the root configuration structure for the mfersafe supervisor.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

// SupervisorConfig controls how the node sidecar is launched and observed.
type SupervisorConfig struct {
	// Sidecar is the node executable. A bare name is resolved next to the
	// supervisor binary first, then on $PATH.
	// Default: "mfer-node"
	Sidecar string `yaml:"sidecar"`

	// NodeConfigPath is where the node's argument set is persisted as JSON.
	// Empty means $HOME/.config/mfersafe.json.
	NodeConfigPath string `yaml:"node_config_path"`

	// SinkBuffer is the capacity of the outbound event channel.
	// Default: 1000
	SinkBuffer int `yaml:"sink_buffer"`

	// OverflowPolicy decides what happens when the sink is full: "block" or "drop_oldest".
	// Default: "block"
	OverflowPolicy string `yaml:"overflow_policy"`

	// GracefulTimeout is how long the node gets to exit after SIGTERM before SIGKILL.
	// Default: 5s
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`

	// ReadyTimeout, when positive, waits for the node's listen address to accept
	// TCP connections after each spawn. Zero disables the check.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`

	// RelayDrainTimeout bounds how long a restart waits for the old relay to
	// flush trailing output before the new process is started.
	// Default: 2s
	RelayDrainTimeout time.Duration `yaml:"relay_drain_timeout"`

	// LogBufferSize is how many emitted lines are retained for late subscribers.
	// Default: 1000
	LogBufferSize int `yaml:"log_buffer_size"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	// Enabled turns on event fan-out and remote restart commands over MQTT.
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds the backoff after a lost session, in seconds.
type MQTTReconnectConfig struct {
	MaxDelay int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
// An empty secret leaves the API unauthenticated, which is only acceptable
// while it is bound to loopback.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// minJWTSecretLength is the shortest HMAC secret accepted when auth is enabled.
const minJWTSecretLength = 32

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MFERSAFE_SECTION_KEY
// For example: MFERSAFE_SUPERVISOR_SIDECAR, MFERSAFE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Supervisor: SupervisorConfig{
			Sidecar:           "mfer-node",
			SinkBuffer:        1000,
			OverflowPolicy:    OverflowBlock,
			GracefulTimeout:   5 * time.Second,
			RelayDrainTimeout: 2 * time.Second,
			LogBufferSize:     1000,
		},
		Database: DatabaseConfig{
			Path:        "./data/mfersafe.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "mfersafe",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				MaxDelay: 60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 10546,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "mfersafe",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60 * 24,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Supervisor
	if v := os.Getenv("MFERSAFE_SUPERVISOR_SIDECAR"); v != "" {
		cfg.Supervisor.Sidecar = v
	}
	if v := os.Getenv("MFERSAFE_SUPERVISOR_NODE_CONFIG_PATH"); v != "" {
		cfg.Supervisor.NodeConfigPath = v
	}
	if v := os.Getenv("MFERSAFE_SUPERVISOR_OVERFLOW_POLICY"); v != "" {
		cfg.Supervisor.OverflowPolicy = v
	}

	// Database
	if v := os.Getenv("MFERSAFE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MFERSAFE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MFERSAFE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MFERSAFE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("MFERSAFE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("MFERSAFE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("MFERSAFE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("MFERSAFE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Supervisor
	if c.Supervisor.Sidecar == "" {
		errs = append(errs, "supervisor.sidecar is required")
	}
	if c.Supervisor.SinkBuffer < 1 {
		errs = append(errs, "supervisor.sink_buffer must be at least 1")
	}
	switch c.Supervisor.OverflowPolicy {
	case OverflowBlock, OverflowDropOldest:
	default:
		errs = append(errs, fmt.Sprintf("supervisor.overflow_policy %q is not one of block, drop_oldest", c.Supervisor.OverflowPolicy))
	}
	if c.Supervisor.GracefulTimeout < 0 || c.Supervisor.ReadyTimeout < 0 || c.Supervisor.RelayDrainTimeout < 0 {
		errs = append(errs, "supervisor timeouts must not be negative")
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required when mqtt is enabled")
	}

	// API
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB
	if c.InfluxDB.Enabled {
		if _, err := url.ParseRequestURI(c.InfluxDB.URL); err != nil {
			errs = append(errs, "influxdb.url must be a valid URL when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// Security: the secret is optional, but a short one is worse than none
	// because it suggests protection that is trivially forged.
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AuthEnabled reports whether API requests must carry a signed token.
func (c *Config) AuthEnabled() bool {
	return c.Security.JWT.Secret != ""
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
