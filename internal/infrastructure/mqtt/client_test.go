package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/mfersafe-core/internal/infrastructure/config"
)

// Broker-backed behaviour is exercised end to end by the supervisor binary;
// these tests cover everything that does not need a live connection.

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "mfersafe-test",
		},
		Auth: config.MQTTAuthConfig{
			Username: "user",
			Password: "pass",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			MaxDelay: 5,
		},
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"node event", topics.NodeEvent(), "mfersafe/node/event"},
		{"node status", topics.NodeStatus(), "mfersafe/node/status"},
		{"restart command", topics.NodeRestart(), "mfersafe/command/node/restart"},
		{"restart result", topics.NodeRestartResult(), "mfersafe/command/node/restart/result"},
		{"system status", topics.SystemStatus(), "mfersafe/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestValidatePublishTopic(t *testing.T) {
	tests := []struct {
		topic   string
		wantErr bool
	}{
		{"mfersafe/node/event", false},
		{"", true},
		{"mfersafe/+/event", true},
		{"mfersafe/#", true},
	}

	for _, tt := range tests {
		err := ValidatePublishTopic(tt.topic)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePublishTopic(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
		}
	}
}

func TestBrokerURL(t *testing.T) {
	cfg := testConfig()
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1883" {
		t.Errorf("brokerURL() = %q, want tcp://127.0.0.1:1883", got)
	}

	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	if got := brokerURL(cfg); got != "ssl://127.0.0.1:8883" {
		t.Errorf("brokerURL() = %q, want ssl://127.0.0.1:8883", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "mfersafe-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
	if opts.ConnectRetry {
		t.Error("the first connect should fail fast, not retry")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("expected TLS 1.2 minimum when TLS is enabled")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "mfersafe-test")

	if !opts.WillEnabled || opts.WillTopic != "mfersafe/system/status" || !opts.WillRetained {
		t.Errorf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var payload map[string]string
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if payload["status"] != "offline" || payload["reason"] != "unexpected_disconnect" {
		t.Errorf("will payload = %v", payload)
	}
}

func TestStatusPayload_EscapesClientID(t *testing.T) {
	b := statusPayload("online", `id"with"quotes`, "")

	var payload map[string]string
	if err := json.Unmarshal(b, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["client_id"] != `id"with"quotes` {
		t.Errorf("client_id = %q", payload["client_id"])
	}
	if _, ok := payload["reason"]; ok {
		t.Error("empty reason should be omitted")
	}
}

func TestPublish_ValidatesBeforeConnection(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: map[string]subscription{}}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 0, ErrInvalidTopic},
		{"wildcard topic", "mfersafe/#", nil, 0, ErrInvalidTopic},
		{"bad qos", "mfersafe/node/event", nil, 3, ErrInvalidQoS},
		{"oversize", "mfersafe/node/event", []byte(strings.Repeat("x", maxPayloadSize+1)), 0, ErrPublishFailed},
		{"not connected", "mfersafe/node/event", []byte("{}"), 0, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_ValidatesBeforeConnection(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: map[string]subscription{}}
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(\"\") error = %v", err)
	}
	if err := c.Subscribe("mfersafe/command/node/restart", 5, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 5) error = %v", err)
	}
	if err := c.Subscribe("mfersafe/command/node/restart", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v", err)
	}
	if err := c.Subscribe("mfersafe/command/node/restart", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() while disconnected error = %v", err)
	}
	if len(c.subscriptions) != 0 {
		t.Error("failed subscriptions must not be tracked")
	}
}

func TestClient_HealthCheckDisconnected(t *testing.T) {
	c := &Client{cfg: testConfig()}
	if err := c.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	noopLogger
	warns  []string
	errors []string
}

func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }

func TestWrapHandler(t *testing.T) {
	log := &recordingLogger{}
	c := &Client{cfg: testConfig(), logger: log}
	msg := fakeMessage{topic: "mfersafe/command/node/restart", payload: []byte("{}")}

	var got string
	c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + " " + string(payload)
		return nil
	})(nil, msg)
	if got != "mfersafe/command/node/restart {}" {
		t.Errorf("handler saw %q", got)
	}

	c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })(nil, msg)
	if len(log.warns) != 1 {
		t.Errorf("warns = %v, want one handler error", log.warns)
	}

	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, msg)
	if len(log.errors) != 1 {
		t.Errorf("errors = %v, want one recovered panic", log.errors)
	}
}

func TestConnect_UnreachableBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1 // nothing listens here
	if _, err := Connect(cfg, nil); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
