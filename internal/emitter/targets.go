package emitter

import (
	"encoding/json"
	"sync"
)

// defaultQueueSize is the MQTT target's outbound queue length.
const defaultQueueSize = 256

// Broadcaster is implemented by the WebSocket hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// BroadcastTarget sends each event to b on the event's channel.
func BroadcastTarget(b Broadcaster) Target {
	return TargetFunc(func(e Emitted) {
		b.Broadcast(e.Channel, e)
	})
}

// NodeEventWriter is implemented by the InfluxDB client.
type NodeEventWriter interface {
	WriteNodeEvent(kind string, pid int)
}

// MetricsTarget counts events by kind.
func MetricsTarget(w NodeEventWriter) Target {
	return TargetFunc(func(e Emitted) {
		w.WriteNodeEvent(string(e.Kind), e.PID)
	})
}

// Publisher is implemented by the MQTT client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTTarget publishes events from its own goroutine so a slow or
// disconnected broker never stalls the emitter.
type MQTTTarget struct {
	pub    Publisher
	topic  string
	qos    byte
	logger Logger

	queue chan Emitted
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	dropped uint64
}

// NewMQTTTarget starts a publisher goroutine for topic.
func NewMQTTTarget(pub Publisher, topic string, qos byte, queueSize int, logger Logger) *MQTTTarget {
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}

	t := &MQTTTarget{
		pub:    pub,
		topic:  topic,
		qos:    qos,
		logger: logger,
		queue:  make(chan Emitted, queueSize),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

// Emit queues e, dropping it if the queue is full.
func (t *MQTTTarget) Emit(e Emitted) {
	select {
	case <-t.done:
		return
	default:
	}

	select {
	case t.queue <- e:
	default:
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (t *MQTTTarget) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Close stops the publisher after the queued events are sent.
func (t *MQTTTarget) Close() {
	t.once.Do(func() {
		close(t.done)
	})
}

func (t *MQTTTarget) run() {
	for {
		select {
		case e := <-t.queue:
			t.publish(e)
		case <-t.done:
			for {
				select {
				case e := <-t.queue:
					t.publish(e)
				default:
					return
				}
			}
		}
	}
}

func (t *MQTTTarget) publish(e Emitted) {
	payload, err := json.Marshal(e)
	if err != nil {
		t.logger.Error("failed to encode node event", "error", err)
		return
	}
	if err := t.pub.Publish(t.topic, payload, t.qos, false); err != nil {
		t.logger.Debug("node event not published", "topic", t.topic, "seq", e.Seq, "error", err)
	}
}
