package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the supervisor.
const (
	MeasurementNodeEvent   = "node_event"
	MeasurementNodeRestart = "node_restart"
	MeasurementSink        = "event_sink"
)

// WriteNodeEvent counts one relayed event of the given kind.
func (c *Client) WriteNodeEvent(kind string, pid int) {
	c.WritePoint(MeasurementNodeEvent,
		map[string]string{"kind": kind},
		map[string]any{"count": 1, "pid": pid},
	)
}

// WriteRestart records the outcome of a restart attempt.
func (c *Client) WriteRestart(source string, success, rolledBack bool, duration time.Duration) {
	c.WritePoint(MeasurementNodeRestart,
		map[string]string{"source": source},
		map[string]any{
			"success":     success,
			"rolled_back": rolledBack,
			"duration_ms": duration.Milliseconds(),
		},
	)
}

// WriteSinkStats records the sink counters at a point in time.
func (c *Client) WriteSinkStats(policy string, sent, dropped uint64, buffered int) {
	c.WritePoint(MeasurementSink,
		map[string]string{"policy": policy},
		map[string]any{
			"sent":     sent,
			"dropped":  dropped,
			"buffered": buffered,
		},
	)
}

// WritePoint writes a custom point stamped with the current time.
//
// Example:
//
//	client.WritePoint("node_event",
//	    map[string]string{"kind": "stderr"},
//	    map[string]any{"count": 1})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
