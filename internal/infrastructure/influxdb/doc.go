// Package influxdb provides InfluxDB connectivity for supervisor metrics.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched metric writes and health monitoring.
//
// # Measurements
//
//   - node_event: one point per relayed event, tagged by kind
//   - node_restart: outcome and duration of every restart attempt
//   - event_sink: sent/dropped/buffered counters of the outbound sink
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//
//	client.WriteNodeEvent("stderr", pid)
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered through the
// SetOnError callback. Connection and health check errors are returned directly.
package influxdb
