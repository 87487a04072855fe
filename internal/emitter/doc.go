// Package emitter consumes the node event sink and delivers every event to
// the host surfaces on the single "mfernode-event" channel.
//
// Each event is rendered once (stdout raw, stderr prefixed with "StdErr: ",
// everything else as a bracketed marker), numbered, kept in a bounded ring for
// late subscribers and handed to every registered Target in sink order.
//
// Targets must not block: the WebSocket hub drops on slow clients, the MQTT
// target queues and drops when its queue is full, the metrics target writes
// into InfluxDB's non-blocking batch API.
package emitter
