package mqtt

import "strings"

// TopicPrefix is the root of every mfersafe topic.
const TopicPrefix = "mfersafe"

// Topics provides builders for mfersafe MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.NodeEvent() // "mfersafe/node/event"
type Topics struct{}

// NodeEvent carries every relayed node event, one message per event.
func (Topics) NodeEvent() string {
	return TopicPrefix + "/node/event"
}

// NodeStatus carries the retained supervisor status snapshot.
func (Topics) NodeStatus() string {
	return TopicPrefix + "/node/status"
}

// NodeRestart is the command topic that asks for a restart with the config
// in the payload.
func (Topics) NodeRestart() string {
	return TopicPrefix + "/command/node/restart"
}

// NodeRestartResult carries the outcome of each restart command.
func (Topics) NodeRestartResult() string {
	return TopicPrefix + "/command/node/restart/result"
}

// SystemStatus carries the supervisor's online/offline state (also the LWT topic).
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ValidatePublishTopic rejects empty topics and topics containing wildcards.
func ValidatePublishTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}
	return nil
}
