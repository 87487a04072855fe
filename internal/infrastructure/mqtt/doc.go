// Package mqtt provides MQTT client connectivity for the mfersafe supervisor.
//
// This package manages:
//   - Connection to the broker, with auto-reconnect once a session is up
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// The supervisor publishes every node event to mfersafe/node/event, keeps a
// retained snapshot on mfersafe/node/status and accepts restart commands on
// mfersafe/command/node/restart.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) for any broker off the local host
//   - The restart command topic should be write-restricted by the broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, log)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.NodeRestart(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("restart requested: %s", payload)
//	        return nil
//	    })
package mqtt
