// Package mqtt provides MQTT client connectivity for fleetstate.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is the event intake path: edge gateways publish event batches to
// per-assignment ingest topics, and fleetstate publishes merged state
// records back out for downstream consumers.
//
//	Edge Gateways → MQTT Broker → fleetstate → MQTT Broker → Consumers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Prefix: cfg.Ingest.TopicPrefix}
//	err = client.Subscribe(topics.AllIngest(), 1,
//	    func(topic string, payload []byte) error {
//	        // decode and merge the batch
//	        return nil
//	    })
package mqtt
