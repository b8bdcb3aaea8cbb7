package ingest

import (
	"encoding/json"

	"github.com/oakmere/fleetstate/internal/infrastructure/mqtt"
	"github.com/oakmere/fleetstate/internal/state"
)

// MessagePublisher is the slice of the MQTT client the publisher needs.
type MessagePublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Publisher pushes committed state changes back onto the broker. It
// implements state.Listener: merged records go to the record's update
// topic as retained messages so late subscribers see the current state,
// and presence transitions go to the presence topic.
type Publisher struct {
	client MessagePublisher
	topics mqtt.Topics
	qos    byte
	logger Logger
}

// NewPublisher creates a state change publisher.
func NewPublisher(client MessagePublisher, topics mqtt.Topics, qos byte) *Publisher {
	return &Publisher{
		client: client,
		topics: topics,
		qos:    qos,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// StateChanged publishes the updated record. Publish failures are logged
// rather than propagated; the record is already committed and the next
// change republishes the full state anyway.
func (p *Publisher) StateChanged(st *state.DeviceState, merged *state.EventMergeRequest) {
	payload, err := json.Marshal(st)
	if err != nil {
		p.logger.Error("marshalling state for publish", "state_id", st.ID, "error", err)
		return
	}

	topic := p.topics.StateUpdated(st.ID)
	if merged == nil {
		topic = p.topics.StatePresence(st.ID)
	}

	if err := p.client.Publish(topic, payload, p.qos, merged != nil); err != nil {
		p.logger.Warn("publishing state change", "topic", topic, "error", err)
	}
}
