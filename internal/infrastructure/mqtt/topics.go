package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of the fleetstate topic hierarchy.
// Deployments sharing a broker override it via ingest.topic_prefix.
const DefaultTopicPrefix = "fleetstate"

// Topics provides builders for fleetstate MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Prefix: cfg.Ingest.TopicPrefix}
//	pattern := topics.AllIngest()
//	// Returns: "fleetstate/ingest/+"
type Topics struct {
	// Prefix overrides DefaultTopicPrefix when non-empty.
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix != "" {
		return t.Prefix
	}
	return DefaultTopicPrefix
}

// Ingest returns the event batch topic for one device assignment.
//
// Example: fleetstate/ingest/assignment-token-123
func (t Topics) Ingest(assignmentToken string) string {
	return fmt.Sprintf("%s/ingest/%s", t.prefix(), assignmentToken)
}

// AllIngest returns a pattern matching every assignment's ingest topic.
//
// Pattern: fleetstate/ingest/+
func (t Topics) AllIngest() string {
	return fmt.Sprintf("%s/ingest/+", t.prefix())
}

// IngestToken extracts the assignment token from an ingest topic.
// Returns false when the topic is not an ingest topic under this prefix.
func (t Topics) IngestToken(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/ingest/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// StateUpdated returns the topic on which merged state records are
// published for downstream consumers.
//
// Example: fleetstate/state/1f6b6c.../updated
func (t Topics) StateUpdated(stateID string) string {
	return fmt.Sprintf("%s/state/%s/updated", t.prefix(), stateID)
}

// StatePresence returns the topic for presence transitions of a record.
//
// Example: fleetstate/state/1f6b6c.../presence
func (t Topics) StatePresence(stateID string) string {
	return fmt.Sprintf("%s/state/%s/presence", t.prefix(), stateID)
}

// AllStateUpdates returns a pattern matching every record's update topic.
//
// Pattern: fleetstate/state/+/updated
func (t Topics) AllStateUpdates() string {
	return fmt.Sprintf("%s/state/+/updated", t.prefix())
}

// SystemStatus returns the service status topic used for online/offline
// announcements and the LWT.
//
// Example: fleetstate/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}
