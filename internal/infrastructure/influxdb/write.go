package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteMeasurement archives a single measurement event.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Points carry the event date, not the write time, so late-arriving events
// land at their true position in the series.
//
// Parameters:
//   - deviceID: Internal device identifier
//   - assignmentID: Internal assignment identifier (empty for unassigned devices)
//   - name: The measurement name (e.g., "temperature", "fuel_level")
//   - value: The numeric reading
//   - eventDate: When the reading was taken on the device
func (c *Client) WriteMeasurement(deviceID, assignmentID, name string, value float64, eventDate time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"measurements",
		map[string]string{
			"device_id":     deviceID,
			"assignment_id": assignmentID,
			"name":          name,
		},
		map[string]interface{}{
			"value": value,
		},
		eventDate,
	)

	c.writeAPI.WritePoint(point)
}

// WriteLocation archives a single location event.
//
// Parameters:
//   - deviceID: Internal device identifier
//   - assignmentID: Internal assignment identifier
//   - latitude, longitude, elevation: The reported position
//   - eventDate: When the position was recorded on the device
func (c *Client) WriteLocation(deviceID, assignmentID string, latitude, longitude, elevation float64, eventDate time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"locations",
		map[string]string{
			"device_id":     deviceID,
			"assignment_id": assignmentID,
		},
		map[string]interface{}{
			"latitude":  latitude,
			"longitude": longitude,
			"elevation": elevation,
		},
		eventDate,
	)

	c.writeAPI.WritePoint(point)
}

// WriteAlert archives a single alert event.
//
// Alert type and level are tags so dashboards can group and filter on them;
// the free-text message is a field to keep tag cardinality low.
//
// Parameters:
//   - deviceID: Internal device identifier
//   - assignmentID: Internal assignment identifier
//   - alertType: The alert category (e.g., "engine.overheat")
//   - level: Severity (e.g., "warning", "critical")
//   - message: Human-readable alert text
//   - eventDate: When the alert fired on the device
func (c *Client) WriteAlert(deviceID, assignmentID, alertType, level, message string, eventDate time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"alerts",
		map[string]string{
			"device_id":     deviceID,
			"assignment_id": assignmentID,
			"type":          alertType,
			"level":         level,
		},
		map[string]interface{}{
			"message": message,
		},
		eventDate,
	)

	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this for measurements that don't fit the event helpers.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
