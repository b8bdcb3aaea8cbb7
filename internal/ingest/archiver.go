package ingest

import (
	"time"

	"github.com/oakmere/fleetstate/internal/state"
)

// EventWriter is the slice of the InfluxDB client the archiver needs.
type EventWriter interface {
	WriteMeasurement(deviceID, assignmentID, name string, value float64, eventDate time.Time)
	WriteLocation(deviceID, assignmentID string, latitude, longitude, elevation float64, eventDate time.Time)
	WriteAlert(deviceID, assignmentID, alertType, level, message string, eventDate time.Time)
}

// Archiver streams merged events into the time-series archive. It
// implements state.Listener: every event in a committed batch is written
// as a point stamped with its event date, so the archive keeps the full
// history that state records truncate.
//
// Presence transitions carry no events and are not archived.
type Archiver struct {
	writer EventWriter
}

// NewArchiver creates a telemetry archiver over the given writer.
func NewArchiver(writer EventWriter) *Archiver {
	return &Archiver{writer: writer}
}

// StateChanged archives the batch that produced the change. Writes are
// non-blocking; delivery failures surface through the client's error
// callback.
func (a *Archiver) StateChanged(st *state.DeviceState, merged *state.EventMergeRequest) {
	if merged == nil {
		return
	}

	for _, loc := range merged.Locations {
		a.writer.WriteLocation(st.DeviceID, st.DeviceAssignmentID, loc.Latitude, loc.Longitude, loc.Elevation, loc.EventDate)
	}
	for _, m := range merged.Measurements {
		a.writer.WriteMeasurement(st.DeviceID, st.DeviceAssignmentID, m.Name, m.Value, m.EventDate)
	}
	for _, alert := range merged.Alerts {
		a.writer.WriteAlert(st.DeviceID, st.DeviceAssignmentID, alert.Type, alert.Level, alert.Message, alert.EventDate)
	}
}
