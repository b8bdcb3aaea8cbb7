package ingest

import (
	"testing"
	"time"

	"github.com/oakmere/fleetstate/internal/state"
)

// recordingWriter captures archive writes.
type recordingWriter struct {
	measurements []string
	locations    []string
	alerts       []string
}

func (w *recordingWriter) WriteMeasurement(deviceID, assignmentID, name string, value float64, eventDate time.Time) {
	w.measurements = append(w.measurements, deviceID+"/"+assignmentID+"/"+name)
}

func (w *recordingWriter) WriteLocation(deviceID, assignmentID string, latitude, longitude, elevation float64, eventDate time.Time) {
	w.locations = append(w.locations, deviceID+"/"+assignmentID)
}

func (w *recordingWriter) WriteAlert(deviceID, assignmentID, alertType, level, message string, eventDate time.Time) {
	w.alerts = append(w.alerts, deviceID+"/"+assignmentID+"/"+alertType)
}

func TestArchiver(t *testing.T) {
	st := &state.DeviceState{
		ID:                 "state-1",
		DeviceID:           "device-7",
		DeviceAssignmentID: "assignment-1",
	}
	when := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("archives every event in the batch", func(t *testing.T) {
		writer := &recordingWriter{}
		archiver := NewArchiver(writer)

		archiver.StateChanged(st, &state.EventMergeRequest{
			Locations: []state.LocationEvent{
				{Event: state.Event{ID: "loc-1", EventDate: when}, Latitude: 51.5, Longitude: -0.1},
			},
			Measurements: []state.MeasurementEvent{
				{Event: state.Event{ID: "m-1", EventDate: when}, Name: "temperature", Value: 21.5},
				{Event: state.Event{ID: "m-2", EventDate: when}, Name: "fuel_level", Value: 62},
			},
			Alerts: []state.AlertEvent{
				{Event: state.Event{ID: "a-1", EventDate: when}, Type: "engine.overheat", Level: "critical", Message: "hot"},
			},
		})

		if len(writer.locations) != 1 || writer.locations[0] != "device-7/assignment-1" {
			t.Errorf("unexpected locations: %v", writer.locations)
		}
		if len(writer.measurements) != 2 || writer.measurements[0] != "device-7/assignment-1/temperature" {
			t.Errorf("unexpected measurements: %v", writer.measurements)
		}
		if len(writer.alerts) != 1 || writer.alerts[0] != "device-7/assignment-1/engine.overheat" {
			t.Errorf("unexpected alerts: %v", writer.alerts)
		}
	})

	t.Run("presence transitions are not archived", func(t *testing.T) {
		writer := &recordingWriter{}
		archiver := NewArchiver(writer)

		archiver.StateChanged(st, nil)

		if len(writer.measurements)+len(writer.locations)+len(writer.alerts) != 0 {
			t.Errorf("expected no writes, got %+v", writer)
		}
	})
}
