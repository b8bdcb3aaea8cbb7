package state

import "sort"

// Engine folds event batches into state records. It is stateless apart
// from configuration and safe for concurrent use; callers are expected
// to serialise access to any single record through the repository
// transaction.
type Engine struct {
	maxMeasurementNames int
}

// NewEngine creates a merge engine. maxMeasurementNames bounds the number
// of distinct measurement names tracked per record; zero means unbounded.
func NewEngine(maxMeasurementNames int) *Engine {
	return &Engine{maxMeasurementNames: maxMeasurementNames}
}

// folds lists the per-stream fold steps in application order.
var folds = []func(*Engine, *DeviceState, *EventMergeRequest){
	(*Engine).foldLocations,
	(*Engine).foldMeasurements,
	(*Engine).foldAlerts,
}

// Apply folds the batch into the record in place. An empty batch leaves
// the record untouched; a non-empty batch advances LastInteractionDate
// to the newest folded event date and clears PresenceMissingDate.
func (e *Engine) Apply(st *DeviceState, req *EventMergeRequest) {
	if req.IsEmpty() {
		return
	}

	for _, fold := range folds {
		fold(e, st, req)
	}

	if newest := req.newestEvent(); newest.EventDate.After(st.LastInteractionDate) {
		st.LastInteractionDate = newest.EventDate
	}
	st.PresenceMissingDate = nil
}

// foldLocations merges incoming locations with the existing window,
// keeps the newest RecentLocationWindow entries, and repoints the last
// location event reference.
func (e *Engine) foldLocations(st *DeviceState, req *EventMergeRequest) {
	if len(req.Locations) == 0 {
		return
	}

	window := make([]RecentLocation, 0, len(st.RecentLocations)+len(req.Locations))
	window = append(window, st.RecentLocations...)
	for i := range req.Locations {
		ev := &req.Locations[i]
		window = append(window, RecentLocation{
			EventID:   ev.ID,
			Latitude:  ev.Latitude,
			Longitude: ev.Longitude,
			Elevation: ev.Elevation,
			EventDate: ev.EventDate,
		})
	}

	sort.SliceStable(window, func(i, j int) bool {
		return window[i].EventDate.After(window[j].EventDate)
	})
	if len(window) > RecentLocationWindow {
		window = window[:RecentLocationWindow]
	}

	st.RecentLocations = window
	st.LastLocationEventID = window[0].EventID
}

// foldMeasurements processes readings in ascending event date order so
// the entry for each name ends on the chronologically latest value while
// the extrema accumulate across every reading seen.
func (e *Engine) foldMeasurements(st *DeviceState, req *EventMergeRequest) {
	if len(req.Measurements) == 0 {
		return
	}

	incoming := make([]MeasurementEvent, len(req.Measurements))
	copy(incoming, req.Measurements)
	sort.SliceStable(incoming, func(i, j int) bool {
		return incoming[i].EventDate.Before(incoming[j].EventDate)
	})

	if st.RecentMeasurements == nil {
		st.RecentMeasurements = make(map[string]RecentMeasurement)
	}
	if st.LastMeasurementEventIDs == nil {
		st.LastMeasurementEventIDs = make(map[string]string)
	}

	for i := range incoming {
		ev := &incoming[i]
		entry, tracked := st.RecentMeasurements[ev.Name]
		if !tracked {
			if e.maxMeasurementNames > 0 && len(st.RecentMeasurements) >= e.maxMeasurementNames {
				continue
			}
			st.RecentMeasurements[ev.Name] = RecentMeasurement{
				EventID:      ev.ID,
				Name:         ev.Name,
				Value:        ev.Value,
				EventDate:    ev.EventDate,
				MaxValue:     ev.Value,
				MaxValueDate: ev.EventDate,
				MinValue:     ev.Value,
				MinValueDate: ev.EventDate,
			}
			st.LastMeasurementEventIDs[ev.Name] = ev.ID
			continue
		}

		entry.EventID = ev.ID
		entry.Value = ev.Value
		entry.EventDate = ev.EventDate
		if ev.Value > entry.MaxValue {
			entry.MaxValue = ev.Value
			entry.MaxValueDate = ev.EventDate
		}
		if ev.Value < entry.MinValue {
			entry.MinValue = ev.Value
			entry.MinValueDate = ev.EventDate
		}
		st.RecentMeasurements[ev.Name] = entry
		st.LastMeasurementEventIDs[ev.Name] = ev.ID
	}
}

// foldAlerts keeps the chronologically latest alert per alert type.
func (e *Engine) foldAlerts(st *DeviceState, req *EventMergeRequest) {
	if len(req.Alerts) == 0 {
		return
	}

	incoming := make([]AlertEvent, len(req.Alerts))
	copy(incoming, req.Alerts)
	sort.SliceStable(incoming, func(i, j int) bool {
		return incoming[i].EventDate.Before(incoming[j].EventDate)
	})

	if st.RecentAlerts == nil {
		st.RecentAlerts = make(map[string]RecentAlert)
	}
	if st.LastAlertEventIDs == nil {
		st.LastAlertEventIDs = make(map[string]string)
	}

	for i := range incoming {
		ev := &incoming[i]
		st.RecentAlerts[ev.Type] = RecentAlert{
			EventID:   ev.ID,
			Type:      ev.Type,
			Level:     ev.Level,
			Message:   ev.Message,
			EventDate: ev.EventDate,
		}
		st.LastAlertEventIDs[ev.Type] = ev.ID
	}
}
