package state

import "time"

// RecentLocationWindow is the number of location entries retained per
// state record. Older entries are truncated on merge.
const RecentLocationWindow = 3

// DeviceState is the materialised projection of a device assignment's
// recent activity. One record exists per assignment.
type DeviceState struct {
	ID string `json:"id"`

	// Identity references. DeviceID is always set; the remaining
	// references are empty when the dimension is not known.
	DeviceID           string `json:"device_id"`
	DeviceTypeID       string `json:"device_type_id,omitempty"`
	DeviceAssignmentID string `json:"device_assignment_id,omitempty"`
	CustomerID         string `json:"customer_id,omitempty"`
	AreaID             string `json:"area_id,omitempty"`
	AssetID            string `json:"asset_id,omitempty"`

	// LastInteractionDate is the event date of the newest event ever
	// folded into this record. It only moves forward.
	LastInteractionDate time.Time `json:"last_interaction_date"`

	// PresenceMissingDate is set by the presence monitor when the device
	// has been silent past the missing interval, and cleared again by the
	// next non-empty merge.
	PresenceMissingDate *time.Time `json:"presence_missing_date,omitempty"`

	// Pointers to the newest folded event per stream. Measurement and
	// alert pointers are keyed by measurement name and alert type.
	LastLocationEventID     string            `json:"last_location_event_id,omitempty"`
	LastMeasurementEventIDs map[string]string `json:"last_measurement_event_ids"`
	LastAlertEventIDs       map[string]string `json:"last_alert_event_ids"`

	// Bounded recent activity windows.
	RecentLocations    []RecentLocation             `json:"recent_locations"`
	RecentMeasurements map[string]RecentMeasurement `json:"recent_measurements"`
	RecentAlerts       map[string]RecentAlert       `json:"recent_alerts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecentLocation is one entry in the location window, newest first.
type RecentLocation struct {
	EventID   string    `json:"event_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Elevation float64   `json:"elevation"`
	EventDate time.Time `json:"event_date"`
}

// RecentMeasurement summarises one measurement name: the latest value
// plus running extrema over everything folded under that name.
type RecentMeasurement struct {
	EventID      string    `json:"event_id"`
	Name         string    `json:"name"`
	Value        float64   `json:"value"`
	EventDate    time.Time `json:"event_date"`
	MaxValue     float64   `json:"max_value"`
	MaxValueDate time.Time `json:"max_value_date"`
	MinValue     float64   `json:"min_value"`
	MinValueDate time.Time `json:"min_value_date"`
}

// RecentAlert is the most recent alert folded for a given alert type.
type RecentAlert struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message,omitempty"`
	EventDate time.Time `json:"event_date"`
}

// Event carries the fields common to every event kind. Identity
// references are optional; when present on the newest event of a batch
// they seed a newly created state record.
type Event struct {
	ID           string    `json:"id,omitempty"`
	DeviceID     string    `json:"device_id,omitempty"`
	AssignmentID string    `json:"assignment_id,omitempty"`
	CustomerID   string    `json:"customer_id,omitempty"`
	AreaID       string    `json:"area_id,omitempty"`
	AssetID      string    `json:"asset_id,omitempty"`
	EventDate    time.Time `json:"event_date"`
	ReceivedDate time.Time `json:"received_date,omitempty"`
}

// LocationEvent is a geographic position report.
type LocationEvent struct {
	Event
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
}

// MeasurementEvent is a single named numeric reading.
type MeasurementEvent struct {
	Event
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// AlertEvent is a typed alert raised by or about a device.
type AlertEvent struct {
	Event
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message,omitempty"`
}

// EventMergeRequest is a batch of events to fold into one state record.
// Any of the three streams may be empty.
type EventMergeRequest struct {
	Locations    []LocationEvent    `json:"locations,omitempty"`
	Measurements []MeasurementEvent `json:"measurements,omitempty"`
	Alerts       []AlertEvent       `json:"alerts,omitempty"`
}

// IsEmpty reports whether the batch carries no events at all.
func (r *EventMergeRequest) IsEmpty() bool {
	return r == nil || (len(r.Locations) == 0 && len(r.Measurements) == 0 && len(r.Alerts) == 0)
}

// newestEvent returns the base fields of the event with the latest event
// date across all three streams, or nil for an empty batch.
func (r *EventMergeRequest) newestEvent() *Event {
	var newest *Event
	consider := func(ev *Event) {
		if newest == nil || ev.EventDate.After(newest.EventDate) {
			newest = ev
		}
	}
	for i := range r.Locations {
		consider(&r.Locations[i].Event)
	}
	for i := range r.Measurements {
		consider(&r.Measurements[i].Event)
	}
	for i := range r.Alerts {
		consider(&r.Alerts[i].Event)
	}
	return newest
}

// CreateRequest carries the fields accepted when creating a state record.
type CreateRequest struct {
	DeviceID            string     `json:"device_id"`
	DeviceTypeID        string     `json:"device_type_id,omitempty"`
	DeviceAssignmentID  string     `json:"device_assignment_id,omitempty"`
	CustomerID          string     `json:"customer_id,omitempty"`
	AreaID              string     `json:"area_id,omitempty"`
	AssetID             string     `json:"asset_id,omitempty"`
	LastInteractionDate *time.Time `json:"last_interaction_date,omitempty"`
	PresenceMissingDate *time.Time `json:"presence_missing_date,omitempty"`
}

// UpdateRequest carries optional identity and timestamp overrides for an
// existing record. Nil fields are left unchanged; empty strings clear the
// corresponding reference.
type UpdateRequest struct {
	DeviceID            *string    `json:"device_id,omitempty"`
	DeviceTypeID        *string    `json:"device_type_id,omitempty"`
	DeviceAssignmentID  *string    `json:"device_assignment_id,omitempty"`
	CustomerID          *string    `json:"customer_id,omitempty"`
	AreaID              *string    `json:"area_id,omitempty"`
	AssetID             *string    `json:"asset_id,omitempty"`
	LastInteractionDate *time.Time `json:"last_interaction_date,omitempty"`
	PresenceMissingDate *time.Time `json:"presence_missing_date,omitempty"`
}

// SearchCriteria filters state records by token-addressed dimensions.
// A nil token slice leaves that dimension unconstrained; tokens that do
// not resolve are skipped.
type SearchCriteria struct {
	LastInteractionDateBefore *time.Time `json:"last_interaction_date_before,omitempty"`
	ExcludePresenceMissing    bool       `json:"exclude_presence_missing,omitempty"`

	DeviceTokens           []string `json:"device_tokens,omitempty"`
	DeviceTypeTokens       []string `json:"device_type_tokens,omitempty"`
	DeviceAssignmentTokens []string `json:"device_assignment_tokens,omitempty"`
	CustomerTokens         []string `json:"customer_tokens,omitempty"`
	AreaTokens             []string `json:"area_tokens,omitempty"`
	AssetTokens            []string `json:"asset_tokens,omitempty"`

	// PageNumber is 1-based. Zero values select the defaults.
	PageNumber int `json:"page_number,omitempty"`
	PageSize   int `json:"page_size,omitempty"`
}
