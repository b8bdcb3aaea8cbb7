package presence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oakmere/fleetstate/internal/directory"
	"github.com/oakmere/fleetstate/internal/state"
)

type staticResolver struct{}

func (staticResolver) DeviceID(context.Context, string) (string, error) {
	return "", directory.ErrTokenNotFound
}
func (staticResolver) DeviceTypeID(context.Context, string) (string, error) {
	return "", directory.ErrTokenNotFound
}
func (staticResolver) AssignmentID(context.Context, string) (string, error) {
	return "", directory.ErrTokenNotFound
}
func (staticResolver) CustomerID(context.Context, string) (string, error) {
	return "", directory.ErrTokenNotFound
}
func (staticResolver) AreaID(context.Context, string) (string, error) {
	return "", directory.ErrTokenNotFound
}
func (staticResolver) AssetID(context.Context, string) (string, error) {
	return "", directory.ErrTokenNotFound
}

func setupManager(t *testing.T) *state.Manager {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE device_states (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			device_type_id TEXT,
			device_assignment_id TEXT,
			customer_id TEXT,
			area_id TEXT,
			asset_id TEXT,
			last_interaction_date TEXT NOT NULL,
			presence_missing_date TEXT,
			last_location_event_id TEXT,
			last_measurement_event_ids TEXT NOT NULL DEFAULT '{}',
			last_alert_event_ids TEXT NOT NULL DEFAULT '{}',
			recent_locations TEXT NOT NULL DEFAULT '[]',
			recent_measurements TEXT NOT NULL DEFAULT '{}',
			recent_alerts TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE UNIQUE INDEX idx_device_states_assignment ON device_states(device_assignment_id);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	return state.NewManager(state.NewSQLiteRepository(db), staticResolver{}, state.NewEngine(0))
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	manager := setupManager(t)
	monitor := NewMonitor(manager, Config{
		CheckInterval:   time.Minute,
		MissingInterval: 8 * time.Hour,
	})
	monitor.now = func() time.Time { return now }

	silentSince := now.Add(-9 * time.Hour)
	recentSince := now.Add(-time.Hour)

	silent, err := manager.CreateState(ctx, state.CreateRequest{
		DeviceID:            "device-silent",
		DeviceAssignmentID:  "assignment-1",
		LastInteractionDate: &silentSince,
	})
	if err != nil {
		t.Fatalf("CreateState() error = %v", err)
	}
	active, err := manager.CreateState(ctx, state.CreateRequest{
		DeviceID:            "device-active",
		DeviceAssignmentID:  "assignment-2",
		LastInteractionDate: &recentSince,
	})
	if err != nil {
		t.Fatalf("CreateState() error = %v", err)
	}

	t.Run("flags silent devices only", func(t *testing.T) {
		flagged, err := monitor.Sweep(ctx)
		if err != nil {
			t.Fatalf("Sweep() error = %v", err)
		}
		if flagged != 1 {
			t.Errorf("flagged = %d, want 1", flagged)
		}

		got, err := manager.GetState(ctx, silent.ID)
		if err != nil {
			t.Fatalf("GetState() error = %v", err)
		}
		if got.PresenceMissingDate == nil || !got.PresenceMissingDate.Equal(now) {
			t.Errorf("PresenceMissingDate = %v, want %v", got.PresenceMissingDate, now)
		}

		untouched, err := manager.GetState(ctx, active.ID)
		if err != nil {
			t.Fatalf("GetState() error = %v", err)
		}
		if untouched.PresenceMissingDate != nil {
			t.Error("active device flagged")
		}
	})

	t.Run("second sweep flags nothing", func(t *testing.T) {
		flagged, err := monitor.Sweep(ctx)
		if err != nil {
			t.Fatalf("Sweep() error = %v", err)
		}
		if flagged != 0 {
			t.Errorf("flagged = %d, want 0", flagged)
		}
	})

	t.Run("merge makes the device sweepable again only after silence", func(t *testing.T) {
		_, err := manager.MergeState(ctx, silent.ID, &state.EventMergeRequest{
			Measurements: []state.MeasurementEvent{{
				Event: state.Event{EventDate: now.Add(-time.Minute)},
				Name:  "temperature",
				Value: 20,
			}},
		})
		if err != nil {
			t.Fatalf("MergeState() error = %v", err)
		}

		flagged, err := monitor.Sweep(ctx)
		if err != nil {
			t.Fatalf("Sweep() error = %v", err)
		}
		if flagged != 0 {
			t.Errorf("flagged = %d, want 0 after device resumed", flagged)
		}

		got, err := manager.GetState(ctx, silent.ID)
		if err != nil {
			t.Fatalf("GetState() error = %v", err)
		}
		if got.PresenceMissingDate != nil {
			t.Error("PresenceMissingDate not cleared by merge")
		}
	})
}

func TestMonitorLifecycle(t *testing.T) {
	manager := setupManager(t)
	monitor := NewMonitor(manager, Config{CheckInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor.Start(ctx)
	monitor.Stop()
	// Second Stop must not panic.
	monitor.Stop()
}

func TestNewMonitorDefaults(t *testing.T) {
	monitor := NewMonitor(nil, Config{})
	if monitor.check != defaultCheckInterval {
		t.Errorf("check = %v, want %v", monitor.check, defaultCheckInterval)
	}
	if monitor.missing != defaultMissingInterval {
		t.Errorf("missing = %v, want %v", monitor.missing, defaultMissingInterval)
	}
}
