package state

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the device_states table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// Create device_states table matching the schema
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
		CREATE INDEX idx_device_states_device ON device_states(device_id);
		CREATE INDEX idx_device_states_interaction ON device_states(last_interaction_date);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testState creates a state record for persistence tests.
func testState(id, deviceID, assignmentID string, lastInteraction time.Time) *DeviceState {
	return &DeviceState{
		ID:                      id,
		DeviceID:                deviceID,
		DeviceAssignmentID:      assignmentID,
		LastInteractionDate:     lastInteraction,
		LastMeasurementEventIDs: map[string]string{},
		LastAlertEventIDs:       map[string]string{},
		RecentLocations:         []RecentLocation{},
		RecentMeasurements:      map[string]RecentMeasurement{},
		RecentAlerts:            map[string]RecentAlert{},
	}
}

func TestSQLiteCreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	t.Run("roundtrips a full record", func(t *testing.T) {
		missing := at(2)
		st := testState("state-1", "device-1", "assignment-1", at(5))
		st.DeviceTypeID = "type-1"
		st.CustomerID = "customer-1"
		st.AreaID = "area-1"
		st.AssetID = "asset-1"
		st.PresenceMissingDate = &missing
		st.LastLocationEventID = "loc-9"
		st.LastMeasurementEventIDs = map[string]string{"temperature": "m-9"}
		st.LastAlertEventIDs = map[string]string{"fuel.low": "a-9"}
		st.RecentLocations = []RecentLocation{
			{EventID: "loc-9", Latitude: 51.5, Longitude: -0.1, EventDate: at(5)},
		}
		st.RecentMeasurements = map[string]RecentMeasurement{
			"temperature": {
				EventID: "m-9", Name: "temperature", Value: 21.5, EventDate: at(5),
				MaxValue: 24, MaxValueDate: at(3), MinValue: 18, MinValueDate: at(1),
			},
		}
		st.RecentAlerts = map[string]RecentAlert{
			"fuel.low": {EventID: "a-9", Type: "fuel.low", Level: "warning", EventDate: at(4)},
		}

		if err := repo.Create(ctx, st); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "state-1")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.DeviceID != "device-1" || got.DeviceTypeID != "type-1" || got.CustomerID != "customer-1" {
			t.Errorf("identity fields = %s/%s/%s", got.DeviceID, got.DeviceTypeID, got.CustomerID)
		}
		if !got.LastInteractionDate.Equal(at(5)) {
			t.Errorf("LastInteractionDate = %v, want %v", got.LastInteractionDate, at(5))
		}
		if got.PresenceMissingDate == nil || !got.PresenceMissingDate.Equal(at(2)) {
			t.Errorf("PresenceMissingDate = %v, want %v", got.PresenceMissingDate, at(2))
		}
		if len(got.RecentLocations) != 1 || got.RecentLocations[0].EventID != "loc-9" {
			t.Errorf("RecentLocations = %+v", got.RecentLocations)
		}
		entry := got.RecentMeasurements["temperature"]
		if entry.MaxValue != 24 || !entry.MaxValueDate.Equal(at(3)) {
			t.Errorf("measurement extrema = %v at %v", entry.MaxValue, entry.MaxValueDate)
		}
		if got.RecentAlerts["fuel.low"].Level != "warning" {
			t.Errorf("RecentAlerts = %+v", got.RecentAlerts)
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Error("timestamps not set")
		}
	})

	t.Run("missing record returns ErrStateNotFound", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, "no-such"); !errors.Is(err, ErrStateNotFound) {
			t.Errorf("GetByID() error = %v, want ErrStateNotFound", err)
		}
	})

	t.Run("duplicate assignment returns ErrStateExists", func(t *testing.T) {
		dup := testState("state-2", "device-2", "assignment-1", at(1))
		if err := repo.Create(ctx, dup); !errors.Is(err, ErrStateExists) {
			t.Errorf("Create() error = %v, want ErrStateExists", err)
		}
	})

	t.Run("multiple unassigned records allowed", func(t *testing.T) {
		first := testState("state-3", "device-3", "", at(1))
		second := testState("state-4", "device-4", "", at(1))
		if err := repo.Create(ctx, first); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := repo.Create(ctx, second); err != nil {
			t.Errorf("Create() second unassigned error = %v", err)
		}
	})
}

func TestSQLiteGetByAssignment(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testState("state-1", "device-1", "assignment-1", at(1))); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByAssignment(ctx, "assignment-1")
	if err != nil {
		t.Fatalf("GetByAssignment() error = %v", err)
	}
	if got.ID != "state-1" {
		t.Errorf("ID = %q, want state-1", got.ID)
	}

	if _, err := repo.GetByAssignment(ctx, "no-such"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("GetByAssignment() error = %v, want ErrStateNotFound", err)
	}
}

func TestSQLiteListByDevice(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for _, st := range []*DeviceState{
		testState("state-1", "device-1", "assignment-1", at(1)),
		testState("state-2", "device-1", "assignment-2", at(5)),
		testState("state-3", "device-2", "assignment-3", at(3)),
	} {
		if err := repo.Create(ctx, st); err != nil {
			t.Fatalf("Create(%s) error = %v", st.ID, err)
		}
	}

	got, err := repo.ListByDevice(ctx, "device-1")
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "state-2" || got[1].ID != "state-1" {
		t.Errorf("order = %s, %s; want state-2, state-1", got[0].ID, got[1].ID)
	}

	empty, err := repo.ListByDevice(ctx, "no-such")
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("len = %d, want 0", len(empty))
	}
}

func TestSQLiteUpdateAndDelete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	st := testState("state-1", "device-1", "assignment-1", at(1))
	if err := repo.Create(ctx, st); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("update persists changes", func(t *testing.T) {
		st.LastInteractionDate = at(8)
		st.RecentMeasurements["temperature"] = RecentMeasurement{
			EventID: "m-1", Name: "temperature", Value: 20, EventDate: at(8),
			MaxValue: 20, MaxValueDate: at(8), MinValue: 20, MinValueDate: at(8),
		}
		if err := repo.Update(ctx, st); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "state-1")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if !got.LastInteractionDate.Equal(at(8)) {
			t.Errorf("LastInteractionDate = %v, want %v", got.LastInteractionDate, at(8))
		}
		if got.RecentMeasurements["temperature"].Value != 20 {
			t.Errorf("RecentMeasurements = %+v", got.RecentMeasurements)
		}
	})

	t.Run("update of missing record returns ErrStateNotFound", func(t *testing.T) {
		ghost := testState("no-such", "device-1", "", at(1))
		if err := repo.Update(ctx, ghost); !errors.Is(err, ErrStateNotFound) {
			t.Errorf("Update() error = %v, want ErrStateNotFound", err)
		}
	})

	t.Run("delete removes record", func(t *testing.T) {
		if err := repo.Delete(ctx, "state-1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := repo.GetByID(ctx, "state-1"); !errors.Is(err, ErrStateNotFound) {
			t.Errorf("GetByID() after delete error = %v, want ErrStateNotFound", err)
		}
		if err := repo.Delete(ctx, "state-1"); !errors.Is(err, ErrStateNotFound) {
			t.Errorf("second Delete() error = %v, want ErrStateNotFound", err)
		}
	})
}

func TestSQLiteSearch(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	missing := at(2)
	records := []*DeviceState{
		testState("state-1", "device-1", "assignment-1", at(1)),
		testState("state-2", "device-2", "assignment-2", at(3)),
		testState("state-3", "device-3", "assignment-3", at(5)),
	}
	records[0].CustomerID = "customer-1"
	records[1].CustomerID = "customer-1"
	records[1].AreaID = "area-1"
	records[2].CustomerID = "customer-2"
	records[2].PresenceMissingDate = &missing
	for _, st := range records {
		if err := repo.Create(ctx, st); err != nil {
			t.Fatalf("Create(%s) error = %v", st.ID, err)
		}
	}

	t.Run("unconstrained search returns everything newest first", func(t *testing.T) {
		got, err := repo.Search(ctx, ResolvedCriteria{})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if got.Total != 3 || len(got.Results) != 3 {
			t.Fatalf("total = %d, len = %d, want 3, 3", got.Total, len(got.Results))
		}
		if got.Results[0].ID != "state-3" || got.Results[2].ID != "state-1" {
			t.Errorf("order = %s..%s, want state-3..state-1", got.Results[0].ID, got.Results[2].ID)
		}
	})

	t.Run("filters by customer dimension", func(t *testing.T) {
		got, err := repo.Search(ctx, ResolvedCriteria{CustomerIDs: []string{"customer-1"}})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if got.Total != 2 {
			t.Errorf("total = %d, want 2", got.Total)
		}
	})

	t.Run("dimensions combine with AND", func(t *testing.T) {
		got, err := repo.Search(ctx, ResolvedCriteria{
			CustomerIDs: []string{"customer-1"},
			AreaIDs:     []string{"area-1"},
		})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if got.Total != 1 || got.Results[0].ID != "state-2" {
			t.Errorf("results = %+v, want only state-2", got.Results)
		}
	})

	t.Run("empty non-nil dimension matches nothing", func(t *testing.T) {
		got, err := repo.Search(ctx, ResolvedCriteria{DeviceIDs: []string{}})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if got.Total != 0 || len(got.Results) != 0 {
			t.Errorf("total = %d, len = %d, want 0, 0", got.Total, len(got.Results))
		}
	})

	t.Run("interaction date cutoff", func(t *testing.T) {
		cutoff := at(4)
		got, err := repo.Search(ctx, ResolvedCriteria{LastInteractionDateBefore: &cutoff})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if got.Total != 2 {
			t.Errorf("total = %d, want 2", got.Total)
		}
	})

	t.Run("exclude presence missing", func(t *testing.T) {
		got, err := repo.Search(ctx, ResolvedCriteria{ExcludePresenceMissing: true})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if got.Total != 2 {
			t.Errorf("total = %d, want 2", got.Total)
		}
		for _, st := range got.Results {
			if st.PresenceMissingDate != nil {
				t.Errorf("record %s has presence missing set", st.ID)
			}
		}
	})

	t.Run("paging slices results but reports full total", func(t *testing.T) {
		page1, err := repo.Search(ctx, ResolvedCriteria{PageNumber: 1, PageSize: 2})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if page1.Total != 3 || len(page1.Results) != 2 {
			t.Fatalf("page1 total = %d, len = %d, want 3, 2", page1.Total, len(page1.Results))
		}

		page2, err := repo.Search(ctx, ResolvedCriteria{PageNumber: 2, PageSize: 2})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(page2.Results) != 1 || page2.Results[0].ID != "state-1" {
			t.Errorf("page2 = %+v, want only state-1", page2.Results)
		}
	})
}

func TestSQLiteInTransaction(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		err := repo.InTransaction(ctx, func(tx Repository) error {
			return tx.Create(ctx, testState("state-1", "device-1", "assignment-1", at(1)))
		})
		if err != nil {
			t.Fatalf("InTransaction() error = %v", err)
		}
		if _, err := repo.GetByID(ctx, "state-1"); err != nil {
			t.Errorf("GetByID() after commit error = %v", err)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.InTransaction(ctx, func(tx Repository) error {
			if err := tx.Create(ctx, testState("state-2", "device-2", "assignment-2", at(1))); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("InTransaction() error = %v, want boom", err)
		}
		if _, err := repo.GetByID(ctx, "state-2"); !errors.Is(err, ErrStateNotFound) {
			t.Errorf("GetByID() after rollback error = %v, want ErrStateNotFound", err)
		}
	})

	t.Run("nested call reuses transaction", func(t *testing.T) {
		err := repo.InTransaction(ctx, func(tx Repository) error {
			return tx.InTransaction(ctx, func(inner Repository) error {
				return inner.Create(ctx, testState("state-3", "device-3", "assignment-3", at(1)))
			})
		})
		if err != nil {
			t.Fatalf("InTransaction() error = %v", err)
		}
		if _, err := repo.GetByID(ctx, "state-3"); err != nil {
			t.Errorf("GetByID() error = %v", err)
		}
	})
}
