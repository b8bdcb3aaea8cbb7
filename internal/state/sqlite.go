package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// stateColumns is the column list shared by every SELECT so scanState
// stays in sync with one place.
const stateColumns = `id, device_id, device_type_id, device_assignment_id,
	customer_id, area_id, asset_id,
	last_interaction_date, presence_missing_date,
	last_location_event_id, last_measurement_event_ids, last_alert_event_ids,
	recent_locations, recent_measurements, recent_alerts,
	created_at, updated_at`

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// letting the repository run the same queries inside or outside a
// transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB // nil for a transactional view
	q  querier
}

// NewSQLiteRepository creates a new SQLite state repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, q: db}
}

// InTransaction runs fn against a transactional view of the repository.
// Nested calls reuse the enclosing transaction.
func (r *SQLiteRepository) InTransaction(ctx context.Context, fn func(Repository) error) error {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyError("beginning transaction", err)
	}

	if err := fn(&SQLiteRepository{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyError("committing transaction", err)
	}
	return nil
}

// Create inserts a new state record.
func (r *SQLiteRepository) Create(ctx context.Context, st *DeviceState) error {
	measurementIDs, alertIDs, locations, measurements, alerts, err := marshalCollections(st)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO device_states (
			id, device_id, device_type_id, device_assignment_id,
			customer_id, area_id, asset_id,
			last_interaction_date, presence_missing_date,
			last_location_event_id, last_measurement_event_ids, last_alert_event_ids,
			recent_locations, recent_measurements, recent_alerts,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID,
		st.DeviceID,
		nullable(st.DeviceTypeID),
		nullable(st.DeviceAssignmentID),
		nullable(st.CustomerID),
		nullable(st.AreaID),
		nullable(st.AssetID),
		formatTime(st.LastInteractionDate),
		nullableTime(st.PresenceMissingDate),
		nullable(st.LastLocationEventID),
		measurementIDs,
		alertIDs,
		locations,
		measurements,
		alerts,
		formatTime(st.CreatedAt),
		formatTime(st.UpdatedAt),
	)
	if err != nil {
		return classifyError("inserting state", err)
	}
	return nil
}

// GetByID returns the state record with the given ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*DeviceState, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+stateColumns+" FROM device_states WHERE id = ?", id)

	st, err := scanState(row)
	if err != nil {
		return nil, classifyError("querying state", err)
	}
	return st, nil
}

// GetByAssignment returns the state record for a device assignment.
func (r *SQLiteRepository) GetByAssignment(ctx context.Context, assignmentID string) (*DeviceState, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+stateColumns+" FROM device_states WHERE device_assignment_id = ?",
		assignmentID)

	st, err := scanState(row)
	if err != nil {
		return nil, classifyError("querying state by assignment", err)
	}
	return st, nil
}

// ListByDevice returns all state records for a device, most recently
// active first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]DeviceState, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+stateColumns+` FROM device_states
		 WHERE device_id = ?
		 ORDER BY last_interaction_date DESC`,
		deviceID)
	if err != nil {
		return nil, classifyError("querying states by device", err)
	}
	defer rows.Close()

	return collectStates(rows)
}

// Update persists all mutable fields of an existing record.
func (r *SQLiteRepository) Update(ctx context.Context, st *DeviceState) error {
	measurementIDs, alertIDs, locations, measurements, alerts, err := marshalCollections(st)
	if err != nil {
		return err
	}

	st.UpdatedAt = time.Now().UTC()

	result, err := r.q.ExecContext(ctx,
		`UPDATE device_states SET
			device_id = ?, device_type_id = ?, device_assignment_id = ?,
			customer_id = ?, area_id = ?, asset_id = ?,
			last_interaction_date = ?, presence_missing_date = ?,
			last_location_event_id = ?, last_measurement_event_ids = ?, last_alert_event_ids = ?,
			recent_locations = ?, recent_measurements = ?, recent_alerts = ?,
			updated_at = ?
		 WHERE id = ?`,
		st.DeviceID,
		nullable(st.DeviceTypeID),
		nullable(st.DeviceAssignmentID),
		nullable(st.CustomerID),
		nullable(st.AreaID),
		nullable(st.AssetID),
		formatTime(st.LastInteractionDate),
		nullableTime(st.PresenceMissingDate),
		nullable(st.LastLocationEventID),
		measurementIDs,
		alertIDs,
		locations,
		measurements,
		alerts,
		formatTime(st.UpdatedAt),
		st.ID,
	)
	if err != nil {
		return classifyError("updating state", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStateNotFound
	}
	return nil
}

// Delete removes a state record.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, "DELETE FROM device_states WHERE id = ?", id)
	if err != nil {
		return classifyError("deleting state", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStateNotFound
	}
	return nil
}

// Search returns one page of records matching the resolved criteria,
// ordered by last interaction date descending.
func (r *SQLiteRepository) Search(ctx context.Context, criteria ResolvedCriteria) (*SearchResults, error) {
	page := criteria.PageNumber
	if page < 1 {
		page = 1
	}
	size := criteria.PageSize
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	var clauses []string
	var args []any

	dimensions := []struct {
		column string
		ids    []string
	}{
		{"device_id", criteria.DeviceIDs},
		{"device_type_id", criteria.DeviceTypeIDs},
		{"device_assignment_id", criteria.DeviceAssignmentIDs},
		{"customer_id", criteria.CustomerIDs},
		{"area_id", criteria.AreaIDs},
		{"asset_id", criteria.AssetIDs},
	}
	for _, dim := range dimensions {
		if dim.ids == nil {
			continue
		}
		// Requested dimension with no resolvable tokens matches nothing.
		if len(dim.ids) == 0 {
			return &SearchResults{Total: 0, Results: []DeviceState{}}, nil
		}
		placeholders := strings.Repeat("?, ", len(dim.ids)-1) + "?"
		clauses = append(clauses, dim.column+" IN ("+placeholders+")")
		for _, id := range dim.ids {
			args = append(args, id)
		}
	}

	if criteria.LastInteractionDateBefore != nil {
		clauses = append(clauses, "last_interaction_date < ?")
		args = append(args, formatTime(*criteria.LastInteractionDateBefore))
	}
	if criteria.ExcludePresenceMissing {
		clauses = append(clauses, "presence_missing_date IS NULL")
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int64
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM device_states"+where, args...).Scan(&total)
	if err != nil {
		return nil, classifyError("counting states", err)
	}

	queryArgs := append(args, size, (page-1)*size)
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+stateColumns+" FROM device_states"+where+
			" ORDER BY last_interaction_date DESC LIMIT ? OFFSET ?",
		queryArgs...)
	if err != nil {
		return nil, classifyError("searching states", err)
	}
	defer rows.Close()

	results, err := collectStates(rows)
	if err != nil {
		return nil, err
	}
	return &SearchResults{Total: total, Results: results}, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanState reads one row into a DeviceState.
func scanState(row scanner) (*DeviceState, error) {
	var st DeviceState
	var deviceTypeID, assignmentID, customerID, areaID, assetID sql.NullString
	var lastLocationEventID, presenceMissing sql.NullString
	var lastInteraction, createdAt, updatedAt string
	var measurementIDs, alertIDs, locations, measurements, alerts string

	err := row.Scan(
		&st.ID,
		&st.DeviceID,
		&deviceTypeID,
		&assignmentID,
		&customerID,
		&areaID,
		&assetID,
		&lastInteraction,
		&presenceMissing,
		&lastLocationEventID,
		&measurementIDs,
		&alertIDs,
		&locations,
		&measurements,
		&alerts,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	st.DeviceTypeID = deviceTypeID.String
	st.DeviceAssignmentID = assignmentID.String
	st.CustomerID = customerID.String
	st.AreaID = areaID.String
	st.AssetID = assetID.String
	st.LastLocationEventID = lastLocationEventID.String

	if st.LastInteractionDate, err = parseTime(lastInteraction); err != nil {
		return nil, fmt.Errorf("parsing last_interaction_date: %w", err)
	}
	if presenceMissing.Valid {
		missing, err := parseTime(presenceMissing.String)
		if err != nil {
			return nil, fmt.Errorf("parsing presence_missing_date: %w", err)
		}
		st.PresenceMissingDate = &missing
	}
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if err := json.Unmarshal([]byte(measurementIDs), &st.LastMeasurementEventIDs); err != nil {
		return nil, fmt.Errorf("unmarshalling measurement event ids: %w", err)
	}
	if err := json.Unmarshal([]byte(alertIDs), &st.LastAlertEventIDs); err != nil {
		return nil, fmt.Errorf("unmarshalling alert event ids: %w", err)
	}
	if err := json.Unmarshal([]byte(locations), &st.RecentLocations); err != nil {
		return nil, fmt.Errorf("unmarshalling recent locations: %w", err)
	}
	if err := json.Unmarshal([]byte(measurements), &st.RecentMeasurements); err != nil {
		return nil, fmt.Errorf("unmarshalling recent measurements: %w", err)
	}
	if err := json.Unmarshal([]byte(alerts), &st.RecentAlerts); err != nil {
		return nil, fmt.Errorf("unmarshalling recent alerts: %w", err)
	}

	return &st, nil
}

// collectStates drains rows into a slice.
func collectStates(rows *sql.Rows) ([]DeviceState, error) {
	states := make([]DeviceState, 0)
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning state: %w", err)
		}
		states = append(states, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError("iterating states", err)
	}
	return states, nil
}

// marshalCollections serialises the JSON-backed columns of a record.
func marshalCollections(st *DeviceState) (measurementIDs, alertIDs, locations, measurements, alerts string, err error) {
	encode := func(v any, name string) (string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshalling %s: %w", name, err)
		}
		return string(data), nil
	}

	if st.LastMeasurementEventIDs == nil {
		st.LastMeasurementEventIDs = map[string]string{}
	}
	if st.LastAlertEventIDs == nil {
		st.LastAlertEventIDs = map[string]string{}
	}
	if st.RecentLocations == nil {
		st.RecentLocations = []RecentLocation{}
	}
	if st.RecentMeasurements == nil {
		st.RecentMeasurements = map[string]RecentMeasurement{}
	}
	if st.RecentAlerts == nil {
		st.RecentAlerts = map[string]RecentAlert{}
	}

	if measurementIDs, err = encode(st.LastMeasurementEventIDs, "measurement event ids"); err != nil {
		return
	}
	if alertIDs, err = encode(st.LastAlertEventIDs, "alert event ids"); err != nil {
		return
	}
	if locations, err = encode(st.RecentLocations, "recent locations"); err != nil {
		return
	}
	if measurements, err = encode(st.RecentMeasurements, "recent measurements"); err != nil {
		return
	}
	alerts, err = encode(st.RecentAlerts, "recent alerts")
	return
}

// classifyError maps driver errors onto the package's sentinel errors.
func classifyError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStateNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%w: %v", ErrStateExists, err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
