package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oakmere/fleetstate/internal/directory"
)

// Logger defines the logging interface used by the Manager.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Listener receives state change notifications after a record has been
// committed. merged carries the folded batch for merge changes and is
// nil for presence transitions. Listeners must not block.
type Listener interface {
	StateChanged(st *DeviceState, merged *EventMergeRequest)
}

// Manager coordinates state record persistence, merge application,
// token resolution for searches, and change notification.
type Manager struct {
	repo      Repository
	resolver  directory.Resolver
	engine    *Engine
	logger    Logger
	listeners []Listener
}

// NewManager creates a state manager.
//
// Parameters:
//   - repo: Repository for state persistence
//   - resolver: Token resolver used by searches
//   - engine: Merge engine applied to event batches
//
// Returns:
//   - *Manager: Manager ready for use
func NewManager(repo Repository, resolver directory.Resolver, engine *Engine) *Manager {
	return &Manager{
		repo:     repo,
		resolver: resolver,
		engine:   engine,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// AddListener registers a change listener. Listeners must be registered
// before the manager starts handling requests.
func (m *Manager) AddListener(l Listener) {
	m.listeners = append(m.listeners, l)
}

// CreateState creates a new state record. The assignment reference, when
// present, must not already have a record.
func (m *Manager) CreateState(ctx context.Context, req CreateRequest) (*DeviceState, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrValidation)
	}

	now := time.Now().UTC()
	lastInteraction := now
	if req.LastInteractionDate != nil {
		lastInteraction = req.LastInteractionDate.UTC()
	}

	st := &DeviceState{
		ID:                      uuid.NewString(),
		DeviceID:                req.DeviceID,
		DeviceTypeID:            req.DeviceTypeID,
		DeviceAssignmentID:      req.DeviceAssignmentID,
		CustomerID:              req.CustomerID,
		AreaID:                  req.AreaID,
		AssetID:                 req.AssetID,
		LastInteractionDate:     lastInteraction,
		PresenceMissingDate:     req.PresenceMissingDate,
		LastMeasurementEventIDs: map[string]string{},
		LastAlertEventIDs:       map[string]string{},
		RecentLocations:         []RecentLocation{},
		RecentMeasurements:      map[string]RecentMeasurement{},
		RecentAlerts:            map[string]RecentAlert{},
	}

	if err := m.repo.Create(ctx, st); err != nil {
		return nil, err
	}

	m.logger.Info("state created", "id", st.ID, "device_id", st.DeviceID, "assignment_id", st.DeviceAssignmentID)
	return st, nil
}

// GetState returns the state record with the given ID.
func (m *Manager) GetState(ctx context.Context, id string) (*DeviceState, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrValidation)
	}
	return m.repo.GetByID(ctx, id)
}

// GetStateByAssignment returns the state record for a device assignment.
func (m *Manager) GetStateByAssignment(ctx context.Context, assignmentID string) (*DeviceState, error) {
	if assignmentID == "" {
		return nil, fmt.Errorf("%w: assignment id is required", ErrValidation)
	}
	return m.repo.GetByAssignment(ctx, assignmentID)
}

// ListStatesByDevice returns all state records for a device, most
// recently active first.
func (m *Manager) ListStatesByDevice(ctx context.Context, deviceID string) ([]DeviceState, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", ErrValidation)
	}
	return m.repo.ListByDevice(ctx, deviceID)
}

// UpdateState applies identity and timestamp overrides to an existing
// record inside a transaction.
func (m *Manager) UpdateState(ctx context.Context, id string, req UpdateRequest) (*DeviceState, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrValidation)
	}
	if req.DeviceID != nil && *req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id cannot be cleared", ErrValidation)
	}

	var updated *DeviceState
	err := m.repo.InTransaction(ctx, func(tx Repository) error {
		st, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}

		applyString := func(dst *string, src *string) {
			if src != nil {
				*dst = *src
			}
		}
		applyString(&st.DeviceID, req.DeviceID)
		applyString(&st.DeviceTypeID, req.DeviceTypeID)
		applyString(&st.DeviceAssignmentID, req.DeviceAssignmentID)
		applyString(&st.CustomerID, req.CustomerID)
		applyString(&st.AreaID, req.AreaID)
		applyString(&st.AssetID, req.AssetID)
		if req.LastInteractionDate != nil {
			st.LastInteractionDate = req.LastInteractionDate.UTC()
		}
		if req.PresenceMissingDate != nil {
			missing := req.PresenceMissingDate.UTC()
			st.PresenceMissingDate = &missing
		}

		if err := tx.Update(ctx, st); err != nil {
			return err
		}
		updated = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("state updated", "id", id)
	return updated, nil
}

// DeleteState removes a state record.
func (m *Manager) DeleteState(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("state deleted", "id", id)
	return nil
}

// MergeState folds an event batch into the record with the given ID.
//
// The read-fold-write runs inside one repository transaction so
// concurrent merges against the same record serialise rather than lose
// updates. Events without IDs are assigned one before folding. Failures
// after the record was located are wrapped in ErrMergeFailed; a missing
// record surfaces as ErrStateNotFound.
func (m *Manager) MergeState(ctx context.Context, id string, req *EventMergeRequest) (*DeviceState, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrValidation)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: merge request is required", ErrValidation)
	}

	assignEventIDs(req)

	var merged *DeviceState
	err := m.repo.InTransaction(ctx, func(tx Repository) error {
		st, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}

		m.engine.Apply(st, req)

		if err := tx.Update(ctx, st); err != nil {
			return fmt.Errorf("%w: %w", ErrMergeFailed, err)
		}
		merged = st
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStateNotFound) || errors.Is(err, ErrMergeFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMergeFailed, err)
	}

	m.logger.Debug("state merged", "id", id,
		"locations", len(req.Locations),
		"measurements", len(req.Measurements),
		"alerts", len(req.Alerts))
	m.notify(merged, req)
	return merged, nil
}

// SearchStates resolves the criteria's tokens and returns one page of
// matching records. Tokens that do not resolve are skipped; a dimension
// whose tokens all fail to resolve matches nothing.
func (m *Manager) SearchStates(ctx context.Context, criteria SearchCriteria) (*SearchResults, error) {
	if criteria.PageNumber < 0 || criteria.PageSize < 0 {
		return nil, fmt.Errorf("%w: paging values cannot be negative", ErrValidation)
	}

	resolved := ResolvedCriteria{
		LastInteractionDateBefore: criteria.LastInteractionDateBefore,
		ExcludePresenceMissing:    criteria.ExcludePresenceMissing,
		PageNumber:                criteria.PageNumber,
		PageSize:                  criteria.PageSize,
	}

	dimensions := []struct {
		tokens  []string
		resolve func(context.Context, string) (string, error)
		target  *[]string
	}{
		{criteria.DeviceTokens, m.resolver.DeviceID, &resolved.DeviceIDs},
		{criteria.DeviceTypeTokens, m.resolver.DeviceTypeID, &resolved.DeviceTypeIDs},
		{criteria.DeviceAssignmentTokens, m.resolver.AssignmentID, &resolved.DeviceAssignmentIDs},
		{criteria.CustomerTokens, m.resolver.CustomerID, &resolved.CustomerIDs},
		{criteria.AreaTokens, m.resolver.AreaID, &resolved.AreaIDs},
		{criteria.AssetTokens, m.resolver.AssetID, &resolved.AssetIDs},
	}
	for _, dim := range dimensions {
		ids, err := m.resolveTokens(ctx, dim.tokens, dim.resolve)
		if err != nil {
			return nil, err
		}
		*dim.target = ids
	}

	return m.repo.Search(ctx, resolved)
}

// MarkPresenceMissing records that a device has gone silent. It is a
// no-op when the record is already flagged.
func (m *Manager) MarkPresenceMissing(ctx context.Context, id string, at time.Time) (*DeviceState, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrValidation)
	}

	var flagged *DeviceState
	var changed bool
	err := m.repo.InTransaction(ctx, func(tx Repository) error {
		st, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if st.PresenceMissingDate != nil {
			flagged = st
			return nil
		}

		missing := at.UTC()
		st.PresenceMissingDate = &missing
		if err := tx.Update(ctx, st); err != nil {
			return err
		}
		flagged = st
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		m.logger.Info("presence missing", "id", id, "device_id", flagged.DeviceID)
		m.notify(flagged, nil)
	}
	return flagged, nil
}

// resolveTokens resolves one dimension's tokens. A nil token slice
// returns nil (dimension unused); unresolvable tokens are dropped with a
// debug log so the returned slice may be empty but non-nil.
func (m *Manager) resolveTokens(ctx context.Context, tokens []string, resolve func(context.Context, string) (string, error)) ([]string, error) {
	if tokens == nil {
		return nil, nil
	}

	ids := make([]string, 0, len(tokens))
	for _, token := range tokens {
		id, err := resolve(ctx, token)
		if err != nil {
			if errors.Is(err, directory.ErrTokenNotFound) {
				m.logger.Debug("search token not found", "token", token)
				continue
			}
			return nil, fmt.Errorf("resolving token %q: %w", token, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Manager) notify(st *DeviceState, merged *EventMergeRequest) {
	for _, l := range m.listeners {
		l.StateChanged(st, merged)
	}
}

// assignEventIDs gives every event in the batch an ID if the producer
// did not supply one.
func assignEventIDs(req *EventMergeRequest) {
	for i := range req.Locations {
		if req.Locations[i].ID == "" {
			req.Locations[i].ID = uuid.NewString()
		}
	}
	for i := range req.Measurements {
		if req.Measurements[i].ID == "" {
			req.Measurements[i].ID = uuid.NewString()
		}
	}
	for i := range req.Alerts {
		if req.Alerts[i].ID == "" {
			req.Alerts[i].ID = uuid.NewString()
		}
	}
}
