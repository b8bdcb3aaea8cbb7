package state

import (
	"context"
	"time"
)

// Pagination defaults for search.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// ResolvedCriteria is a SearchCriteria whose dimension tokens have been
// resolved to internal identifiers.
//
// A nil identifier slice leaves the dimension unconstrained. A non-nil
// empty slice means the dimension was requested but no token resolved,
// which matches nothing.
type ResolvedCriteria struct {
	LastInteractionDateBefore *time.Time
	ExcludePresenceMissing    bool

	DeviceIDs           []string
	DeviceTypeIDs       []string
	DeviceAssignmentIDs []string
	CustomerIDs         []string
	AreaIDs             []string
	AssetIDs            []string

	PageNumber int
	PageSize   int
}

// SearchResults is one page of matching records plus the total count
// across all pages.
type SearchResults struct {
	Total   int64         `json:"total"`
	Results []DeviceState `json:"results"`
}

// Repository defines persistence operations for state records.
//
// Implementations must be safe for concurrent use. InTransaction runs fn
// against a transactional view of the repository; the transaction commits
// when fn returns nil and rolls back otherwise.
type Repository interface {
	Create(ctx context.Context, st *DeviceState) error
	GetByID(ctx context.Context, id string) (*DeviceState, error)
	GetByAssignment(ctx context.Context, assignmentID string) (*DeviceState, error)
	ListByDevice(ctx context.Context, deviceID string) ([]DeviceState, error)
	Update(ctx context.Context, st *DeviceState) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, criteria ResolvedCriteria) (*SearchResults, error)
	InTransaction(ctx context.Context, fn func(Repository) error) error
}
