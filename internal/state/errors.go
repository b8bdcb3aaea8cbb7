package state

import "errors"

// Domain errors for the state package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, state.ErrStateNotFound) {
//	    // handle not found case
//	}
var (
	// ErrStateNotFound is returned when a state record ID or assignment
	// reference does not exist.
	ErrStateNotFound = errors.New("state: not found")

	// ErrStateExists is returned when creating a state record for an
	// assignment that already has one.
	ErrStateExists = errors.New("state: already exists")

	// ErrValidation is returned when a request fails input validation.
	ErrValidation = errors.New("state: validation failed")

	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached or is locked beyond the busy timeout.
	ErrStoreUnavailable = errors.New("state: store unavailable")

	// ErrMergeFailed is returned when folding an event batch into a state
	// record fails after the record was located. The underlying cause is
	// wrapped and remains available through errors.Is/errors.As.
	ErrMergeFailed = errors.New("state: merge failed")
)
