package directory

import (
	"context"
	"errors"
)

// ErrTokenNotFound is returned when a token has no corresponding entity.
var ErrTokenNotFound = errors.New("directory: token not found")

// ErrUnavailable is returned when the directory service cannot be reached.
var ErrUnavailable = errors.New("directory: unavailable")

// Resolver maps reference tokens to internal identifiers.
//
// Implementations return ErrTokenNotFound for unknown tokens and
// ErrUnavailable (wrapped) when the lookup backend is down.
type Resolver interface {
	DeviceID(ctx context.Context, token string) (string, error)
	DeviceTypeID(ctx context.Context, token string) (string, error)
	AssignmentID(ctx context.Context, token string) (string, error)
	CustomerID(ctx context.Context, token string) (string, error)
	AreaID(ctx context.Context, token string) (string, error)
	AssetID(ctx context.Context, token string) (string, error)
}
