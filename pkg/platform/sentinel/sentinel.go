package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally wrapped)
// and services translate them into domain errors.
//
//   - ErrNotFound: the row or object does not exist
//   - ErrConflict: a compare-and-swap lost to a concurrent writer
//   - ErrInvalidState: the row exists but is in the wrong state for the write
//   - ErrAlreadyUsed: a uniqueness constraint was hit (subscription, idempotency key)
//   - ErrUnavailable: a backing service is temporarily unreachable
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrAlreadyUsed  = errors.New("already used")
	ErrUnavailable  = errors.New("unavailable")
)
