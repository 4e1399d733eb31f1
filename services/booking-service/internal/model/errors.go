package model

import "errors"

var (
	// ErrNotFound covers absent rows and cross-tenant references alike, so a
	// caller cannot distinguish "does not exist" from "belongs to someone else".
	ErrNotFound                  = errors.New("not found")
	ErrInvalidInterval           = errors.New("invalid interval")
	ErrOutsideAvailabilityWindow = errors.New("outside availability window")
	ErrNoCapacityAvailable       = errors.New("no capacity available")

	// ErrTransientConflict marks serialization/deadlock aborts that the engine
	// retries internally. It is never surfaced to callers.
	ErrTransientConflict = errors.New("transient conflict")
)
