package keys

import "errors"

var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidDuration is returned when an admin duration token cannot be
	// parsed or does not describe a positive span.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrKeyCollision is wrapped into store.ErrWriteFailed when no unused key
	// could be generated.
	ErrKeyCollision = errors.New("generated key collides with an existing key")
)
