package persist

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Load when no data exists for the key.
	ErrNotFound = errors.New("persist: not found")

	// ErrStoreClosed is returned when operations are attempted on a closed
	// store.
	ErrStoreClosed = errors.New("persist: store is closed")

	// ErrInvalidKey is returned for keys a store cannot address.
	ErrInvalidKey = errors.New("persist: invalid key")
)

// Store defines the interface for snapshot persistence backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists data under key, replacing what was there.
	Save(ctx context.Context, key string, data []byte) error

	// Load retrieves the data stored under key.
	// Returns ErrNotFound if there is none.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
