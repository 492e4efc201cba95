// internal/storage/store.go
package storage

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded signals the backing store is out of capacity.
	// Callers treat it as a recoverable failure, never a crash.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	ErrKeyNotFound = errors.New("key not found")
)

// KV is the persistent backing store. The interface is asynchronous by
// construction (context + error) even where a platform binding is
// synchronous, so a remote-backed store can be swapped in without core
// changes.
type KV interface {
	// GetItem returns the value for key. ok is false when absent.
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)

	// SetItem writes key. Returns ErrQuotaExceeded when capacity is gone.
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes key. Absent keys are a no-op.
	RemoveItem(ctx context.Context, key string) error

	// Keys enumerates every key with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
