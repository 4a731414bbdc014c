package store

import "context"

// KVStore is the persistence slot behind the scan history.  Values are
// replaced whole; there is no partial update.
type KVStore interface {
	// GetItem returns the stored value and whether the key exists.
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}
