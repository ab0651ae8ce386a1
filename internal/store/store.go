package store

import "context"

// Store is the persistence interface for the check log.
type Store interface {
	// Record persists a check asynchronously (buffered).
	Record(ctx context.Context, rec *CheckRecord) error

	// Query retrieves checks matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]CheckRecord, error)

	// Get retrieves a single check by ID.
	Get(ctx context.Context, id string) (*CheckRecord, error)

	// Stats returns aggregate statistics, optionally filtered by source.
	Stats(ctx context.Context, source string) (*Stats, error)

	// Close flushes pending writes and closes the store.
	Close() error
}
