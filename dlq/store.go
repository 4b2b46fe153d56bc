package dlq

import (
	"context"
	"time"

	"github.com/umrahops/courier/id"
)

// Store defines the persistence contract for the dead letter queue.
type Store interface {
	// Push records an exhausted delivery.
	Push(ctx context.Context, entry *Entry) error

	// ListDLQ returns DLQ entries, optionally filtered.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ returns a DLQ entry by ID.
	GetDLQ(ctx context.Context, dlqID id.ID) (*Entry, error)

	// MarkReplayed stamps an entry as replayed.
	MarkReplayed(ctx context.Context, dlqID id.ID, at time.Time) error

	// PurgeDLQ deletes entries older than the threshold and returns the count.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total number of DLQ entries.
	CountDLQ(ctx context.Context) (int64, error)
}
