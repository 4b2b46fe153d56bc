// Package store defines the composite persistence contract and sentinel
// errors shared by all backends.
package store

import (
	"context"
	"errors"

	"github.com/umrahops/courier/catalog"
	"github.com/umrahops/courier/delivery"
	"github.com/umrahops/courier/dlq"
	"github.com/umrahops/courier/event"
	"github.com/umrahops/courier/subscription"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Store is the composite persistence interface a backend must implement.
// Backends: memory (tests, single process), redis (shared queue), bunstore
// (Postgres or SQLite via bun).
type Store interface {
	subscription.Store
	event.Store
	delivery.Store
	dlq.Store
	catalog.Store

	// Migrate creates or updates the backend schema. A no-op for backends
	// without schemas.
	Migrate(ctx context.Context) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
