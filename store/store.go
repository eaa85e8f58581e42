// Package store defines the composite Store interface for all recur persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them, so the materializer and the read path can share a backend.
package store

import (
	"context"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/recurrence"
)

// Store is the aggregate persistence interface.
type Store interface {
	recurrence.Store
	event.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
