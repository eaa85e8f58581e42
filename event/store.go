package event

import (
	"context"

	"github.com/xraph/recur/id"
)

// Store defines the persistence contract for event documents.
type Store interface {
	// CreateEvent persists a single event (templates and ordinary events).
	CreateEvent(ctx context.Context, evt *Event) error

	// GetEvent returns a live event by ID. Deleted events are not found.
	GetEvent(ctx context.Context, evtID id.ID) (*Event, error)

	// UpdateEvent modifies an existing live event.
	UpdateEvent(ctx context.Context, evt *Event) error

	// DeleteEvent soft-deletes an event.
	DeleteEvent(ctx context.Context, evtID id.ID) error

	// ListEvents returns the live events of an organization ordered by
	// occurrence date.
	ListEvents(ctx context.Context, orgID string, opts ListOpts) ([]*Event, error)

	// CountByRule returns how many instances were ever created for a rule,
	// including soft-deleted ones.
	CountByRule(ctx context.Context, ruleID id.ID) (int64, error)
}
