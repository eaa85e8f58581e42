package recur

import "errors"

// Sentinel errors returned by recur operations.
var (
	// ErrNoStore is returned when a Recur is created without a store.
	ErrNoStore = errors.New("recur: store is required")

	// ErrRuleNotFound is returned when a recurrence rule cannot be found.
	ErrRuleNotFound = errors.New("recur: recurrence rule not found")

	// ErrEventNotFound is returned when an event cannot be found or was deleted.
	ErrEventNotFound = errors.New("recur: event not found")

	// ErrCheckpointConflict is returned by AdvanceCheckpoint when the rule's
	// checkpoint no longer matches the value the caller computed against.
	ErrCheckpointConflict = errors.New("recur: checkpoint conflict")

	// ErrConflictRetriesExhausted is returned when a rule kept losing the
	// checkpoint race for longer than the configured retry budget.
	ErrConflictRetriesExhausted = errors.New("recur: checkpoint conflict retries exhausted")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("recur: store is closed")

	// ErrInvalidRule is returned when a recurring event definition fails validation.
	ErrInvalidRule = errors.New("recur: invalid recurrence rule")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("recur: migration failed")
)
