package recurrence

import (
	"context"
	"time"

	"github.com/xraph/recur/id"
)

// Store defines the persistence contract for recurrence rules.
type Store interface {
	// CreateRule persists a new rule.
	CreateRule(ctx context.Context, rule *Rule) error

	// GetRule returns a rule by ID.
	GetRule(ctx context.Context, ruleID id.ID) (*Rule, error)

	// ListRules returns the rules of an organization.
	ListRules(ctx context.Context, orgID string, opts ListOpts) ([]*Rule, error)

	// DeleteRule removes a rule. Instances already created are untouched.
	DeleteRule(ctx context.Context, ruleID id.ID) error

	// ListRulesNeedingAdvance returns the organization's rules whose
	// checkpoint is strictly before horizon.
	ListRulesNeedingAdvance(ctx context.Context, orgID string, horizon time.Time) ([]*Rule, error)

	// AdvanceCheckpoint atomically moves the rule's checkpoint from
	// adv.Expected to adv.Checkpoint and inserts adv.Instances. When the
	// stored checkpoint differs from adv.Expected nothing is written and
	// recur.ErrCheckpointConflict is returned.
	AdvanceCheckpoint(ctx context.Context, adv *Advance) error
}
