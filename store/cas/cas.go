// Package cas implements checkpoint advancement for backends that cannot run
// the checkpoint update and the instance inserts in one transaction.
//
// Instances are inserted first, tagged with the advance's batch ID. The rule
// checkpoint is then swapped with a compare-and-swap on its expected value.
// When the swap loses, the batch is deleted again and the caller sees
// recur.ErrCheckpointConflict, which leaves the store as if nothing happened.
package cas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/recurrence"
)

// Backend is the narrow set of single-document operations CommitWithCAS needs.
type Backend interface {
	// InsertBatch inserts instances that all carry batchID.
	InsertBatch(ctx context.Context, batchID string, instances []*event.Event) error

	// SwapCheckpoint sets the rule's checkpoint to next only if it currently
	// equals expected. It reports whether the swap happened.
	SwapCheckpoint(ctx context.Context, ruleID id.ID, expected, next time.Time) (bool, error)

	// DeleteBatch hard-deletes every instance carrying batchID.
	DeleteBatch(ctx context.Context, batchID string) error
}

// CommitWithCAS applies adv through b with insert-then-swap semantics.
func CommitWithCAS(ctx context.Context, b Backend, adv *recurrence.Advance) error {
	if adv.BatchID == "" {
		return errors.New("cas: advance has no batch id")
	}
	for _, inst := range adv.Instances {
		if inst.BatchID != adv.BatchID {
			return fmt.Errorf("cas: instance %s not tagged with batch %s", inst.ID, adv.BatchID)
		}
	}

	if err := b.InsertBatch(ctx, adv.BatchID, adv.Instances); err != nil {
		// A partial insert may have landed before the failure.
		return errors.Join(fmt.Errorf("cas: insert batch: %w", err), compensate(ctx, b, adv.BatchID))
	}

	swapped, err := b.SwapCheckpoint(ctx, adv.RuleID, adv.Expected, adv.Checkpoint)
	if err != nil {
		return errors.Join(fmt.Errorf("cas: swap checkpoint: %w", err), compensate(ctx, b, adv.BatchID))
	}
	if !swapped {
		if cerr := compensate(ctx, b, adv.BatchID); cerr != nil {
			return errors.Join(recur.ErrCheckpointConflict, cerr)
		}
		return recur.ErrCheckpointConflict
	}

	return nil
}

// compensate removes a batch even when ctx is already done, since the
// inserted instances would otherwise outlive the failed advance.
func compensate(ctx context.Context, b Backend, batchID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := b.DeleteBatch(ctx, batchID); err != nil {
		return fmt.Errorf("cas: delete batch %s: %w", batchID, err)
	}
	return nil
}
