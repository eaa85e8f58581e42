package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/recurrence"
	"github.com/xraph/recur/store/cas"
)

// CreateRule persists a new rule.
func (s *Store) CreateRule(ctx context.Context, r *recurrence.Rule) error {
	m := toRuleModel(r)

	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("recur/mongo: create rule: %w", err)
	}

	return nil
}

// GetRule returns a rule by ID.
func (s *Store) GetRule(ctx context.Context, ruleID id.ID) (*recurrence.Rule, error) {
	var m ruleModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": ruleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, recur.ErrRuleNotFound
		}

		return nil, fmt.Errorf("recur/mongo: get rule: %w", err)
	}

	return fromRuleModel(&m)
}

// ListRules returns the rules of an organization ordered by creation time.
func (s *Store) ListRules(ctx context.Context, orgID string, opts recurrence.ListOpts) ([]*recurrence.Rule, error) {
	var models []ruleModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"organization_id": orgID}).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("recur/mongo: list rules: %w", err)
	}

	return fromRuleModels(models)
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, ruleID id.ID) error {
	res, err := s.mdb.NewDelete((*ruleModel)(nil)).
		Filter(bson.M{"_id": ruleID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/mongo: delete rule: %w", err)
	}

	if res.DeletedCount() == 0 {
		return recur.ErrRuleNotFound
	}

	return nil
}

// ListRulesNeedingAdvance returns the organization's rules whose checkpoint
// is before horizon.
func (s *Store) ListRulesNeedingAdvance(ctx context.Context, orgID string, horizon time.Time) ([]*recurrence.Rule, error) {
	var models []ruleModel

	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"organization_id":      orgID,
			"latest_instance_date": bson.M{"$lt": horizon},
		}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("recur/mongo: list rules needing advance: %w", err)
	}

	return fromRuleModels(models)
}

// AdvanceCheckpoint moves a rule's checkpoint and inserts its instances,
// inside a transaction when enabled and through compare-and-swap otherwise.
func (s *Store) AdvanceCheckpoint(ctx context.Context, adv *recurrence.Advance) error {
	if !s.transactional {
		return cas.CommitWithCAS(ctx, s, adv)
	}

	sess, err := s.client().StartSession()
	if err != nil {
		return fmt.Errorf("recur/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		swapped, err := s.swapCheckpoint(txCtx, adv.RuleID, adv.Expected, adv.Checkpoint)
		if err != nil {
			return nil, err
		}
		if !swapped {
			return nil, recur.ErrCheckpointConflict
		}
		return nil, s.insertEvents(txCtx, adv.Instances)
	}, options.Transaction())
	if err != nil {
		if errors.Is(err, recur.ErrCheckpointConflict) {
			return recur.ErrCheckpointConflict
		}
		return fmt.Errorf("recur/mongo: advance checkpoint: %w", err)
	}

	return nil
}

// InsertBatch inserts instances tagged with batchID.
func (s *Store) InsertBatch(ctx context.Context, _ string, instances []*event.Event) error {
	return s.insertEvents(ctx, instances)
}

// SwapCheckpoint compares and swaps a rule's checkpoint.
func (s *Store) SwapCheckpoint(ctx context.Context, ruleID id.ID, expected, next time.Time) (bool, error) {
	return s.swapCheckpoint(ctx, ruleID, expected, next)
}

// DeleteBatch hard-deletes every event carrying batchID.
func (s *Store) DeleteBatch(ctx context.Context, batchID string) error {
	_, err := s.mdb.Collection(colEvents).DeleteMany(ctx, bson.M{"batch_id": batchID})
	if err != nil {
		return fmt.Errorf("recur/mongo: delete batch: %w", err)
	}

	return nil
}

// swapCheckpoint updates the checkpoint only if it still equals expected.
// It goes through the driver collection so a session carried by ctx applies.
func (s *Store) swapCheckpoint(ctx context.Context, ruleID id.ID, expected, next time.Time) (bool, error) {
	res, err := s.mdb.Collection(colRules).UpdateOne(ctx,
		bson.M{"_id": ruleID.String(), "latest_instance_date": expected},
		bson.M{"$set": bson.M{"latest_instance_date": next, "updated_at": now()}},
	)
	if err != nil {
		return false, fmt.Errorf("recur/mongo: swap checkpoint: %w", err)
	}

	return res.MatchedCount == 1, nil
}

// insertEvents bulk-inserts events through the driver collection.
func (s *Store) insertEvents(ctx context.Context, evts []*event.Event) error {
	if len(evts) == 0 {
		return nil
	}

	docs := make([]any, len(evts))
	for i, evt := range evts {
		docs[i] = toEventModel(evt)
	}

	if _, err := s.mdb.Collection(colEvents).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("recur/mongo: insert events: %w", err)
	}

	return nil
}

func fromRuleModels(models []ruleModel) ([]*recurrence.Rule, error) {
	result := make([]*recurrence.Rule, 0, len(models))

	for i := range models {
		r, err := fromRuleModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, r)
	}

	return result, nil
}
