package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
)

// CreateEvent persists an event.
func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)

	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("recur/mongo: create event: %w", err)
	}

	return nil
}

// GetEvent returns a live event by ID.
func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	var m eventModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": evtID.String(), "deleted_at": nil}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, recur.ErrEventNotFound
		}

		return nil, fmt.Errorf("recur/mongo: get event: %w", err)
	}

	return fromEventModel(&m)
}

// UpdateEvent modifies an existing live event.
func (s *Store) UpdateEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "deleted_at": nil}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/mongo: update event: %w", err)
	}

	if res.MatchedCount() == 0 {
		return recur.ErrEventNotFound
	}

	return nil
}

// DeleteEvent soft-deletes an event.
func (s *Store) DeleteEvent(ctx context.Context, evtID id.ID) error {
	t := now()

	res, err := s.mdb.NewUpdate((*eventModel)(nil)).
		Filter(bson.M{"_id": evtID.String(), "deleted_at": nil}).
		Set("deleted_at", t).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/mongo: delete event: %w", err)
	}

	if res.MatchedCount() == 0 {
		return recur.ErrEventNotFound
	}

	return nil
}

// ListEvents returns the live events of an organization by occurrence date.
func (s *Store) ListEvents(ctx context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel

	filter := bson.M{"organization_id": orgID, "deleted_at": nil}
	if opts.ExcludeTemplates {
		filter["is_base_template"] = false
	}

	if opts.RecurrenceRuleID != nil {
		filter["recurrence_rule_id"] = opts.RecurrenceRuleID.String()
	}

	if opts.From != nil || opts.To != nil {
		dateFilter := bson.M{}
		if opts.From != nil {
			dateFilter["$gte"] = *opts.From
		}

		if opts.To != nil {
			dateFilter["$lte"] = *opts.To
		}

		filter["occurrence_date"] = dateFilter
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "occurrence_date", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("recur/mongo: list events: %w", err)
	}

	result := make([]*event.Event, 0, len(models))

	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, evt)
	}

	return result, nil
}

// CountByRule counts every instance of a rule, deleted or not.
func (s *Store) CountByRule(ctx context.Context, ruleID id.ID) (int64, error) {
	count, err := s.mdb.NewFind((*eventModel)(nil)).
		Filter(bson.M{"recurrence_rule_id": ruleID.String()}).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("recur/mongo: count by rule: %w", err)
	}

	return count, nil
}
