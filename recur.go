package recur

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/internal/entity"
	"github.com/xraph/recur/recurrence"
	"github.com/xraph/recur/store"
)

// wireServices initializes the internal services after options have been applied.
func (r *Recur) wireServices() {
	r.validator = recurrence.NewValidator()

	r.materializer = NewMaterializer(r.store, MaterializerConfig{
		Concurrency:         r.config.Concurrency,
		MaxConflictRetries:  r.config.MaxConflictRetries,
		RetryBackoff:        r.config.RetryBackoff,
		MaxInstancesPerRule: r.config.MaxInstancesPerRule,
		Metrics:             r.metrics,
		Tracer:              r.tracer,
	}, r.logger)
}

// CreateRecurringEvent validates in, then persists its base template and
// recurrence rule.
//
// The template is the event on the start date. The rule's checkpoint starts
// one day before the start date, so the first materialization picks up the
// next occurrence. A ONCE rule is created already caught up, since its
// template is its only occurrence.
func (r *Recur) CreateRecurringEvent(ctx context.Context, in recurrence.Input) (*recurrence.Rule, *event.Event, error) {
	def, err := r.validator.Validate(in)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}

	tmpl := &event.Event{
		Entity:         entity.New(),
		ID:             id.NewEventID(),
		OrganizationID: in.OrganizationID,
		Title:          in.Title,
		Description:    in.Description,
		Location:       in.Location,
		CreatorID:      in.CreatorID,
		AdminIDs:       in.AdminIDs,
		IsPublic:       in.IsPublic,
		AllDay:         in.AllDay,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		OccurrenceDate: def.StartDate,
		IsBaseTemplate: true,
		Metadata:       in.Metadata,
	}

	rule := &recurrence.Rule{
		Entity:             entity.New(),
		ID:                 id.NewRuleID(),
		OrganizationID:     in.OrganizationID,
		BaseEventID:        tmpl.ID,
		Pattern:            def.Pattern,
		StartDate:          def.StartDate,
		EndDate:            def.EndDate,
		OccurrenceLimit:    in.OccurrenceLimit,
		LatestInstanceDate: recurrence.Sentinel(def.StartDate),
	}
	if rule.Pattern == recurrence.Once {
		rule.LatestInstanceDate = def.StartDate
	}

	if err := r.store.CreateEvent(ctx, tmpl); err != nil {
		return nil, nil, fmt.Errorf("recur: persist template: %w", err)
	}
	if err := r.store.CreateRule(ctx, rule); err != nil {
		// Do not leave an orphaned template listed as an event.
		if derr := r.store.DeleteEvent(context.WithoutCancel(ctx), tmpl.ID); derr != nil {
			r.logger.ErrorContext(ctx, "remove template after failed rule write",
				"base_event_id", tmpl.ID,
				"error", derr,
			)
		}
		return nil, nil, fmt.Errorf("recur: persist rule: %w", err)
	}

	r.logger.DebugContext(ctx, "recurring event created",
		"rule_id", rule.ID,
		"base_event_id", tmpl.ID,
		"org_id", rule.OrganizationID,
		"pattern", rule.Pattern,
	)

	return rule, tmpl, nil
}

// DeleteRecurringEvent removes a rule and deletes its template. Instances
// already materialized are left alone.
func (r *Recur) DeleteRecurringEvent(ctx context.Context, ruleID id.ID) error {
	rule, err := r.store.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}

	if err := r.store.DeleteRule(ctx, ruleID); err != nil {
		return fmt.Errorf("recur: delete rule: %w", err)
	}
	if err := r.store.DeleteEvent(ctx, rule.BaseEventID); err != nil && !errors.Is(err, ErrEventNotFound) {
		return fmt.Errorf("recur: delete template: %w", err)
	}

	r.logger.DebugContext(ctx, "recurring event deleted", "rule_id", ruleID)
	return nil
}

// Materialize creates every missing instance dated on or before horizon for
// the organization's rules. See Materializer.Materialize.
func (r *Recur) Materialize(ctx context.Context, orgID string, horizon time.Time) (*Result, error) {
	return r.materializer.Materialize(ctx, orgID, horizon)
}

// Horizon returns the read-path horizon: today plus the configured lookahead.
func (r *Recur) Horizon() time.Time {
	return recurrence.Day(r.clock().UTC().Add(r.config.Lookahead))
}

// ListEvents brings the organization's recurring events up to Horizon and
// then lists its events.
//
// Materialization problems never fail the listing. They are logged and the
// listing serves whatever instances already exist.
func (r *Recur) ListEvents(ctx context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error) {
	mctx := ctx
	if r.config.MaterializeTimeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, r.config.MaterializeTimeout)
		defer cancel()
	}

	if res, err := r.materializer.Materialize(mctx, orgID, r.Horizon()); err != nil {
		r.logger.WarnContext(ctx, "materialization incomplete, serving existing events",
			"org_id", orgID,
			"advanced", res.Advanced,
			"failed", res.Failed,
			"error", err,
		)
	}

	events, err := r.store.ListEvents(ctx, orgID, opts)
	if err != nil {
		return nil, fmt.Errorf("recur: list events: %w", err)
	}
	return events, nil
}

// Rule returns a recurrence rule by ID.
func (r *Recur) Rule(ctx context.Context, ruleID id.ID) (*recurrence.Rule, error) {
	return r.store.GetRule(ctx, ruleID)
}

// Rules lists the recurrence rules of an organization.
func (r *Recur) Rules(ctx context.Context, orgID string, opts recurrence.ListOpts) ([]*recurrence.Rule, error) {
	return r.store.ListRules(ctx, orgID, opts)
}

// Event returns a live event by ID.
func (r *Recur) Event(ctx context.Context, evtID id.ID) (*event.Event, error) {
	return r.store.GetEvent(ctx, evtID)
}

// UpdateEvent applies patch to a live event. Editing an instance detaches
// nothing; editing a template changes the instances generated after it.
func (r *Recur) UpdateEvent(ctx context.Context, evtID id.ID, patch *event.Patch) (*event.Event, error) {
	evt, err := r.store.GetEvent(ctx, evtID)
	if err != nil {
		return nil, err
	}

	patch.Apply(evt)
	if evt.Title == "" {
		return nil, &recurrence.ValidationError{Field: "title", Message: "must not be empty"}
	}
	if err := recurrence.ValidateTimes(evt.StartTime, evt.EndTime); err != nil {
		return nil, err
	}

	evt.Touch()
	if err := r.store.UpdateEvent(ctx, evt); err != nil {
		return nil, fmt.Errorf("recur: update event: %w", err)
	}
	return evt, nil
}

// DeleteEvent deletes a single event. A deleted instance still counts
// against its rule's occurrence limit and is never generated again.
func (r *Recur) DeleteEvent(ctx context.Context, evtID id.ID) error {
	return r.store.DeleteEvent(ctx, evtID)
}

// Materializer returns the materializer.
func (r *Recur) Materializer() *Materializer {
	return r.materializer
}

// Store returns the underlying store.
func (r *Recur) Store() store.Store {
	return r.store
}

// Config returns the active configuration.
func (r *Recur) Config() Config {
	return r.config
}
