package recur_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/recurrence"
	"github.com/xraph/recur/store/memory"
)

func fixedClock(s string) func() time.Time {
	t := day(s).Add(15 * time.Hour)
	return func() time.Time { return t }
}

func TestNewRequiresStore(t *testing.T) {
	_, err := recur.New()
	require.ErrorIs(t, err, recur.ErrNoStore)
}

func TestDefaultConfig(t *testing.T) {
	r := setup(t, memory.New())
	cfg := r.Config()

	assert.Equal(t, recur.DefaultLookahead, cfg.Lookahead)
	assert.Positive(t, cfg.Concurrency)
	assert.Positive(t, cfg.MaxConflictRetries)
	assert.Equal(t, []time.Duration{time.Millisecond}, cfg.RetryBackoff)
}

func TestCreateRecurringEvent(t *testing.T) {
	s := memory.New()
	r := setup(t, s)

	rule, tmpl, err := r.CreateRecurringEvent(ctx(), recurrence.Input{
		OrganizationID:  org,
		Title:           "Board meeting",
		Description:     "Quarterly review",
		CreatorID:       "usr_1",
		AdminIDs:        []string{"usr_1", "usr_2"},
		StartTime:       "18:00",
		EndTime:         "20:00",
		Pattern:         "MONTHLY",
		StartDate:       "2024-01-15",
		OccurrenceLimit: intPtr(12),
	})
	require.NoError(t, err)

	assert.True(t, tmpl.IsBaseTemplate)
	assert.Equal(t, day("2024-01-15"), tmpl.OccurrenceDate)
	assert.Equal(t, tmpl.ID, rule.BaseEventID)
	assert.Equal(t, recurrence.Monthly, rule.Pattern)
	assert.Equal(t, day("2024-01-14"), rule.LatestInstanceDate)

	got, err := r.Rule(ctx(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, *got.OccurrenceLimit)

	_, err = r.Event(ctx(), tmpl.ID)
	require.NoError(t, err)

	// Instances copy every template field.
	_, err = r.Materialize(ctx(), org, day("2024-02-15"))
	require.NoError(t, err)

	ruleID := rule.ID
	events, err := s.ListEvents(ctx(), org, event.ListOpts{RecurrenceRuleID: &ruleID})
	require.NoError(t, err)
	require.Len(t, events, 1)

	inst := events[0]
	assert.Equal(t, "Board meeting", inst.Title)
	assert.Equal(t, "Quarterly review", inst.Description)
	assert.Equal(t, []string{"usr_1", "usr_2"}, inst.AdminIDs)
	assert.Equal(t, "18:00", inst.StartTime)
	assert.Equal(t, tmpl.ID, inst.BaseEventID)
	assert.Equal(t, rule.ID, inst.RecurrenceRuleID)
	assert.NotEmpty(t, inst.BatchID)
	assert.False(t, inst.IsBaseTemplate)
}

func TestCreateRecurringEvent_Invalid(t *testing.T) {
	r := setup(t, memory.New())

	cases := map[string]recurrence.Input{
		"missing org":     {Title: "x", Pattern: "DAILY", StartDate: "2024-01-01"},
		"unknown pattern": {OrganizationID: org, Title: "x", Pattern: "HOURLY", StartDate: "2024-01-01"},
		"end before start": {
			OrganizationID: org, Title: "x", Pattern: "DAILY", StartDate: "2024-01-02", EndDate: "2024-01-01",
		},
		"zero limit": {OrganizationID: org, Title: "x", Pattern: "DAILY", StartDate: "2024-01-01", OccurrenceLimit: intPtr(0)},
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := r.CreateRecurringEvent(ctx(), in)
			require.ErrorIs(t, err, recur.ErrInvalidRule)

			var verr *recurrence.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestCreateRecurringEvent_OnceIsItsTemplate(t *testing.T) {
	s := memory.New()
	r := setup(t, s)
	rule := createRule(t, r, recurrence.Input{Pattern: "ONCE", StartDate: "2024-05-01"})

	res, err := r.Materialize(ctx(), org, day("2025-01-01"))
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Empty(t, instanceDates(t, s, rule))

	events, err := s.ListEvents(ctx(), org, event.ListOpts{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsBaseTemplate)
}

// ruleWriteFailure accepts events but fails every rule write.
type ruleWriteFailure struct {
	*memory.Store
}

func (ruleWriteFailure) CreateRule(context.Context, *recurrence.Rule) error {
	return errors.New("write concern timeout")
}

func TestCreateRecurringEvent_RuleWriteFailureRemovesTemplate(t *testing.T) {
	s := memory.New()
	r, err := recur.New(recur.WithStore(ruleWriteFailure{Store: s}))
	require.NoError(t, err)

	_, _, err = r.CreateRecurringEvent(ctx(), recurrence.Input{
		OrganizationID: org,
		Title:          "standup",
		Pattern:        "DAILY",
		StartDate:      "2024-01-01",
	})
	require.Error(t, err)

	events, err := s.ListEvents(ctx(), org, event.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestUpdateEvent(t *testing.T) {
	s := memory.New()
	r := setup(t, s)
	rule := createRule(t, r, recurrence.Input{
		Pattern:   "WEEKLY",
		StartDate: "2024-01-01",
		StartTime: "10:00",
		EndTime:   "11:00",
	})
	_, err := r.Materialize(ctx(), org, day("2024-01-08"))
	require.NoError(t, err)

	instances, err := s.ListEvents(ctx(), org, event.ListOpts{ExcludeTemplates: true})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	inst := instances[0]

	title, end := "moved standup", "11:30"
	updated, err := r.UpdateEvent(ctx(), inst.ID, &event.Patch{Title: &title, EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, "moved standup", updated.Title)
	assert.Equal(t, "10:00", updated.StartTime)
	assert.Equal(t, "11:30", updated.EndTime)
	assert.Equal(t, rule.ID, updated.RecurrenceRuleID)

	got, err := r.Event(ctx(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "moved standup", got.Title)
	assert.Equal(t, day("2024-01-08"), got.OccurrenceDate)

	early := "09:00"
	_, err = r.UpdateEvent(ctx(), inst.ID, &event.Patch{EndTime: &early})
	var verr *recurrence.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end_time", verr.Field)

	empty := ""
	_, err = r.UpdateEvent(ctx(), inst.ID, &event.Patch{Title: &empty})
	require.ErrorAs(t, err, &verr)

	require.NoError(t, r.DeleteEvent(ctx(), inst.ID))
	_, err = r.UpdateEvent(ctx(), inst.ID, &event.Patch{Title: &title})
	require.ErrorIs(t, err, recur.ErrEventNotFound)
}

func TestDeleteRecurringEvent(t *testing.T) {
	s := memory.New()
	r := setup(t, s)
	rule := createRule(t, r, recurrence.Input{Pattern: "WEEKLY", StartDate: "2024-01-01"})

	_, err := r.Materialize(ctx(), org, day("2024-01-22"))
	require.NoError(t, err)

	require.NoError(t, r.DeleteRecurringEvent(ctx(), rule.ID))

	_, err = r.Rule(ctx(), rule.ID)
	require.ErrorIs(t, err, recur.ErrRuleNotFound)
	_, err = r.Event(ctx(), rule.BaseEventID)
	require.ErrorIs(t, err, recur.ErrEventNotFound)

	// Materialized instances outlive their rule.
	assert.Len(t, instanceDates(t, s, rule), 3)

	require.ErrorIs(t, r.DeleteRecurringEvent(ctx(), rule.ID), recur.ErrRuleNotFound)
}

// ──────────────────────────────────────────────────
// Read path
// ──────────────────────────────────────────────────

func TestListEvents_MaterializesUpToLookahead(t *testing.T) {
	s := memory.New()
	r := setup(t, s,
		recur.WithClock(fixedClock("2024-01-10")),
		recur.WithLookahead(14*24*time.Hour),
	)
	createRule(t, r, recurrence.Input{Pattern: "WEEKLY", StartDate: "2024-01-01"})

	assert.Equal(t, day("2024-01-24"), r.Horizon())

	events, err := r.ListEvents(ctx(), org, event.ListOpts{})
	require.NoError(t, err)

	dates := make([]string, 0, len(events))
	for _, e := range events {
		dates = append(dates, recurrence.FormatDate(e.OccurrenceDate))
	}
	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22"}, dates)

	// A second listing finds nothing to do.
	advances := s.Advances()
	_, err = r.ListEvents(ctx(), org, event.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, advances, s.Advances())
}

func TestListEvents_ServesExistingEventsOnFailure(t *testing.T) {
	s := memory.New()
	r := setup(t, s, recur.WithClock(fixedClock("2024-01-10")))
	createRule(t, r, recurrence.Input{Pattern: "DAILY", StartDate: "2024-01-01"})

	s.SetAdvanceHook(func(context.Context, *recurrence.Advance) error {
		return errors.New("replica set unavailable")
	})

	events, err := r.ListEvents(ctx(), org, event.ListOpts{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsBaseTemplate)
}

func TestListEvents_DateRange(t *testing.T) {
	s := memory.New()
	r := setup(t, s, recur.WithClock(fixedClock("2024-01-01")), recur.WithLookahead(60*24*time.Hour))
	createRule(t, r, recurrence.Input{Pattern: "WEEKLY", StartDate: "2024-01-01"})

	from, to := day("2024-02-01"), day("2024-02-29")
	events, err := r.ListEvents(ctx(), org, event.ListOpts{From: &from, To: &to, ExcludeTemplates: true})
	require.NoError(t, err)
	assert.Len(t, events, 4)
}
