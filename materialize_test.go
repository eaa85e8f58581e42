package recur_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/observability"
	"github.com/xraph/recur/recurrence"
	"github.com/xraph/recur/store/memory"
)

const org = "org_1"

func ctx() context.Context { return context.Background() }

func day(s string) time.Time {
	d, err := recurrence.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func intPtr(n int) *int { return &n }

// storeModes runs fn against a transactional and a compare-and-swap store.
func storeModes(t *testing.T, fn func(t *testing.T, s *memory.Store)) {
	t.Helper()
	t.Run("transactional", func(t *testing.T) { fn(t, memory.New()) })
	t.Run("cas", func(t *testing.T) { fn(t, memory.New(memory.WithTransactions(false))) })
}

func setup(t *testing.T, s *memory.Store, opts ...recur.Option) *recur.Recur {
	t.Helper()
	opts = append([]recur.Option{
		recur.WithStore(s),
		recur.WithRetryBackoff([]time.Duration{time.Millisecond}),
	}, opts...)
	r, err := recur.New(opts...)
	require.NoError(t, err)
	return r
}

func createRule(t *testing.T, r *recur.Recur, in recurrence.Input) *recurrence.Rule {
	t.Helper()
	if in.OrganizationID == "" {
		in.OrganizationID = org
	}
	if in.Title == "" {
		in.Title = "standup"
	}
	rule, _, err := r.CreateRecurringEvent(ctx(), in)
	require.NoError(t, err)
	return rule
}

// instanceDates returns the occurrence dates of a rule's live instances.
func instanceDates(t *testing.T, s *memory.Store, rule *recurrence.Rule) []string {
	t.Helper()
	ruleID := rule.ID
	events, err := s.ListEvents(ctx(), rule.OrganizationID, event.ListOpts{RecurrenceRuleID: &ruleID})
	require.NoError(t, err)

	dates := make([]string, 0, len(events))
	for _, e := range events {
		dates = append(dates, recurrence.FormatDate(e.OccurrenceDate))
	}
	return dates
}

func checkpoint(t *testing.T, s *memory.Store, rule *recurrence.Rule) string {
	t.Helper()
	got, err := s.GetRule(ctx(), rule.ID)
	require.NoError(t, err)
	return recurrence.FormatDate(got.LatestInstanceDate)
}

// ──────────────────────────────────────────────────
// Scenarios
// ──────────────────────────────────────────────────

func TestMaterialize_WeeklyUpToHorizon(t *testing.T) {
	storeModes(t, func(t *testing.T, s *memory.Store) {
		r := setup(t, s)
		rule := createRule(t, r, recurrence.Input{Pattern: "WEEKLY", StartDate: "2024-01-01"})

		res, err := r.Materialize(ctx(), org, day("2024-01-22"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Advanced)
		assert.Equal(t, 3, res.Created)
		assert.Equal(t, []string{"2024-01-08", "2024-01-15", "2024-01-22"}, instanceDates(t, s, rule))
		assert.Equal(t, "2024-01-22", checkpoint(t, s, rule))

		// Calling again with the same horizon is a no-op.
		res, err = r.Materialize(ctx(), org, day("2024-01-22"))
		require.NoError(t, err)
		assert.Zero(t, res.Created)
		assert.Zero(t, res.Processed, "caught-up rule should not be loaded")
		assert.Len(t, instanceDates(t, s, rule), 3)
	})
}

func TestMaterialize_OccurrenceLimit(t *testing.T) {
	storeModes(t, func(t *testing.T, s *memory.Store) {
		r := setup(t, s)
		rule := createRule(t, r, recurrence.Input{
			Pattern:         "DAILY",
			StartDate:       "2024-03-01",
			OccurrenceLimit: intPtr(2),
		})

		res, err := r.Materialize(ctx(), org, day("2024-03-10"))
		require.NoError(t, err)
		assert.Equal(t, 2, res.Created)
		assert.Equal(t, []string{"2024-03-02", "2024-03-03"}, instanceDates(t, s, rule))
		assert.Equal(t, "2024-03-03", checkpoint(t, s, rule))

		res, err = r.Materialize(ctx(), org, day("2024-12-31"))
		require.NoError(t, err)
		assert.Zero(t, res.Created)
		assert.Equal(t, 1, res.Skipped)
		assert.Len(t, instanceDates(t, s, rule), 2)
		assert.Equal(t, "2024-03-03", checkpoint(t, s, rule))
	})
}

func TestMaterialize_MonthlyUntilEndDate(t *testing.T) {
	storeModes(t, func(t *testing.T, s *memory.Store) {
		r := setup(t, s)
		rule := createRule(t, r, recurrence.Input{
			Pattern:   "MONTHLY",
			StartDate: "2024-01-01",
			EndDate:   "2024-06-01",
		})

		_, err := r.Materialize(ctx(), org, day("2024-12-31"))
		require.NoError(t, err)
		assert.Equal(t,
			[]string{"2024-02-01", "2024-03-01", "2024-04-01", "2024-05-01", "2024-06-01"},
			instanceDates(t, s, rule))

		// Exhausted rules stay behind the horizon but are never advanced again.
		res, err := r.Materialize(ctx(), org, day("2025-12-31"))
		require.NoError(t, err)
		assert.Zero(t, res.Created)
		assert.Len(t, instanceDates(t, s, rule), 5)
	})
}

func TestMaterialize_OrphanedRule(t *testing.T) {
	storeModes(t, func(t *testing.T, s *memory.Store) {
		r := setup(t, s)
		orphan := createRule(t, r, recurrence.Input{Pattern: "WEEKLY", StartDate: "2024-01-01"})
		healthy := createRule(t, r, recurrence.Input{Pattern: "WEEKLY", StartDate: "2024-01-01"})

		require.NoError(t, s.DeleteEvent(ctx(), orphan.BaseEventID))

		res, err := r.Materialize(ctx(), org, day("2024-01-22"))
		require.NoError(t, err)
		assert.Equal(t, 2, res.Processed)
		assert.Equal(t, 1, res.Orphaned)
		assert.Equal(t, 1, res.Advanced)
		assert.Empty(t, instanceDates(t, s, orphan))
		assert.Len(t, instanceDates(t, s, healthy), 3)
		assert.Equal(t, "2023-12-31", checkpoint(t, s, orphan))
	})
}

// ──────────────────────────────────────────────────
// Properties
// ──────────────────────────────────────────────────

func TestMaterialize_Idempotent(t *testing.T) {
	storeModes(t, func(t *testing.T, s *memory.Store) {
		r := setup(t, s)
		rule := createRule(t, r, recurrence.Input{Pattern: "DAILY", StartDate: "2024-01-01"})

		_, err := r.Materialize(ctx(), org, day("2024-02-01"))
		require.NoError(t, err)
		first := instanceDates(t, s, rule)

		_, err = r.Materialize(ctx(), org, day("2024-02-01"))
		require.NoError(t, err)
		assert.Equal(t, first, instanceDates(t, s, rule))
	})
}

func TestMaterialize_ConcurrentCallsDoNotDuplicate(t *testing.T) {
	storeModes(t, func(t *testing.T, s *memory.Store) {
		r := setup(t, s, recur.WithMaxConflictRetries(5))
		rules := []*recurrence.Rule{
			createRule(t, r, recurrence.Input{Pattern: "DAILY", StartDate: "2024-01-01"}),
			createRule(t, r, recurrence.Input{Pattern: "WEEKLY", StartDate: "2024-01-03"}),
			createRule(t, r, recurrence.Input{Pattern: "MONTHLY", StartDate: "2024-01-31"}),
			createRule(t, r, recurrence.Input{Pattern: "DAILY", StartDate: "2024-01-01", OccurrenceLimit: intPtr(10)}),
		}

		const callers = 16
		var wg sync.WaitGroup
		errs := make(chan error, callers)
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.Materialize(ctx(), org, day("2024-12-31"))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		// A single sequential run on a fresh store is the reference.
		ref := memory.New()
		refRecur := setup(t, ref)
		for _, rule := range rules {
			require.NoError(t, ref.CreateRule(ctx(), rule))
			tmpl, err := s.GetEvent(ctx(), rule.BaseEventID)
			require.NoError(t, err)
			require.NoError(t, ref.CreateEvent(ctx(), tmpl))
		}
		_, err := refRecur.Materialize(ctx(), org, day("2024-12-31"))
		require.NoError(t, err)

		for _, rule := range rules {
			assert.Equal(t, instanceDates(t, ref, rule), instanceDates(t, s, rule), "rule %s", rule.Pattern)
		}
		assert.Equal(t, 365, len(instanceDates(t, s, rules[0])))
		assert.Len(t, instanceDates(t, s, rules[3]), 10)
	})
}

func TestMaterialize_CheckpointIsMonotonic(t *testing.T) {
	storeModes(t, func(t *testing.T, s *memory.Store) {
		r := setup(t, s)
		rule := createRule(t, r, recurrence.Input{Pattern: "WEEKLY", StartDate: "2024-01-01"})

		prev := checkpoint(t, s, rule)
		for _, h := range []string{"2024-03-01", "2024-02-01", "2024-06-01", "2024-01-01", "2024-06-02"} {
			_, err := r.Materialize(ctx(), org, day(h))
			require.NoError(t, err)

			cur := checkpoint(t, s, rule)
			assert.GreaterOrEqual(t, cur, prev, "checkpoint moved back at horizon %s", h)
			prev = cur
		}
	})
}

func TestMaterialize_BudgetCountsDeletedInstances(t *testing.T) {
	storeModes(t, func(t *testing.T, s *memory.Store) {
		r := setup(t, s)
		rule := createRule(t, r, recurrence.Input{
			Pattern:         "DAILY",
			StartDate:       "2024-01-01",
			OccurrenceLimit: intPtr(3),
		})

		_, err := r.Materialize(ctx(), org, day("2024-01-02"))
		require.NoError(t, err)
		require.Len(t, instanceDates(t, s, rule), 1)

		ruleID := rule.ID
		events, err := s.ListEvents(ctx(), org, event.ListOpts{RecurrenceRuleID: &ruleID})
		require.NoError(t, err)
		require.NoError(t, r.DeleteEvent(ctx(), events[0].ID))

		for _, h := range []string{"2024-02-01", "2025-01-01", "2030-01-01"} {
			_, err := r.Materialize(ctx(), org, day(h))
			require.NoError(t, err)
		}

		n, err := s.CountByRule(ctx(), rule.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
		assert.Equal(t, []string{"2024-01-03", "2024-01-04"}, instanceDates(t, s, rule))
	})
}

func TestMaterialize_BoundedByHorizon(t *testing.T) {
	storeModes(t, func(t *testing.T, s *memory.Store) {
		r := setup(t, s)
		for _, p := range recurrence.Patterns {
			createRule(t, r, recurrence.Input{Pattern: string(p), StartDate: "2024-01-31"})
		}

		horizon := day("2024-07-15")
		_, err := r.Materialize(ctx(), org, horizon)
		require.NoError(t, err)

		events, err := s.ListEvents(ctx(), org, event.ListOpts{ExcludeTemplates: true})
		require.NoError(t, err)
		require.NotEmpty(t, events)
		for _, e := range events {
			assert.False(t, e.OccurrenceDate.After(horizon), "instance on %s", recurrence.FormatDate(e.OccurrenceDate))
		}
	})
}

func TestMaterialize_FailedCommitLeavesNoTrace(t *testing.T) {
	storeModes(t, func(t *testing.T, s *memory.Store) {
		r := setup(t, s)
		rule := createRule(t, r, recurrence.Input{Pattern: "DAILY", StartDate: "2024-01-01"})

		s.SetAdvanceHook(func(context.Context, *recurrence.Advance) error {
			return errors.New("connection reset")
		})
		res, err := r.Materialize(ctx(), org, day("2024-01-10"))
		require.Error(t, err)
		assert.Equal(t, 1, res.Failed)
		assert.Empty(t, instanceDates(t, s, rule))
		assert.Equal(t, "2023-12-31", checkpoint(t, s, rule))

		s.SetAdvanceHook(nil)
		_, err = r.Materialize(ctx(), org, day("2024-01-10"))
		require.NoError(t, err)

		want := []string{
			"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-06",
			"2024-01-07", "2024-01-08", "2024-01-09", "2024-01-10",
		}
		assert.Equal(t, want, instanceDates(t, s, rule))
	})
}

func TestMaterialize_FailingRuleDoesNotBlockSiblings(t *testing.T) {
	s := memory.New()
	r := setup(t, s)
	bad := createRule(t, r, recurrence.Input{Pattern: "DAILY", StartDate: "2024-01-01"})
	good := createRule(t, r, recurrence.Input{Pattern: "DAILY", StartDate: "2024-01-01"})

	s.SetAdvanceHook(func(_ context.Context, adv *recurrence.Advance) error {
		if adv.RuleID == bad.ID {
			return errors.New("write failed")
		}
		return nil
	})

	res, err := r.Materialize(ctx(), org, day("2024-01-05"))
	require.Error(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Advanced)
	assert.Empty(t, instanceDates(t, s, bad))
	assert.Len(t, instanceDates(t, s, good), 4)
}

func TestMaterialize_ConflictRetriesExhausted(t *testing.T) {
	storeModes(t, func(t *testing.T, s *memory.Store) {
		r := setup(t, s, recur.WithMaxConflictRetries(2))
		rule := createRule(t, r, recurrence.Input{Pattern: "DAILY", StartDate: "2024-01-01"})

		attempts := 0
		s.SetAdvanceHook(func(context.Context, *recurrence.Advance) error {
			attempts++
			return recur.ErrCheckpointConflict
		})

		res, err := r.Materialize(ctx(), org, day("2024-01-05"))
		require.ErrorIs(t, err, recur.ErrConflictRetriesExhausted)
		assert.ErrorIs(t, err, recur.ErrCheckpointConflict)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 1, res.Failed)
		assert.Empty(t, instanceDates(t, s, rule))
	})
}

func TestMaterialize_MaxInstancesPerRule(t *testing.T) {
	s := memory.New()
	r := setup(t, s, recur.WithMaxInstancesPerRule(5))
	rule := createRule(t, r, recurrence.Input{Pattern: "DAILY", StartDate: "2024-01-01"})

	res, err := r.Materialize(ctx(), org, day("2024-12-31"))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Created)
	assert.Equal(t, "2024-01-06", checkpoint(t, s, rule))

	_, err = r.Materialize(ctx(), org, day("2024-12-31"))
	require.NoError(t, err)
	dates := instanceDates(t, s, rule)
	assert.Len(t, dates, 10)
	assert.Equal(t, "2024-01-11", dates[9])
}

func TestMaterialize_DeadlineKeepsCommittedRules(t *testing.T) {
	runCtx, cancel := context.WithCancel(ctx())
	defer cancel()

	s := memory.New(memory.WithAdvanceHook(func(context.Context, *recurrence.Advance) error {
		cancel()
		return nil
	}))
	r := setup(t, s, recur.WithConcurrency(1))
	for range 3 {
		createRule(t, r, recurrence.Input{Pattern: "WEEKLY", StartDate: "2024-01-01"})
	}

	res, err := r.Materialize(runCtx, org, day("2024-02-01"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Advanced)

	s.SetAdvanceHook(nil)
	res, err = r.Materialize(ctx(), org, day("2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Advanced)
	assert.Equal(t, 3, s.Advances())
}

func TestMaterialize_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	s := memory.New()
	r := setup(t, s, recur.WithMetrics(m), recur.WithTracer(observability.NewTracer()))
	createRule(t, r, recurrence.Input{Pattern: "WEEKLY", StartDate: "2024-01-01"})
	orphan := createRule(t, r, recurrence.Input{Pattern: "WEEKLY", StartDate: "2024-01-01"})
	require.NoError(t, s.DeleteEvent(ctx(), orphan.BaseEventID))

	_, err := r.Materialize(ctx(), org, day("2024-01-22"))
	require.NoError(t, err)

	assert.InDelta(t, 3, testutil.ToFloat64(m.InstancesCreatedTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RulesAdvancedTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RulesSkippedTotal.WithLabelValues(observability.SkipOrphaned)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MaterializeRunsTotal.WithLabelValues("ok")), 0)
}
