package recur

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/observability"
	"github.com/xraph/recur/recurrence"
)

// MaterializerStore is the subset of store.Store the materializer needs.
type MaterializerStore interface {
	ListRulesNeedingAdvance(ctx context.Context, orgID string, horizon time.Time) ([]*recurrence.Rule, error)
	GetRule(ctx context.Context, ruleID id.ID) (*recurrence.Rule, error)
	GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error)
	CountByRule(ctx context.Context, ruleID id.ID) (int64, error)
	AdvanceCheckpoint(ctx context.Context, adv *recurrence.Advance) error
}

// MaterializerConfig holds materializer configuration.
type MaterializerConfig struct {
	Concurrency         int
	MaxConflictRetries  int
	RetryBackoff        []time.Duration
	MaxInstancesPerRule int
	Metrics             *observability.Metrics
	Tracer              *observability.Tracer
}

// Result summarizes one Materialize call.
type Result struct {
	// Processed counts the rules that were behind the horizon and examined.
	Processed int `json:"processed"`

	// Advanced counts rules whose checkpoint moved.
	Advanced int `json:"advanced"`

	// Skipped counts rules left untouched without error: orphaned,
	// exhausted, out of budget, or already caught up by a concurrent call.
	Skipped int `json:"skipped"`

	// Orphaned counts the skipped rules whose template is missing.
	Orphaned int `json:"orphaned"`

	// Failed counts rules abandoned for this call because of an error.
	Failed int `json:"failed"`

	// Created counts the instances inserted.
	Created int `json:"created"`
}

// outcome is what happened to one rule.
type outcome string

const (
	outcomeAdvanced outcome = "advanced"
	outcomeSkipped  outcome = "skipped"
	outcomeFailed   outcome = "failed"
)

// ruleResult is the outcome of advancing one rule.
type ruleResult struct {
	outcome  outcome
	reason   string
	created  int
	attempts int
	err      error
}

// Materializer expands recurrence rules into event instances up to a horizon.
//
// Every rule is advanced as one atomic unit through AdvanceCheckpoint, so
// any number of concurrent calls for the same organization converge on the
// same instance set.
type Materializer struct {
	store  MaterializerStore
	config MaterializerConfig
	logger *slog.Logger
}

// NewMaterializer creates a materializer.
func NewMaterializer(s MaterializerStore, cfg MaterializerConfig, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxConflictRetries < 0 {
		cfg.MaxConflictRetries = 0
	}
	return &Materializer{
		store:  s,
		config: cfg,
		logger: logger,
	}
}

// Materialize creates every missing instance dated on or before horizon for
// the organization's rules.
//
// Rules are processed independently. A failing rule does not stop its
// siblings; its error is joined into the returned error and the Result
// still describes everything that was done. When ctx ends mid-call, rules
// already committed stay committed and the rest are left for the next call.
func (m *Materializer) Materialize(ctx context.Context, orgID string, horizon time.Time) (*Result, error) {
	start := time.Now()
	horizon = recurrence.Day(horizon)

	var span trace.Span
	if m.config.Tracer != nil {
		ctx, span = m.config.Tracer.StartMaterializeSpan(ctx, orgID, horizon)
	}

	res, err := m.materialize(ctx, orgID, horizon)

	if span != nil {
		m.config.Tracer.EndMaterializeSpan(span, res.Processed, res.Advanced, res.Created, err)
	}
	if m.config.Metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.config.Metrics.RecordRun(status, time.Since(start))
	}

	m.logger.DebugContext(ctx, "materialized",
		"org_id", orgID,
		"horizon", recurrence.FormatDate(horizon),
		"processed", res.Processed,
		"advanced", res.Advanced,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"created", res.Created,
	)

	return res, err
}

func (m *Materializer) materialize(ctx context.Context, orgID string, horizon time.Time) (*Result, error) {
	res := &Result{}

	rules, err := m.store.ListRulesNeedingAdvance(ctx, orgID, horizon)
	if err != nil {
		return res, fmt.Errorf("recur: list rules needing advance: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, m.config.Concurrency)

dispatch:
	for _, rule := range rules {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			<-sem
			break dispatch
		}

		wg.Add(1)
		go func(rule *recurrence.Rule) {
			defer wg.Done()
			defer func() { <-sem }()

			rr := m.advanceRule(ctx, rule, horizon)

			mu.Lock()
			defer mu.Unlock()
			res.Processed++
			switch rr.outcome {
			case outcomeAdvanced:
				res.Advanced++
				res.Created += rr.created
			case outcomeSkipped:
				res.Skipped++
				if rr.reason == observability.SkipOrphaned {
					res.Orphaned++
				}
			case outcomeFailed:
				res.Failed++
				errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, rr.err))
			}
		}(rule)
	}
	wg.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil && res.Processed < len(rules) {
		errs = append(errs, fmt.Errorf("recur: materialize interrupted after %d of %d rules: %w",
			res.Processed, len(rules), ctxErr))
	}

	return res, errors.Join(errs...)
}

// advanceRule brings one rule up to horizon, recomputing against a fresh
// copy of the rule whenever a concurrent caller wins the checkpoint race.
func (m *Materializer) advanceRule(ctx context.Context, rule *recurrence.Rule, horizon time.Time) (rr ruleResult) {
	var span trace.Span
	if m.config.Tracer != nil {
		ctx, span = m.config.Tracer.StartRuleSpan(ctx, rule.ID.String())
		defer func() {
			m.config.Tracer.EndRuleSpan(span, string(rr.outcome), rr.created, rr.attempts, rr.err)
		}()
	}
	defer m.record(ctx, rule, &rr)

	for {
		rr.attempts++

		adv, reason, err := m.plan(ctx, rule, horizon)
		if err != nil {
			return ruleResult{outcome: outcomeFailed, attempts: rr.attempts, err: err}
		}
		if adv == nil {
			return ruleResult{outcome: outcomeSkipped, reason: reason, attempts: rr.attempts}
		}

		err = m.store.AdvanceCheckpoint(ctx, adv)
		if err == nil {
			return ruleResult{outcome: outcomeAdvanced, created: len(adv.Instances), attempts: rr.attempts}
		}
		if !errors.Is(err, ErrCheckpointConflict) {
			return ruleResult{outcome: outcomeFailed, attempts: rr.attempts, err: fmt.Errorf("advance checkpoint: %w", err)}
		}

		if m.config.Metrics != nil {
			m.config.Metrics.CheckpointConflictsTotal.Inc()
		}
		if rr.attempts > m.config.MaxConflictRetries {
			return ruleResult{outcome: outcomeFailed, attempts: rr.attempts, err: fmt.Errorf("%w after %d attempts: %w",
				ErrConflictRetriesExhausted, rr.attempts, err)}
		}

		if err := m.backoff(ctx, rr.attempts); err != nil {
			return ruleResult{outcome: outcomeFailed, attempts: rr.attempts, err: err}
		}

		rule, err = m.store.GetRule(ctx, rule.ID)
		if errors.Is(err, ErrRuleNotFound) {
			return ruleResult{outcome: outcomeSkipped, reason: observability.SkipDeleted, attempts: rr.attempts}
		}
		if err != nil {
			return ruleResult{outcome: outcomeFailed, attempts: rr.attempts, err: fmt.Errorf("reload rule: %w", err)}
		}
		if !rule.LatestInstanceDate.Before(horizon) {
			return ruleResult{outcome: outcomeSkipped, reason: observability.SkipCaughtUp, attempts: rr.attempts}
		}
	}
}

// plan computes the advance for rule against its current checkpoint. A nil
// advance with a reason means there is nothing to do.
func (m *Materializer) plan(ctx context.Context, rule *recurrence.Rule, horizon time.Time) (*recurrence.Advance, string, error) {
	if rule.Exhausted() {
		return nil, observability.SkipExhausted, nil
	}

	tmpl, err := m.store.GetEvent(ctx, rule.BaseEventID)
	if errors.Is(err, ErrEventNotFound) {
		return nil, observability.SkipOrphaned, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("load template: %w", err)
	}

	dates := recurrence.Dates(rule, horizon)

	if rule.HasLimit() && len(dates) > 0 {
		existing, err := m.store.CountByRule(ctx, rule.ID)
		if err != nil {
			return nil, "", fmt.Errorf("count instances: %w", err)
		}
		remaining := int64(*rule.OccurrenceLimit) - existing
		if remaining <= 0 {
			return nil, observability.SkipBudget, nil
		}
		if int64(len(dates)) > remaining {
			dates = dates[:remaining]
		}
	}

	if m.config.MaxInstancesPerRule > 0 && len(dates) > m.config.MaxInstancesPerRule {
		dates = dates[:m.config.MaxInstancesPerRule]
	}

	if len(dates) == 0 {
		return nil, observability.SkipCaughtUp, nil
	}

	batchID := uuid.NewString()
	return &recurrence.Advance{
		RuleID:     rule.ID,
		Expected:   rule.LatestInstanceDate,
		Checkpoint: dates[len(dates)-1],
		BatchID:    batchID,
		Instances:  recurrence.NewInstances(tmpl, rule, dates, batchID),
	}, "", nil
}

// backoff waits before conflict retry number attempt.
func (m *Materializer) backoff(ctx context.Context, attempt int) error {
	if len(m.config.RetryBackoff) == 0 {
		return ctx.Err()
	}
	idx := attempt - 1
	if idx >= len(m.config.RetryBackoff) {
		idx = len(m.config.RetryBackoff) - 1
	}

	timer := time.NewTimer(m.config.RetryBackoff[idx])
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// record logs the rule outcome and updates metrics.
func (m *Materializer) record(ctx context.Context, rule *recurrence.Rule, rr *ruleResult) {
	switch rr.outcome {
	case outcomeAdvanced:
		if m.config.Metrics != nil {
			m.config.Metrics.RecordAdvance(rr.created)
		}
		m.logger.DebugContext(ctx, "rule advanced",
			"rule_id", rule.ID, "created", rr.created, "attempts", rr.attempts)

	case outcomeSkipped:
		if m.config.Metrics != nil {
			m.config.Metrics.RecordSkip(rr.reason)
		}
		if rr.reason == observability.SkipOrphaned {
			m.logger.WarnContext(ctx, "orphaned recurrence rule",
				"rule_id", rule.ID, "base_event_id", rule.BaseEventID, "org_id", rule.OrganizationID)
		}

	case outcomeFailed:
		if m.config.Metrics != nil {
			m.config.Metrics.RulesFailedTotal.Inc()
		}
		m.logger.ErrorContext(ctx, "advance rule failed",
			"rule_id", rule.ID, "attempts", rr.attempts, "error", rr.err)
	}
}
