// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/recurrence"
	recurstore "github.com/xraph/recur/store"
	"github.com/xraph/recur/store/cas"
)

// compile-time interface checks.
var (
	_ recurstore.Store = (*Store)(nil)
	_ cas.Backend      = (*Store)(nil)
)

// AdvanceHook runs inside AdvanceCheckpoint right before the checkpoint is
// written. Returning an error aborts the advance.
type AdvanceHook func(ctx context.Context, adv *recurrence.Advance) error

// Option configures the in-memory store.
type Option func(*Store)

// WithTransactions selects between the transactional advance (true, the
// default) and the insert-then-compare-and-swap path used by backends
// without multi-document transactions.
func WithTransactions(enabled bool) Option {
	return func(s *Store) { s.transactional = enabled }
}

// WithAdvanceHook installs a hook that runs before every checkpoint write.
func WithAdvanceHook(h AdvanceHook) Option {
	return func(s *Store) { s.hook = h }
}

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.RWMutex

	rules  map[string]*recurrence.Rule // keyed by ID string
	events map[string]*event.Event     // keyed by ID string

	transactional bool
	hook          AdvanceHook
	advances      int

	closed bool
}

// New creates a new in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		rules:         make(map[string]*recurrence.Rule),
		events:        make(map[string]*event.Event),
		transactional: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAdvanceHook replaces the advance hook. Pass nil to remove it.
func (s *Store) SetAdvanceHook(h AdvanceHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// Advances returns how many checkpoint advances have been committed.
func (s *Store) Advances() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.advances
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return recur.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// recurrence.Store
// ──────────────────────────────────────────────────

// CreateRule persists a new rule.
func (s *Store) CreateRule(_ context.Context, rule *recurrence.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return recur.ErrStoreClosed
	}
	s.rules[rule.ID.String()] = cloneRule(rule)
	return nil
}

// GetRule returns a rule by ID.
func (s *Store) GetRule(_ context.Context, ruleID id.ID) (*recurrence.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[ruleID.String()]
	if !ok {
		return nil, recur.ErrRuleNotFound
	}
	return cloneRule(r), nil
}

// ListRules returns the rules of an organization ordered by creation time.
func (s *Store) ListRules(_ context.Context, orgID string, opts recurrence.ListOpts) ([]*recurrence.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*recurrence.Rule, 0)
	for _, r := range s.rules {
		if r.OrganizationID == orgID {
			result = append(result, cloneRule(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(_ context.Context, ruleID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[ruleID.String()]; !ok {
		return recur.ErrRuleNotFound
	}
	delete(s.rules, ruleID.String())
	return nil
}

// ListRulesNeedingAdvance returns the organization's rules whose checkpoint
// is before horizon.
func (s *Store) ListRulesNeedingAdvance(_ context.Context, orgID string, horizon time.Time) ([]*recurrence.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, recur.ErrStoreClosed
	}

	result := make([]*recurrence.Rule, 0)
	for _, r := range s.rules {
		if r.OrganizationID == orgID && r.LatestInstanceDate.Before(horizon) {
			result = append(result, cloneRule(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

// AdvanceCheckpoint moves a rule's checkpoint and inserts its instances.
func (s *Store) AdvanceCheckpoint(ctx context.Context, adv *recurrence.Advance) error {
	if !s.transactional {
		return cas.CommitWithCAS(ctx, s, adv)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return recur.ErrStoreClosed
	}

	r, ok := s.rules[adv.RuleID.String()]
	if !ok {
		return recur.ErrRuleNotFound
	}
	if !r.LatestInstanceDate.Equal(adv.Expected) {
		return recur.ErrCheckpointConflict
	}

	if s.hook != nil {
		if err := s.hook(ctx, adv); err != nil {
			return err
		}
	}

	for _, inst := range adv.Instances {
		s.events[inst.ID.String()] = cloneEvent(inst)
	}
	r.LatestInstanceDate = adv.Checkpoint
	r.UpdatedAt = time.Now().UTC()
	s.advances++
	return nil
}

// ──────────────────────────────────────────────────
// cas.Backend
// ──────────────────────────────────────────────────

// InsertBatch inserts instances without touching any rule.
func (s *Store) InsertBatch(_ context.Context, _ string, instances []*event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return recur.ErrStoreClosed
	}
	for _, inst := range instances {
		s.events[inst.ID.String()] = cloneEvent(inst)
	}
	return nil
}

// SwapCheckpoint compares and swaps a rule's checkpoint.
func (s *Store) SwapCheckpoint(ctx context.Context, ruleID id.ID, expected, next time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, recur.ErrStoreClosed
	}

	r, ok := s.rules[ruleID.String()]
	if !ok {
		return false, recur.ErrRuleNotFound
	}
	if !r.LatestInstanceDate.Equal(expected) {
		return false, nil
	}

	if s.hook != nil {
		adv := &recurrence.Advance{RuleID: ruleID, Expected: expected, Checkpoint: next}
		if err := s.hook(ctx, adv); err != nil {
			return false, err
		}
	}

	r.LatestInstanceDate = next
	r.UpdatedAt = time.Now().UTC()
	s.advances++
	return true, nil
}

// DeleteBatch hard-deletes every event carrying batchID.
func (s *Store) DeleteBatch(_ context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, evt := range s.events {
		if evt.BatchID == batchID {
			delete(s.events, k)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// CreateEvent persists a single event.
func (s *Store) CreateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return recur.ErrStoreClosed
	}
	s.events[evt.ID.String()] = cloneEvent(evt)
	return nil
}

// GetEvent returns a live event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, recur.ErrStoreClosed
	}

	evt, ok := s.events[evtID.String()]
	if !ok || evt.IsDeleted() {
		return nil, recur.ErrEventNotFound
	}
	return cloneEvent(evt), nil
}

// UpdateEvent modifies an existing live event.
func (s *Store) UpdateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[evt.ID.String()]
	if !ok || existing.IsDeleted() {
		return recur.ErrEventNotFound
	}
	evt.UpdatedAt = time.Now().UTC()
	s.events[evt.ID.String()] = cloneEvent(evt)
	return nil
}

// DeleteEvent soft-deletes an event.
func (s *Store) DeleteEvent(_ context.Context, evtID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt, ok := s.events[evtID.String()]
	if !ok || evt.IsDeleted() {
		return recur.ErrEventNotFound
	}
	now := time.Now().UTC()
	evt.DeletedAt = &now
	evt.UpdatedAt = now
	return nil
}

// ListEvents returns the live events of an organization by occurrence date.
func (s *Store) ListEvents(_ context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, recur.ErrStoreClosed
	}

	result := make([]*event.Event, 0)
	for _, evt := range s.events {
		if evt.OrganizationID != orgID || evt.IsDeleted() {
			continue
		}
		if evt.IsBaseTemplate && opts.ExcludeTemplates {
			continue
		}
		if opts.RecurrenceRuleID != nil && evt.RecurrenceRuleID != *opts.RecurrenceRuleID {
			continue
		}
		if opts.From != nil && evt.OccurrenceDate.Before(*opts.From) {
			continue
		}
		if opts.To != nil && evt.OccurrenceDate.After(*opts.To) {
			continue
		}
		result = append(result, cloneEvent(evt))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].OccurrenceDate.Equal(result[j].OccurrenceDate) {
			return result[i].OccurrenceDate.Before(result[j].OccurrenceDate)
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// CountByRule counts every instance of a rule, deleted or not.
func (s *Store) CountByRule(_ context.Context, ruleID id.ID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, recur.ErrStoreClosed
	}

	var n int64
	for _, evt := range s.events {
		if evt.RecurrenceRuleID == ruleID {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func cloneRule(r *recurrence.Rule) *recurrence.Rule {
	c := *r
	if r.EndDate != nil {
		end := *r.EndDate
		c.EndDate = &end
	}
	if r.OccurrenceLimit != nil {
		limit := *r.OccurrenceLimit
		c.OccurrenceLimit = &limit
	}
	return &c
}

func cloneEvent(e *event.Event) *event.Event {
	c := *e
	c.AdminIDs = slices.Clone(e.AdminIDs)
	c.Metadata = maps.Clone(e.Metadata)
	if e.DeletedAt != nil {
		at := *e.DeletedAt
		c.DeletedAt = &at
	}
	return &c
}

// applyPagination applies offset and limit to a slice.
func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset > 0 {
		return nil
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
