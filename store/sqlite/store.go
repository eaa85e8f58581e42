package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/recurrence"
	recurstore "github.com/xraph/recur/store"
	"github.com/xraph/recur/store/cas"
)

// compile-time interface checks
var (
	_ recurstore.Store = (*Store)(nil)
	_ cas.Backend      = (*Store)(nil)
)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("recur/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: recur/sqlite: %w", recur.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Rule Store ====================

func (s *Store) CreateRule(ctx context.Context, r *recurrence.Rule) error {
	_, err := s.sdb.NewInsert(toRuleModel(r)).Exec(ctx)
	return err
}

func (s *Store) GetRule(ctx context.Context, ruleID id.ID) (*recurrence.Rule, error) {
	m := new(ruleModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", ruleID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, recur.ErrRuleNotFound
		}
		return nil, err
	}
	return fromRuleModel(m)
}

func (s *Store) ListRules(ctx context.Context, orgID string, opts recurrence.ListOpts) ([]*recurrence.Rule, error) {
	var models []ruleModel
	q := s.sdb.NewSelect(&models).Where("organization_id = ?", orgID)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromRuleModels(models)
}

func (s *Store) DeleteRule(ctx context.Context, ruleID id.ID) error {
	res, err := s.sdb.NewDelete((*ruleModel)(nil)).
		Where("id = ?", ruleID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return recur.ErrRuleNotFound
	}
	return nil
}

func (s *Store) ListRulesNeedingAdvance(ctx context.Context, orgID string, horizon time.Time) ([]*recurrence.Rule, error) {
	var models []ruleModel
	err := s.sdb.NewSelect(&models).
		Where("organization_id = ?", orgID).
		Where("latest_instance_date < ?", recurrence.FormatDate(horizon)).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromRuleModels(models)
}

// AdvanceCheckpoint commits an advance through compare-and-swap.
func (s *Store) AdvanceCheckpoint(ctx context.Context, adv *recurrence.Advance) error {
	return cas.CommitWithCAS(ctx, s, adv)
}

// InsertBatch inserts the instances of one advance.
func (s *Store) InsertBatch(ctx context.Context, _ string, instances []*event.Event) error {
	if len(instances) == 0 {
		return nil
	}
	models := make([]eventModel, len(instances))
	for i, inst := range instances {
		models[i] = *toEventModel(inst)
	}
	_, err := s.sdb.NewInsert(&models).Exec(ctx)
	return err
}

// SwapCheckpoint moves the checkpoint only if it still equals expected.
func (s *Store) SwapCheckpoint(ctx context.Context, ruleID id.ID, expected, next time.Time) (bool, error) {
	res, err := s.sdb.NewUpdate((*ruleModel)(nil)).
		Set("latest_instance_date = ?", recurrence.FormatDate(next)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", ruleID.String()).
		Where("latest_instance_date = ?", recurrence.FormatDate(expected)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// DeleteBatch hard-deletes every event carrying batchID.
func (s *Store) DeleteBatch(ctx context.Context, batchID string) error {
	_, err := s.sdb.NewDelete((*eventModel)(nil)).
		Where("batch_id = ?", batchID).
		Exec(ctx)
	return err
}

// ==================== Event Store ====================

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	_, err := s.sdb.NewInsert(toEventModel(evt)).Exec(ctx)
	return err
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	m := new(eventModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", evtID.String()).
		Where("deleted_at IS NULL").
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, recur.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) UpdateEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.sdb.NewUpdate(m).
		WherePK().
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return recur.ErrEventNotFound
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, evtID id.ID) error {
	t := time.Now().UTC()
	res, err := s.sdb.NewUpdate((*eventModel)(nil)).
		Set("deleted_at = ?", t).
		Set("updated_at = ?", t).
		Where("id = ?", evtID.String()).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return recur.ErrEventNotFound
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.sdb.NewSelect(&models).
		Where("organization_id = ?", orgID).
		Where("deleted_at IS NULL")

	if opts.ExcludeTemplates {
		q = q.Where("is_base_template = 0")
	}
	if opts.RecurrenceRuleID != nil {
		q = q.Where("recurrence_rule_id = ?", opts.RecurrenceRuleID.String())
	}
	if opts.From != nil {
		q = q.Where("occurrence_date >= ?", recurrence.FormatDate(*opts.From))
	}
	if opts.To != nil {
		q = q.Where("occurrence_date <= ?", recurrence.FormatDate(*opts.To))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("occurrence_date ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

// CountByRule counts every instance of a rule, soft-deleted ones included.
func (s *Store) CountByRule(ctx context.Context, ruleID id.ID) (int64, error) {
	count, err := s.sdb.NewSelect((*eventModel)(nil)).
		Where("recurrence_rule_id = ?", ruleID.String()).
		Count(ctx)
	return count, err
}

// ==================== Helpers ====================

func fromRuleModels(models []ruleModel) ([]*recurrence.Rule, error) {
	result := make([]*recurrence.Rule, len(models))
	for i := range models {
		r, err := fromRuleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
