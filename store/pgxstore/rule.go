package pgxstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/recur"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/recurrence"
)

const ruleColumns = `id, organization_id, base_event_id, pattern, start_date, end_date,
	occurrence_limit, latest_instance_date, created_at, updated_at`

func (s *Store) CreateRule(ctx context.Context, r *recurrence.Rule) error {
	var limit *int32
	if r.OccurrenceLimit != nil {
		n := int32(*r.OccurrenceLimit) //nolint:gosec // validated to a small positive count
		limit = &n
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO recur_rules (`+ruleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID.String(), r.OrganizationID, r.BaseEventID.String(), string(r.Pattern),
		r.StartDate, r.EndDate, limit, r.LatestInstanceDate, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("recur/pgx: create rule: %w", err)
	}
	return nil
}

func (s *Store) GetRule(ctx context.Context, ruleID id.ID) (*recurrence.Rule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM recur_rules WHERE id = $1`,
		ruleID.String(),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, recur.ErrRuleNotFound
		}
		return nil, fmt.Errorf("recur/pgx: get rule: %w", err)
	}
	return r, nil
}

func (s *Store) ListRules(ctx context.Context, orgID string, opts recurrence.ListOpts) ([]*recurrence.Rule, error) {
	limit := any(nil)
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM recur_rules
		 WHERE organization_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2 OFFSET $3`,
		orgID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("recur/pgx: list rules: %w", err)
	}
	return collectRules(rows)
}

func (s *Store) DeleteRule(ctx context.Context, ruleID id.ID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM recur_rules WHERE id = $1`, ruleID.String())
	if err != nil {
		return fmt.Errorf("recur/pgx: delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recur.ErrRuleNotFound
	}
	return nil
}

func (s *Store) ListRulesNeedingAdvance(ctx context.Context, orgID string, horizon time.Time) ([]*recurrence.Rule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM recur_rules
		 WHERE organization_id = $1 AND latest_instance_date < $2
		 ORDER BY id ASC`,
		orgID, recurrence.Day(horizon),
	)
	if err != nil {
		return nil, fmt.Errorf("recur/pgx: list rules needing advance: %w", err)
	}
	return collectRules(rows)
}

// AdvanceCheckpoint locks the rule row, compares its checkpoint, and writes
// the new checkpoint together with every instance in one transaction.
func (s *Store) AdvanceCheckpoint(ctx context.Context, adv *recurrence.Advance) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("recur/pgx: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current time.Time
	err = tx.QueryRow(ctx,
		`SELECT latest_instance_date FROM recur_rules WHERE id = $1 FOR UPDATE`,
		adv.RuleID.String(),
	).Scan(&current)
	if err != nil {
		if isNoRows(err) {
			return recur.ErrCheckpointConflict
		}
		return fmt.Errorf("recur/pgx: lock rule: %w", err)
	}
	if !recurrence.Day(current).Equal(recurrence.Day(adv.Expected)) {
		return recur.ErrCheckpointConflict
	}

	_, err = tx.Exec(ctx,
		`UPDATE recur_rules SET latest_instance_date = $1, updated_at = $2 WHERE id = $3`,
		recurrence.Day(adv.Checkpoint), now(), adv.RuleID.String(),
	)
	if err != nil {
		return fmt.Errorf("recur/pgx: update checkpoint: %w", err)
	}

	if len(adv.Instances) > 0 {
		batch := &pgx.Batch{}
		for _, inst := range adv.Instances {
			batch.Queue(insertEventSQL, eventArgs(inst)...)
		}
		if err = tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("recur/pgx: insert instances: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("recur/pgx: commit: %w", err)
	}
	return nil
}

func scanRule(row pgx.Row) (*recurrence.Rule, error) {
	var (
		r                     recurrence.Rule
		ruleID, baseID        string
		pattern               string
		end                   *time.Time
		limit                 *int32
		start, latestInstance time.Time
	)
	err := row.Scan(&ruleID, &r.OrganizationID, &baseID, &pattern, &start, &end,
		&limit, &latestInstance, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if r.ID, err = id.ParseRuleID(ruleID); err != nil {
		return nil, fmt.Errorf("parse rule ID %q: %w", ruleID, err)
	}
	if r.BaseEventID, err = id.ParseEventID(baseID); err != nil {
		return nil, fmt.Errorf("parse base event ID %q: %w", baseID, err)
	}
	r.Pattern = recurrence.Pattern(pattern)
	r.StartDate = recurrence.Day(start)
	r.LatestInstanceDate = recurrence.Day(latestInstance)
	if end != nil {
		d := recurrence.Day(*end)
		r.EndDate = &d
	}
	if limit != nil {
		n := int(*limit)
		r.OccurrenceLimit = &n
	}
	return &r, nil
}

func collectRules(rows pgx.Rows) ([]*recurrence.Rule, error) {
	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*recurrence.Rule, error) {
		return scanRule(row)
	})
	if err != nil {
		return nil, fmt.Errorf("recur/pgx: scan rules: %w", err)
	}
	return result, nil
}
