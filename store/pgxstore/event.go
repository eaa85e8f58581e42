package pgxstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/recurrence"
)

const eventColumns = `id, organization_id, title, description, location, creator_id, admin_ids,
	is_public, all_day, start_time, end_time, occurrence_date, is_base_template,
	recurrence_rule_id, base_event_id, batch_id, metadata, deleted_at, created_at, updated_at`

const insertEventSQL = `INSERT INTO recur_events (` + eventColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

// eventArgs returns the insert arguments of evt in eventColumns order.
func eventArgs(evt *event.Event) []any {
	adminIDs := evt.AdminIDs
	if adminIDs == nil {
		adminIDs = []string{}
	}
	metadata := evt.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	var ruleID, baseID string
	if !evt.RecurrenceRuleID.IsNil() {
		ruleID = evt.RecurrenceRuleID.String()
	}
	if !evt.BaseEventID.IsNil() {
		baseID = evt.BaseEventID.String()
	}

	return []any{
		evt.ID.String(), evt.OrganizationID, evt.Title, evt.Description, evt.Location,
		evt.CreatorID, adminIDs, evt.IsPublic, evt.AllDay, evt.StartTime, evt.EndTime,
		recurrence.Day(evt.OccurrenceDate), evt.IsBaseTemplate, ruleID, baseID,
		evt.BatchID, metadata, evt.DeletedAt, evt.CreatedAt, evt.UpdatedAt,
	}
}

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	if _, err := s.pool.Exec(ctx, insertEventSQL, eventArgs(evt)...); err != nil {
		return fmt.Errorf("recur/pgx: create event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	evt, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM recur_events WHERE id = $1 AND deleted_at IS NULL`,
		evtID.String(),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, recur.ErrEventNotFound
		}
		return nil, fmt.Errorf("recur/pgx: get event: %w", err)
	}
	return evt, nil
}

func (s *Store) UpdateEvent(ctx context.Context, evt *event.Event) error {
	args := eventArgs(evt)
	tag, err := s.pool.Exec(ctx,
		`UPDATE recur_events SET
		    organization_id = $2, title = $3, description = $4, location = $5,
		    creator_id = $6, admin_ids = $7, is_public = $8, all_day = $9,
		    start_time = $10, end_time = $11, occurrence_date = $12,
		    is_base_template = $13, recurrence_rule_id = $14, base_event_id = $15,
		    batch_id = $16, metadata = $17, updated_at = $18
		 WHERE id = $1 AND deleted_at IS NULL`,
		append(args[:17:17], now())...,
	)
	if err != nil {
		return fmt.Errorf("recur/pgx: update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recur.ErrEventNotFound
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, evtID id.ID) error {
	t := now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE recur_events SET deleted_at = $1, updated_at = $1
		 WHERE id = $2 AND deleted_at IS NULL`,
		t, evtID.String(),
	)
	if err != nil {
		return fmt.Errorf("recur/pgx: delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recur.ErrEventNotFound
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error) {
	where := []string{"organization_id = $1", "deleted_at IS NULL"}
	args := []any{orgID}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if opts.ExcludeTemplates {
		where = append(where, "is_base_template = FALSE")
	}
	if opts.RecurrenceRuleID != nil {
		where = append(where, "recurrence_rule_id = "+arg(opts.RecurrenceRuleID.String()))
	}
	if opts.From != nil {
		where = append(where, "occurrence_date >= "+arg(recurrence.Day(*opts.From)))
	}
	if opts.To != nil {
		where = append(where, "occurrence_date <= "+arg(recurrence.Day(*opts.To)))
	}

	query := `SELECT ` + eventColumns + ` FROM recur_events WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY occurrence_date ASC, id ASC`
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + arg(opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recur/pgx: list events: %w", err)
	}
	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*event.Event, error) {
		return scanEvent(row)
	})
	if err != nil {
		return nil, fmt.Errorf("recur/pgx: scan events: %w", err)
	}
	return result, nil
}

// CountByRule counts every instance of a rule, soft-deleted ones included.
func (s *Store) CountByRule(ctx context.Context, ruleID id.ID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM recur_events WHERE recurrence_rule_id = $1`,
		ruleID.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("recur/pgx: count by rule: %w", err)
	}
	return n, nil
}

func scanEvent(row pgx.Row) (*event.Event, error) {
	var (
		evt                   event.Event
		evtID, ruleID, baseID string
		occurrence            time.Time
		adminIDs              []string
		metadata              map[string]string
	)
	err := row.Scan(&evtID, &evt.OrganizationID, &evt.Title, &evt.Description, &evt.Location,
		&evt.CreatorID, &adminIDs, &evt.IsPublic, &evt.AllDay, &evt.StartTime, &evt.EndTime,
		&occurrence, &evt.IsBaseTemplate, &ruleID, &baseID, &evt.BatchID, &metadata,
		&evt.DeletedAt, &evt.CreatedAt, &evt.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if evt.ID, err = id.ParseEventID(evtID); err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", evtID, err)
	}
	if ruleID != "" {
		if evt.RecurrenceRuleID, err = id.ParseRuleID(ruleID); err != nil {
			return nil, fmt.Errorf("parse recurrence rule ID %q: %w", ruleID, err)
		}
	}
	if baseID != "" {
		if evt.BaseEventID, err = id.ParseEventID(baseID); err != nil {
			return nil, fmt.Errorf("parse base event ID %q: %w", baseID, err)
		}
	}
	evt.OccurrenceDate = recurrence.Day(occurrence)
	if len(adminIDs) > 0 {
		evt.AdminIDs = adminIDs
	}
	if len(metadata) > 0 {
		evt.Metadata = metadata
	}
	return &evt, nil
}
