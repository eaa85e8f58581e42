package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/internal/entity"
)

// eventModel is the JSON representation stored in Redis.
type eventModel struct {
	ID               string            `json:"id"`
	OrganizationID   string            `json:"organization_id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Location         string            `json:"location,omitempty"`
	CreatorID        string            `json:"creator_id"`
	AdminIDs         []string          `json:"admin_ids,omitempty"`
	IsPublic         bool              `json:"is_public"`
	AllDay           bool              `json:"all_day"`
	StartTime        string            `json:"start_time,omitempty"`
	EndTime          string            `json:"end_time,omitempty"`
	OccurrenceDate   time.Time         `json:"occurrence_date"`
	IsBaseTemplate   bool              `json:"is_base_template"`
	RecurrenceRuleID string            `json:"recurrence_rule_id,omitempty"`
	BaseEventID      string            `json:"base_event_id,omitempty"`
	BatchID          string            `json:"batch_id,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	DeletedAt        *time.Time        `json:"deleted_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	m := &eventModel{
		ID:             evt.ID.String(),
		OrganizationID: evt.OrganizationID,
		Title:          evt.Title,
		Description:    evt.Description,
		Location:       evt.Location,
		CreatorID:      evt.CreatorID,
		AdminIDs:       evt.AdminIDs,
		IsPublic:       evt.IsPublic,
		AllDay:         evt.AllDay,
		StartTime:      evt.StartTime,
		EndTime:        evt.EndTime,
		OccurrenceDate: evt.OccurrenceDate,
		IsBaseTemplate: evt.IsBaseTemplate,
		BatchID:        evt.BatchID,
		Metadata:       evt.Metadata,
		DeletedAt:      evt.DeletedAt,
		CreatedAt:      evt.CreatedAt,
		UpdatedAt:      evt.UpdatedAt,
	}
	if !evt.RecurrenceRuleID.IsNil() {
		m.RecurrenceRuleID = evt.RecurrenceRuleID.String()
	}
	if !evt.BaseEventID.IsNil() {
		m.BaseEventID = evt.BaseEventID.String()
	}
	return m
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}

	evt := &event.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             evtID,
		OrganizationID: m.OrganizationID,
		Title:          m.Title,
		Description:    m.Description,
		Location:       m.Location,
		CreatorID:      m.CreatorID,
		AdminIDs:       m.AdminIDs,
		IsPublic:       m.IsPublic,
		AllDay:         m.AllDay,
		StartTime:      m.StartTime,
		EndTime:        m.EndTime,
		OccurrenceDate: m.OccurrenceDate.UTC(),
		IsBaseTemplate: m.IsBaseTemplate,
		BatchID:        m.BatchID,
		Metadata:       m.Metadata,
		DeletedAt:      m.DeletedAt,
	}

	if m.RecurrenceRuleID != "" {
		if evt.RecurrenceRuleID, err = id.ParseRuleID(m.RecurrenceRuleID); err != nil {
			return nil, fmt.Errorf("parse recurrence rule ID %q: %w", m.RecurrenceRuleID, err)
		}
	}
	if m.BaseEventID != "" {
		if evt.BaseEventID, err = id.ParseEventID(m.BaseEventID); err != nil {
			return nil, fmt.Errorf("parse base event ID %q: %w", m.BaseEventID, err)
		}
	}

	return evt, nil
}

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)

	if err := s.setEntity(ctx, entityKey(prefixEvent, m.ID), m); err != nil {
		return fmt.Errorf("recur/redis: create event: %w", err)
	}

	pipe := s.rdb.Pipeline()
	if m.DeletedAt == nil {
		pipe.ZAdd(ctx, zEventOrg+m.OrganizationID, goredis.Z{Score: scoreFromDate(m.OccurrenceDate), Member: m.ID})
	}
	if m.RecurrenceRuleID != "" {
		pipe.SAdd(ctx, sRuleInstances+m.RecurrenceRuleID, m.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recur/redis: create event indexes: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	m, err := s.getLiveEventModel(ctx, evtID.String())
	if err != nil {
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) UpdateEvent(ctx context.Context, evt *event.Event) error {
	existing, err := s.getLiveEventModel(ctx, evt.ID.String())
	if err != nil {
		return err
	}

	m := toEventModel(evt)
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, entityKey(prefixEvent, m.ID), m); err != nil {
		return fmt.Errorf("recur/redis: update event: %w", err)
	}

	pipe := s.rdb.Pipeline()
	if existing.OrganizationID != m.OrganizationID {
		pipe.ZRem(ctx, zEventOrg+existing.OrganizationID, m.ID)
	}
	pipe.ZAdd(ctx, zEventOrg+m.OrganizationID, goredis.Z{Score: scoreFromDate(m.OccurrenceDate), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recur/redis: update event indexes: %w", err)
	}
	return nil
}

// DeleteEvent soft-deletes an event. It leaves the organization listing but
// stays in its rule's instance set, so it still counts toward the limit.
func (s *Store) DeleteEvent(ctx context.Context, evtID id.ID) error {
	m, err := s.getLiveEventModel(ctx, evtID.String())
	if err != nil {
		return err
	}

	t := now()
	m.DeletedAt = &t
	m.UpdatedAt = t

	if err := s.setEntity(ctx, entityKey(prefixEvent, m.ID), m); err != nil {
		return fmt.Errorf("recur/redis: delete event: %w", err)
	}
	if err := s.rdb.ZRem(ctx, zEventOrg+m.OrganizationID, m.ID).Err(); err != nil {
		return fmt.Errorf("recur/redis: delete event indexes: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error) {
	minScore := math.Inf(-1)
	maxScore := math.Inf(1)
	if opts.From != nil {
		minScore = scoreFromDate(*opts.From)
	}
	if opts.To != nil {
		maxScore = scoreFromDate(*opts.To)
	}

	// Members with equal scores come back in lexical order, which is ID order.
	ids, err := s.zRangeByScoreIDs(ctx, zEventOrg+orgID, minScore, maxScore)
	if err != nil {
		return nil, fmt.Errorf("recur/redis: list events: %w", err)
	}

	var ruleID string
	if opts.RecurrenceRuleID != nil {
		ruleID = opts.RecurrenceRuleID.String()
	}

	result := make([]*event.Event, 0, len(ids))
	for _, evtID := range ids {
		var m eventModel
		if err := s.getEntity(ctx, entityKey(prefixEvent, evtID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if m.DeletedAt != nil {
			continue
		}
		if opts.ExcludeTemplates && m.IsBaseTemplate {
			continue
		}
		if ruleID != "" && m.RecurrenceRuleID != ruleID {
			continue
		}
		evt, err := fromEventModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, evt)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// CountByRule counts every instance of a rule, soft-deleted ones included.
func (s *Store) CountByRule(ctx context.Context, ruleID id.ID) (int64, error) {
	n, err := s.rdb.SCard(ctx, sRuleInstances+ruleID.String()).Result()
	if err != nil {
		return 0, fmt.Errorf("recur/redis: count by rule: %w", err)
	}
	return n, nil
}

func (s *Store) getLiveEventModel(ctx context.Context, evtID string) (*eventModel, error) {
	var m eventModel
	if err := s.getEntity(ctx, entityKey(prefixEvent, evtID), &m); err != nil {
		if isNotFound(err) {
			return nil, recur.ErrEventNotFound
		}
		return nil, fmt.Errorf("recur/redis: get event: %w", err)
	}
	if m.DeletedAt != nil {
		return nil, recur.ErrEventNotFound
	}
	return &m, nil
}
