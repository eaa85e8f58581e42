package postgres

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/internal/entity"
	"github.com/xraph/recur/recurrence"
)

// --- Rule models ---

type ruleModel struct {
	grove.BaseModel `grove:"table:recur_rules"`

	ID                 string     `grove:"id,pk"`
	OrganizationID     string     `grove:"organization_id"`
	BaseEventID        string     `grove:"base_event_id"`
	Pattern            string     `grove:"pattern"`
	StartDate          time.Time  `grove:"start_date"`
	EndDate            *time.Time `grove:"end_date"`
	OccurrenceLimit    *int       `grove:"occurrence_limit"`
	LatestInstanceDate time.Time  `grove:"latest_instance_date"`
	CreatedAt          time.Time  `grove:"created_at"`
	UpdatedAt          time.Time  `grove:"updated_at"`
}

func toRuleModel(r *recurrence.Rule) *ruleModel {
	return &ruleModel{
		ID:                 r.ID.String(),
		OrganizationID:     r.OrganizationID,
		BaseEventID:        r.BaseEventID.String(),
		Pattern:            string(r.Pattern),
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		OccurrenceLimit:    r.OccurrenceLimit,
		LatestInstanceDate: r.LatestInstanceDate,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func fromRuleModel(m *ruleModel) (*recurrence.Rule, error) {
	ruleID, err := id.ParseRuleID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse rule ID %q: %w", m.ID, err)
	}
	baseID, err := id.ParseEventID(m.BaseEventID)
	if err != nil {
		return nil, fmt.Errorf("parse base event ID %q: %w", m.BaseEventID, err)
	}

	r := &recurrence.Rule{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                 ruleID,
		OrganizationID:     m.OrganizationID,
		BaseEventID:        baseID,
		Pattern:            recurrence.Pattern(m.Pattern),
		StartDate:          recurrence.Day(m.StartDate),
		OccurrenceLimit:    m.OccurrenceLimit,
		LatestInstanceDate: recurrence.Day(m.LatestInstanceDate),
	}
	if m.EndDate != nil {
		end := recurrence.Day(*m.EndDate)
		r.EndDate = &end
	}
	return r, nil
}

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:recur_events"`

	ID               string            `grove:"id,pk"`
	OrganizationID   string            `grove:"organization_id"`
	Title            string            `grove:"title"`
	Description      string            `grove:"description"`
	Location         string            `grove:"location"`
	CreatorID        string            `grove:"creator_id"`
	AdminIDs         []string          `grove:"admin_ids,array"`
	IsPublic         bool              `grove:"is_public"`
	AllDay           bool              `grove:"all_day"`
	StartTime        string            `grove:"start_time"`
	EndTime          string            `grove:"end_time"`
	OccurrenceDate   time.Time         `grove:"occurrence_date"`
	IsBaseTemplate   bool              `grove:"is_base_template"`
	RecurrenceRuleID string            `grove:"recurrence_rule_id"`
	BaseEventID      string            `grove:"base_event_id"`
	BatchID          string            `grove:"batch_id"`
	Metadata         map[string]string `grove:"metadata,type:jsonb"`
	DeletedAt        *time.Time        `grove:"deleted_at"`
	CreatedAt        time.Time         `grove:"created_at"`
	UpdatedAt        time.Time         `grove:"updated_at"`
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
	if m.AdminIDs == nil {
		m.AdminIDs = []string{}
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
		IsPublic:       m.IsPublic,
		AllDay:         m.AllDay,
		StartTime:      m.StartTime,
		EndTime:        m.EndTime,
		OccurrenceDate: recurrence.Day(m.OccurrenceDate),
		IsBaseTemplate: m.IsBaseTemplate,
		BatchID:        m.BatchID,
		Metadata:       m.Metadata,
		DeletedAt:      m.DeletedAt,
	}
	if len(m.AdminIDs) > 0 {
		evt.AdminIDs = m.AdminIDs
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
