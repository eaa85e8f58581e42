package mongo

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

	ID                 string     `grove:"id,pk"                bson:"_id"`
	OrganizationID     string     `grove:"organization_id"      bson:"organization_id"`
	BaseEventID        string     `grove:"base_event_id"        bson:"base_event_id"`
	Pattern            string     `grove:"pattern"              bson:"pattern"`
	StartDate          time.Time  `grove:"start_date"           bson:"start_date"`
	EndDate            *time.Time `grove:"end_date"             bson:"end_date,omitempty"`
	OccurrenceLimit    *int       `grove:"occurrence_limit"     bson:"occurrence_limit,omitempty"`
	LatestInstanceDate time.Time  `grove:"latest_instance_date" bson:"latest_instance_date"`
	CreatedAt          time.Time  `grove:"created_at"           bson:"created_at"`
	UpdatedAt          time.Time  `grove:"updated_at"           bson:"updated_at"`
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
		StartDate:          m.StartDate.UTC(),
		OccurrenceLimit:    m.OccurrenceLimit,
		LatestInstanceDate: m.LatestInstanceDate.UTC(),
	}
	if m.EndDate != nil {
		end := m.EndDate.UTC()
		r.EndDate = &end
	}
	return r, nil
}

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:recur_events"`

	ID               string            `grove:"id,pk"              bson:"_id"`
	OrganizationID   string            `grove:"organization_id"    bson:"organization_id"`
	Title            string            `grove:"title"              bson:"title"`
	Description      string            `grove:"description"        bson:"description"`
	Location         string            `grove:"location"           bson:"location,omitempty"`
	CreatorID        string            `grove:"creator_id"         bson:"creator_id"`
	AdminIDs         []string          `grove:"admin_ids"          bson:"admin_ids,omitempty"`
	IsPublic         bool              `grove:"is_public"          bson:"is_public"`
	AllDay           bool              `grove:"all_day"            bson:"all_day"`
	StartTime        string            `grove:"start_time"         bson:"start_time,omitempty"`
	EndTime          string            `grove:"end_time"           bson:"end_time,omitempty"`
	OccurrenceDate   time.Time         `grove:"occurrence_date"    bson:"occurrence_date"`
	IsBaseTemplate   bool              `grove:"is_base_template"   bson:"is_base_template"`
	RecurrenceRuleID string            `grove:"recurrence_rule_id" bson:"recurrence_rule_id,omitempty"`
	BaseEventID      string            `grove:"base_event_id"      bson:"base_event_id,omitempty"`
	BatchID          string            `grove:"batch_id"           bson:"batch_id,omitempty"`
	Metadata         map[string]string `grove:"metadata"           bson:"metadata,omitempty"`
	DeletedAt        *time.Time        `grove:"deleted_at"         bson:"deleted_at,omitempty"`
	CreatedAt        time.Time         `grove:"created_at"         bson:"created_at"`
	UpdatedAt        time.Time         `grove:"updated_at"         bson:"updated_at"`
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
