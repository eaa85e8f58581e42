package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/internal/entity"
	"github.com/xraph/recur/recurrence"
)

// Calendar dates are stored as "YYYY-MM-DD" text so that string comparison
// orders them chronologically.

// --- Rule models ---

type ruleModel struct {
	grove.BaseModel `grove:"table:recur_rules"`

	ID                 string    `grove:"id,pk"`
	OrganizationID     string    `grove:"organization_id"`
	BaseEventID        string    `grove:"base_event_id"`
	Pattern            string    `grove:"pattern"`
	StartDate          string    `grove:"start_date"`
	EndDate            *string   `grove:"end_date"`
	OccurrenceLimit    *int      `grove:"occurrence_limit"`
	LatestInstanceDate string    `grove:"latest_instance_date"`
	CreatedAt          time.Time `grove:"created_at"`
	UpdatedAt          time.Time `grove:"updated_at"`
}

func toRuleModel(r *recurrence.Rule) *ruleModel {
	m := &ruleModel{
		ID:                 r.ID.String(),
		OrganizationID:     r.OrganizationID,
		BaseEventID:        r.BaseEventID.String(),
		Pattern:            string(r.Pattern),
		StartDate:          recurrence.FormatDate(r.StartDate),
		OccurrenceLimit:    r.OccurrenceLimit,
		LatestInstanceDate: recurrence.FormatDate(r.LatestInstanceDate),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.EndDate != nil {
		end := recurrence.FormatDate(*r.EndDate)
		m.EndDate = &end
	}
	return m
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
	start, err := recurrence.ParseDate(m.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parse start date %q: %w", m.StartDate, err)
	}
	checkpoint, err := recurrence.ParseDate(m.LatestInstanceDate)
	if err != nil {
		return nil, fmt.Errorf("parse checkpoint %q: %w", m.LatestInstanceDate, err)
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
		StartDate:          start,
		OccurrenceLimit:    m.OccurrenceLimit,
		LatestInstanceDate: checkpoint,
	}
	if m.EndDate != nil {
		end, err := recurrence.ParseDate(*m.EndDate)
		if err != nil {
			return nil, fmt.Errorf("parse end date %q: %w", *m.EndDate, err)
		}
		r.EndDate = &end
	}
	return r, nil
}

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:recur_events"`

	ID               string     `grove:"id,pk"`
	OrganizationID   string     `grove:"organization_id"`
	Title            string     `grove:"title"`
	Description      string     `grove:"description"`
	Location         string     `grove:"location"`
	CreatorID        string     `grove:"creator_id"`
	AdminIDs         string     `grove:"admin_ids"` // JSON array
	IsPublic         bool       `grove:"is_public"`
	AllDay           bool       `grove:"all_day"`
	StartTime        string     `grove:"start_time"`
	EndTime          string     `grove:"end_time"`
	OccurrenceDate   string     `grove:"occurrence_date"`
	IsBaseTemplate   bool       `grove:"is_base_template"`
	RecurrenceRuleID string     `grove:"recurrence_rule_id"`
	BaseEventID      string     `grove:"base_event_id"`
	BatchID          string     `grove:"batch_id"`
	Metadata         string     `grove:"metadata"` // JSON object
	DeletedAt        *time.Time `grove:"deleted_at"`
	CreatedAt        time.Time  `grove:"created_at"`
	UpdatedAt        time.Time  `grove:"updated_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	adminIDs, _ := json.Marshal(evt.AdminIDs) //nolint:errcheck // best-effort
	metadata, _ := json.Marshal(evt.Metadata) //nolint:errcheck // best-effort

	m := &eventModel{
		ID:             evt.ID.String(),
		OrganizationID: evt.OrganizationID,
		Title:          evt.Title,
		Description:    evt.Description,
		Location:       evt.Location,
		CreatorID:      evt.CreatorID,
		AdminIDs:       string(adminIDs),
		IsPublic:       evt.IsPublic,
		AllDay:         evt.AllDay,
		StartTime:      evt.StartTime,
		EndTime:        evt.EndTime,
		OccurrenceDate: recurrence.FormatDate(evt.OccurrenceDate),
		IsBaseTemplate: evt.IsBaseTemplate,
		BatchID:        evt.BatchID,
		Metadata:       string(metadata),
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
	occurrence, err := recurrence.ParseDate(m.OccurrenceDate)
	if err != nil {
		return nil, fmt.Errorf("parse occurrence date %q: %w", m.OccurrenceDate, err)
	}

	var adminIDs []string
	if m.AdminIDs != "" {
		_ = json.Unmarshal([]byte(m.AdminIDs), &adminIDs) //nolint:errcheck // best-effort
	}

	var metadata map[string]string
	if m.Metadata != "" {
		_ = json.Unmarshal([]byte(m.Metadata), &metadata) //nolint:errcheck // best-effort
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
		AdminIDs:       adminIDs,
		IsPublic:       m.IsPublic,
		AllDay:         m.AllDay,
		StartTime:      m.StartTime,
		EndTime:        m.EndTime,
		OccurrenceDate: occurrence,
		IsBaseTemplate: m.IsBaseTemplate,
		BatchID:        m.BatchID,
		Metadata:       metadata,
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
