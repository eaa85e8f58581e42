package recurrence

import (
	"maps"
	"slices"
	"time"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/internal/entity"
)

// NewInstance copies the template's fields into a new event on date.
func NewInstance(tmpl *event.Event, rule *Rule, date time.Time, batchID string) *event.Event {
	return &event.Event{
		Entity:           entity.New(),
		ID:               id.NewEventID(),
		OrganizationID:   rule.OrganizationID,
		Title:            tmpl.Title,
		Description:      tmpl.Description,
		Location:         tmpl.Location,
		CreatorID:        tmpl.CreatorID,
		AdminIDs:         slices.Clone(tmpl.AdminIDs),
		IsPublic:         tmpl.IsPublic,
		AllDay:           tmpl.AllDay,
		StartTime:        tmpl.StartTime,
		EndTime:          tmpl.EndTime,
		OccurrenceDate:   Day(date),
		RecurrenceRuleID: rule.ID,
		BaseEventID:      tmpl.ID,
		BatchID:          batchID,
		Metadata:         maps.Clone(tmpl.Metadata),
	}
}

// NewInstances builds one instance per date, all sharing batchID.
func NewInstances(tmpl *event.Event, rule *Rule, dates []time.Time, batchID string) []*event.Event {
	out := make([]*event.Event, 0, len(dates))
	for _, d := range dates {
		out = append(out, NewInstance(tmpl, rule, d, batchID))
	}
	return out
}
