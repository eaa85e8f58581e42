// Package recurrence models recurrence rules and expands them into the
// concrete dates that still need an event instance.
package recurrence

import (
	"time"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/internal/entity"
)

// DateLayout is the canonical text form of a rule date.
const DateLayout = "2006-01-02"

// Rule describes how a base event template repeats and tracks how far it has
// been materialized.
type Rule struct {
	entity.Entity

	// ID is the unique TypeID for this rule.
	ID id.ID `json:"id"`

	// OrganizationID scopes all materialization work for the rule.
	OrganizationID string `json:"organization_id"`

	// BaseEventID references the template event supplying instance fields.
	BaseEventID id.ID `json:"base_event_id"`

	Pattern Pattern `json:"pattern"`

	// StartDate is the inclusive first possible occurrence. It is the date
	// of the base template itself.
	StartDate time.Time `json:"start_date"`

	// EndDate is the optional inclusive last possible occurrence.
	EndDate *time.Time `json:"end_date,omitempty"`

	// OccurrenceLimit caps the number of instances ever created.
	OccurrenceLimit *int `json:"occurrence_limit,omitempty"`

	// LatestInstanceDate is the checkpoint through which instances exist.
	// It never decreases and starts one day before StartDate.
	LatestInstanceDate time.Time `json:"latest_instance_date"`
}

// HasLimit reports whether the rule carries an occurrence limit.
func (r *Rule) HasLimit() bool {
	return r.OccurrenceLimit != nil
}

// Exhausted reports whether no date after the checkpoint can ever be produced.
func (r *Rule) Exhausted() bool {
	if r.EndDate != nil && !r.LatestInstanceDate.Before(Day(*r.EndDate)) {
		return true
	}
	return r.Pattern == Once && !r.LatestInstanceDate.Before(r.StartDate)
}

// ListOpts configures filtering and pagination for rule listing.
type ListOpts struct {
	Offset int
	Limit  int
}

// Advance is one atomic unit of materialization for a rule: move the
// checkpoint from Expected to Checkpoint and insert Instances.
type Advance struct {
	RuleID id.ID

	// Expected is the checkpoint the instances were computed against.
	Expected time.Time

	// Checkpoint is the date of the latest instance in the batch.
	Checkpoint time.Time

	// BatchID tags every instance so a failed commit can be compensated.
	BatchID string

	Instances []*event.Event
}

// Day truncates t to midnight UTC of its UTC calendar date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Sentinel returns the initial checkpoint for a rule starting on start.
func Sentinel(start time.Time) time.Time {
	return Day(start).AddDate(0, 0, -1)
}

// FormatDate renders a date in DateLayout.
func FormatDate(t time.Time) string {
	return Day(t).Format(DateLayout)
}

// ParseDate parses a DateLayout date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
