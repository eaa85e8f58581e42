// Package event defines event documents: ordinary events, the base templates
// of recurring events, and the instances materialized from them.
package event

import (
	"time"

	"github.com/xraph/recur/id"
	"github.com/xraph/recur/internal/entity"
)

// Event is an organization event document.
//
// A base template carries IsBaseTemplate and supplies every non-date field to
// the instances generated from its recurrence rule. Instances carry an
// OccurrenceDate plus back-references to the rule and the template; once
// created they are ordinary, independently editable events.
type Event struct {
	entity.Entity

	// ID is the unique TypeID for this event.
	ID id.ID `json:"id"`

	// OrganizationID identifies the owning organization.
	OrganizationID string `json:"organization_id"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`

	// CreatorID is the user who created the event (or its template).
	CreatorID string `json:"creator_id"`

	// AdminIDs are the users allowed to manage the event.
	AdminIDs []string `json:"admin_ids,omitempty"`

	// IsPublic controls visibility outside the organization.
	IsPublic bool `json:"is_public"`

	// AllDay marks events without wall-clock times.
	AllDay bool `json:"all_day"`

	// StartTime and EndTime are wall-clock times ("15:04") on OccurrenceDate.
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`

	// OccurrenceDate is the UTC-midnight date the event takes place on.
	OccurrenceDate time.Time `json:"occurrence_date"`

	// IsBaseTemplate marks the template document of a recurring event.
	IsBaseTemplate bool `json:"is_base_template,omitempty"`

	// RecurrenceRuleID references the rule an instance was generated from.
	// Nil for ordinary events.
	RecurrenceRuleID id.ID `json:"recurrence_rule_id,omitempty"`

	// BaseEventID references the template an instance was copied from.
	BaseEventID id.ID `json:"base_event_id,omitempty"`

	// BatchID correlates the instances written by one materialization step.
	BatchID string `json:"batch_id,omitempty"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`

	// DeletedAt is set when the event has been deleted. Deleted instances
	// keep counting against their rule's occurrence limit.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsInstance reports whether the event was materialized from a recurrence rule.
func (e *Event) IsInstance() bool {
	return !e.RecurrenceRuleID.IsNil()
}

// IsDeleted reports whether the event has been soft-deleted.
func (e *Event) IsDeleted() bool {
	return e.DeletedAt != nil
}

// ListOpts configures filtering and pagination for event listing.
type ListOpts struct {
	Offset int
	Limit  int

	// From and To bound OccurrenceDate inclusively.
	From *time.Time
	To   *time.Time

	// RecurrenceRuleID restricts the listing to the instances of one rule.
	RecurrenceRuleID *id.ID

	// ExcludeTemplates leaves base templates out of the result. A template
	// is the first occurrence of its recurring event, so it is listed by
	// default.
	ExcludeTemplates bool
}
