package recurrence

import (
	"errors"
	"time"
)

var errUnsupportedPattern = errors.New("recurrence: unsupported pattern")

// Input is the creation payload for a recurring event: the template fields
// plus the rule definition.
type Input struct {
	OrganizationID string            `json:"organization_id"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Location       string            `json:"location,omitempty"`
	CreatorID      string            `json:"creator_id,omitempty"`
	AdminIDs       []string          `json:"admin_ids,omitempty"`
	IsPublic       bool              `json:"is_public"`
	AllDay         bool              `json:"all_day"`
	StartTime      string            `json:"start_time,omitempty"`
	EndTime        string            `json:"end_time,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	// Pattern is one of ONCE, DAILY, WEEKLY, MONTHLY, YEARLY.
	Pattern string `json:"pattern"`

	// StartDate is the template's date (YYYY-MM-DD).
	StartDate string `json:"start_date"`

	// EndDate is the optional inclusive last date (YYYY-MM-DD).
	EndDate string `json:"end_date,omitempty"`

	// OccurrenceLimit caps the number of instances ever generated.
	OccurrenceLimit *int `json:"occurrence_limit,omitempty"`
}

// Definition is a validated Input with parsed dates.
type Definition struct {
	Input

	Pattern   Pattern
	StartDate time.Time
	EndDate   *time.Time
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "recurrence validation: " + e.Field + ": " + e.Message
}
