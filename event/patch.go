package event

// Patch holds the editable fields of an event. Nil fields are left unchanged.
// Dates and recurrence links are not editable.
type Patch struct {
	Title       *string           `json:"title,omitempty"`
	Description *string           `json:"description,omitempty"`
	Location    *string           `json:"location,omitempty"`
	AdminIDs    []string          `json:"admin_ids,omitempty"`
	IsPublic    *bool             `json:"is_public,omitempty"`
	AllDay      *bool             `json:"all_day,omitempty"`
	StartTime   *string           `json:"start_time,omitempty"`
	EndTime     *string           `json:"end_time,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Apply copies the set fields of p onto evt.
func (p *Patch) Apply(evt *Event) {
	if p.Title != nil {
		evt.Title = *p.Title
	}
	if p.Description != nil {
		evt.Description = *p.Description
	}
	if p.Location != nil {
		evt.Location = *p.Location
	}
	if p.AdminIDs != nil {
		evt.AdminIDs = p.AdminIDs
	}
	if p.IsPublic != nil {
		evt.IsPublic = *p.IsPublic
	}
	if p.AllDay != nil {
		evt.AllDay = *p.AllDay
	}
	if p.StartTime != nil {
		evt.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		evt.EndTime = *p.EndTime
	}
	if p.Metadata != nil {
		evt.Metadata = p.Metadata
	}
}
