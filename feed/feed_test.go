package feed_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/feed"
	"github.com/xraph/recur/id"
)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestWrite(t *testing.T) {
	timed := &event.Event{
		ID:             id.NewEventID(),
		Title:          "Standup",
		Description:    "Daily sync",
		Location:       "Room 4",
		StartTime:      "09:30",
		EndTime:        "09:45",
		OccurrenceDate: date("2024-03-04"),
		IsPublic:       true,
	}
	allDay := &event.Event{
		ID:             id.NewEventID(),
		Title:          "Offsite",
		AllDay:         true,
		OccurrenceDate: date("2024-03-08"),
	}

	var buf bytes.Buffer
	require.NoError(t, feed.Write(&buf, "Team", []*event.Event{timed, allDay}))

	cal, err := ical.ParseCalendar(strings.NewReader(buf.String()))
	require.NoError(t, err)

	events := cal.Events()
	require.Len(t, events, 2)

	byUID := make(map[string]*ical.VEvent, len(events))
	for _, ve := range events {
		byUID[ve.GetProperty(ical.ComponentPropertyUniqueId).Value] = ve
	}

	ve := byUID[timed.ID.String()+"@"+feed.UIDDomain]
	require.NotNil(t, ve)
	assert.Equal(t, "Standup", ve.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "Room 4", ve.GetProperty(ical.ComponentPropertyLocation).Value)
	assert.Equal(t, "20240304T093000Z", ve.GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20240304T094500Z", ve.GetProperty(ical.ComponentPropertyDtEnd).Value)

	ve = byUID[allDay.ID.String()+"@"+feed.UIDDomain]
	require.NotNil(t, ve)
	assert.Equal(t, "20240308", ve.GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20240309", ve.GetProperty(ical.ComponentPropertyDtEnd).Value)
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, feed.Write(&buf, "", nil))

	out := buf.String()
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, feed.ProductID)
	assert.NotContains(t, out, "BEGIN:VEVENT")
}

func TestCalendar_BadClock(t *testing.T) {
	_, err := feed.Calendar("x", []*event.Event{{
		ID:             id.NewEventID(),
		Title:          "Broken",
		StartTime:      "nine",
		OccurrenceDate: date("2024-03-04"),
	}})
	require.Error(t, err)
}
