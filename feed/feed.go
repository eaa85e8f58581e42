// Package feed renders events as an iCalendar (RFC 5545) document.
//
// Every event, template or materialized instance, becomes its own VEVENT.
// Recurrence is never re-expressed as an RRULE because instances may have
// been edited or deleted individually.
package feed

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/recurrence"
)

// ProductID identifies the generator in the PRODID property.
const ProductID = "-//xraph//recur//EN"

// ContentType is the media type of a rendered calendar.
const ContentType = "text/calendar; charset=utf-8"

// UIDDomain is appended to event IDs to form globally unique UIDs.
const UIDDomain = "recur"

// Calendar builds a calendar named name holding one VEVENT per event.
func Calendar(name string, events []*event.Event) (*ical.Calendar, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, evt := range events {
		if err := addEvent(cal, evt); err != nil {
			return nil, fmt.Errorf("feed: event %s: %w", evt.ID, err)
		}
	}
	return cal, nil
}

// Write renders events to w.
func Write(w io.Writer, name string, events []*event.Event) error {
	cal, err := Calendar(name, events)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, cal.Serialize())
	return err
}

func addEvent(cal *ical.Calendar, evt *event.Event) error {
	ve := cal.AddEvent(evt.ID.String() + "@" + UIDDomain)

	ve.SetSummary(evt.Title)
	if evt.Description != "" {
		ve.SetDescription(evt.Description)
	}
	if evt.Location != "" {
		ve.SetLocation(evt.Location)
	}

	stamp := evt.UpdatedAt
	if stamp.IsZero() {
		stamp = evt.CreatedAt
	}
	if stamp.IsZero() {
		stamp = time.Now()
	}
	ve.SetDtStampTime(stamp.UTC())

	if evt.IsPublic {
		ve.SetClass(ical.ClassificationPublic)
	} else {
		ve.SetClass(ical.ClassificationPrivate)
	}

	day := recurrence.Day(evt.OccurrenceDate)
	if evt.AllDay || evt.StartTime == "" {
		ve.SetAllDayStartAt(day)
		ve.SetAllDayEndAt(day.AddDate(0, 0, 1))
		return nil
	}

	start, err := atClock(day, evt.StartTime)
	if err != nil {
		return fmt.Errorf("start time: %w", err)
	}
	ve.SetStartAt(start)

	if evt.EndTime == "" {
		return nil
	}
	end, err := atClock(day, evt.EndTime)
	if err != nil {
		return fmt.Errorf("end time: %w", err)
	}
	ve.SetEndAt(end)
	return nil
}

// atClock places an "HH:MM" or "HH:MM:SS" wall-clock time on day.
func atClock(day time.Time, clock string) (time.Time, error) {
	layout := "15:04"
	if strings.Count(clock, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, clock)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second), nil
}
