package model

import "time"

// DateLayout is the calendar-day format used throughout the system.
// Dates in this format compare correctly as plain strings.
const DateLayout = "2006-01-02"

// Status of a schedule event. Only StatusBusy is ever produced; StatusAvailable
// exists for compatibility with the stored record shape.
type Status string

const (
	StatusBusy      Status = "busy"
	StatusAvailable Status = "available"
)

// ScheduleEvent is a single per-participant calendar record. One logical group
// event is the set of records sharing a GroupKey (or, for records written by
// older clients, the same date and marker-carrying title).
type ScheduleEvent struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Date        string `json:"date"`              // inclusive start, YYYY-MM-DD
	EndDate     string `json:"endDate,omitempty"` // inclusive end; empty means single-day
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`
	GroupKey    string `json:"groupKey,omitempty"`
}

// EffectiveEnd returns the inclusive end of the event's date range. A single-day
// event ends on its start date.
func (e ScheduleEvent) EffectiveEnd() string {
	if e.EndDate != "" {
		return e.EndDate
	}
	return e.Date
}

// ActiveOn reports whether the event occupies the given calendar day.
func (e ScheduleEvent) ActiveOn(date string) bool {
	return e.Date <= date && date <= e.EffectiveEnd()
}

// ValidDate reports whether s is a well-formed YYYY-MM-DD calendar day.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
