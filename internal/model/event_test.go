package model

import "testing"

func TestActiveOnSingleDay(t *testing.T) {
	e := ScheduleEvent{ID: "e1", UserID: "u1", Date: "2026-02-08", Title: "Dinner", Status: StatusBusy}

	if !e.ActiveOn("2026-02-08") {
		t.Error("single-day event should be active on its date")
	}
	if e.ActiveOn("2026-02-07") {
		t.Error("single-day event should not be active the day before")
	}
	if e.ActiveOn("2026-02-09") {
		t.Error("single-day event should not be active the day after")
	}
}

func TestActiveOnRange(t *testing.T) {
	e := ScheduleEvent{ID: "e1", UserID: "u1", Date: "2026-02-08", EndDate: "2026-02-10", Title: "Trip", Status: StatusBusy}

	for _, d := range []string{"2026-02-08", "2026-02-09", "2026-02-10"} {
		if !e.ActiveOn(d) {
			t.Errorf("event should be active on %s", d)
		}
	}
	for _, d := range []string{"2026-02-07", "2026-02-11"} {
		if e.ActiveOn(d) {
			t.Errorf("event should not be active on %s", d)
		}
	}
}

func TestEffectiveEnd(t *testing.T) {
	single := ScheduleEvent{Date: "2026-02-08"}
	if got := single.EffectiveEnd(); got != "2026-02-08" {
		t.Errorf("effective end = %q, want start date", got)
	}

	ranged := ScheduleEvent{Date: "2026-02-08", EndDate: "2026-02-10"}
	if got := ranged.EffectiveEnd(); got != "2026-02-10" {
		t.Errorf("effective end = %q, want 2026-02-10", got)
	}
}

func TestValidDate(t *testing.T) {
	if !ValidDate("2026-02-08") {
		t.Error("2026-02-08 should be valid")
	}
	for _, s := range []string{"", "2026-2-8", "02-08-2026", "2026-02-30", "next tuesday"} {
		if ValidDate(s) {
			t.Errorf("%q should be invalid", s)
		}
	}
}
