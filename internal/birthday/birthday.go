package birthday

import (
	"fmt"
	"strings"
	"time"

	"github.com/squadsync/squadsync/internal/model"
)

// IDPrefix marks synthetic birthday events. Records with this prefix are
// regenerated from the roster on every load, never persisted, and read-only.
const IDPrefix = "birthday-"

// IsBirthdayID reports whether id belongs to a synthetic birthday event.
func IsBirthdayID(id string) bool {
	return strings.HasPrefix(id, IDPrefix)
}

// FilterPersisted drops any birthday-prefixed records from a persisted or
// remote event list so stale copies can never shadow the generated ones.
func FilterPersisted(events []model.ScheduleEvent) []model.ScheduleEvent {
	out := make([]model.ScheduleEvent, 0, len(events))
	for _, e := range events {
		if IsBirthdayID(e.ID) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ForYear generates one birthday event per roster member with a birthday for
// the given year. IDs are deterministic so regeneration is stable.
func ForYear(users []model.User, year int) []model.ScheduleEvent {
	var events []model.ScheduleEvent
	for _, u := range users {
		if u.Birthday == "" {
			continue
		}

		ageText := ""
		description := "Birthday"
		if u.BirthYear != 0 {
			age := year - u.BirthYear
			ageText = fmt.Sprintf(" %d%s", age, ordinalSuffix(age))
			description = fmt.Sprintf("Born %d", u.BirthYear)
		}

		events = append(events, model.ScheduleEvent{
			ID:          fmt.Sprintf("%s%s-%d", IDPrefix, u.ID, year),
			UserID:      u.ID,
			Date:        fmt.Sprintf("%d-%s", year, u.Birthday),
			Title:       fmt.Sprintf("%s%s B-day", u.Name, ageText),
			Description: description,
			Status:      model.StatusBusy,
		})
	}
	return events
}

// Upcoming generates birthday events for the current year and the next one,
// relative to now.
func Upcoming(users []model.User, now time.Time) []model.ScheduleEvent {
	year := now.Year()
	events := ForYear(users, year)
	return append(events, ForYear(users, year+1)...)
}

func ordinalSuffix(n int) string {
	j, k := n%10, n%100
	switch {
	case j == 1 && k != 11:
		return "ˢᵗ"
	case j == 2 && k != 12:
		return "ⁿᵈ"
	case j == 3 && k != 13:
		return "ʳᵈ"
	default:
		return "ᵗʰ"
	}
}
