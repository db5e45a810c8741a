package group

import (
	"strings"

	"github.com/squadsync/squadsync/internal/model"
)

// Marker is the title prefix that flags a record as part of a group event.
// Grouping itself is keyed on ScheduleEvent.GroupKey; the marker is kept on
// stored titles for display and for records written by older clients that
// have no key.
const Marker = "👨‍👩‍👧‍👦"

// HasMarker reports whether a title carries the group marker.
func HasMarker(title string) bool {
	return strings.Contains(title, Marker)
}

// StripMarker removes any leading group markers from a title.
func StripMarker(title string) string {
	t := strings.TrimSpace(title)
	for strings.HasPrefix(t, Marker) {
		t = strings.TrimSpace(strings.TrimPrefix(t, Marker))
	}
	return t
}

// NormalizeTitle strips any existing leading marker and re-adds it if and only
// if the event has more than one participant. A group that shrinks to one
// member becomes a plain single-owner title, and vice versa when it grows.
func NormalizeTitle(title string, participants int) string {
	t := StripMarker(title)
	if participants > 1 {
		return Marker + " " + t
	}
	return t
}

// IsGroup reports whether the record belongs to a logical group event.
func IsGroup(e model.ScheduleEvent) bool {
	return e.GroupKey != "" || HasMarker(e.Title)
}

// sameGroup reports whether two records belong to the same logical group
// event. Records with keys match on key; legacy marker-titled records match
// on the (date, title) pair.
func sameGroup(a, b model.ScheduleEvent) bool {
	if a.GroupKey != "" || b.GroupKey != "" {
		return a.GroupKey == b.GroupKey
	}
	return a.Date == b.Date && a.Title == b.Title
}

// Members resolves the full participant record set of the group the target
// belongs to. For a solo event it returns just the target. Order follows the
// backing store and is display-only.
func Members(events []model.ScheduleEvent, target model.ScheduleEvent) []model.ScheduleEvent {
	if !IsGroup(target) {
		return []model.ScheduleEvent{target}
	}

	var members []model.ScheduleEvent
	for _, e := range events {
		if IsGroup(e) && sameGroup(e, target) {
			members = append(members, e)
		}
	}
	if len(members) == 0 {
		// Target not present in the set; treat it as its own group.
		return []model.ScheduleEvent{target}
	}
	return members
}

// DisplayEvent is one calendar cell entry: either a plain record or a single
// representative standing in for a whole group.
type DisplayEvent struct {
	model.ScheduleEvent
	GroupDisplay   bool     `json:"isGroupDisplay,omitempty"`
	ParticipantIDs []string `json:"participantIds,omitempty"`
}

// Collapse partitions the events active on a date into display items: group
// records are deduplicated to one representative per logical event, everything
// else passes through unchanged. A marker-titled record with no siblings still
// renders (as a one-member group) rather than breaking the day view.
func Collapse(events []model.ScheduleEvent, date string) []DisplayEvent {
	var active []model.ScheduleEvent
	for _, e := range events {
		if e.ActiveOn(date) {
			active = append(active, e)
		}
	}

	var out []DisplayEvent
	seen := make(map[string]struct{})
	for _, e := range active {
		if !IsGroup(e) {
			out = append(out, DisplayEvent{ScheduleEvent: e})
			continue
		}

		key := e.GroupKey
		if key == "" {
			key = e.Date + "\x00" + e.Title
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		members := Members(active, e)
		ids := make([]string, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.UserID)
		}
		out = append(out, DisplayEvent{ScheduleEvent: e, GroupDisplay: true, ParticipantIDs: ids})
	}
	return out
}
