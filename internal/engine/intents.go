package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/squadsync/squadsync/internal/birthday"
	"github.com/squadsync/squadsync/internal/group"
	"github.com/squadsync/squadsync/internal/model"
)

// ErrReadOnlyEvent is returned for mutations targeting synthetic birthday
// records.
var ErrReadOnlyEvent = errors.New("birthday events are read-only")

// OpKind identifies a low-level per-record operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Outcome reports where an operation went, so callers can tell "handed to the
// realtime channel" from "applied locally as fallback" from "refused".
type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeLocal      Outcome = "local"
	OutcomeRejected   Outcome = "rejected"
)

// Result describes one emitted operation.
type Result struct {
	Op      OpKind  `json:"op"`
	EventID string  `json:"eventId,omitempty"`
	Outcome Outcome `json:"outcome"`
}

// plan is the set of per-record operations one intent resolves into.
type plan struct {
	creates []model.ScheduleEvent
	updates []model.ScheduleEvent // full desired records for surviving ids
	deletes []string
}

func (p plan) empty() bool {
	return len(p.creates) == 0 && len(p.updates) == 0 && len(p.deletes) == 0
}

func (p plan) results(outcome Outcome) []Result {
	var out []Result
	for _, ev := range p.updates {
		out = append(out, Result{Op: OpUpdate, EventID: ev.ID, Outcome: outcome})
	}
	for _, id := range p.deletes {
		out = append(out, Result{Op: OpDelete, EventID: id, Outcome: outcome})
	}
	for _, ev := range p.creates {
		out = append(out, Result{Op: OpCreate, EventID: ev.ID, Outcome: outcome})
	}
	return out
}

// AddIntent creates one logical event for one or more participants.
type AddIntent struct {
	Date           string   `json:"date"`
	EndDate        string   `json:"endDate,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	ParticipantIDs []string `json:"participantIds"`
}

// UpdateIntent edits the logical event the target record belongs to. A nil
// participant list keeps the current set (pure metadata edit). An empty Date
// keeps the target's date; an empty EndDate clears the range.
type UpdateIntent struct {
	TargetID       string   `json:"-"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Date           string   `json:"date,omitempty"`
	EndDate        string   `json:"endDate,omitempty"`
	ParticipantIDs []string `json:"participantIds,omitempty"`
}

func validateRange(date, endDate string) error {
	if !model.ValidDate(date) {
		return fmt.Errorf("invalid date %q", date)
	}
	if endDate != "" {
		if !model.ValidDate(endDate) {
			return fmt.Errorf("invalid end date %q", endDate)
		}
		if endDate < date {
			return fmt.Errorf("end date %s before start %s", endDate, date)
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Add resolves an add intent into one create per participant and dispatches
// them as independent operations. Creates are not atomic across participants;
// each failure is handled on its own.
func (e *Engine) Add(intent AddIntent) ([]Result, error) {
	if err := validateRange(intent.Date, intent.EndDate); err != nil {
		return nil, err
	}
	participants := dedupe(intent.ParticipantIDs)
	if len(participants) == 0 {
		return nil, errors.New("at least one participant required")
	}

	title := group.NormalizeTitle(intent.Title, len(participants))
	groupKey := ""
	if len(participants) > 1 {
		groupKey = uuid.NewString()
	}

	var p plan
	for _, userID := range participants {
		p.creates = append(p.creates, model.ScheduleEvent{
			ID:          uuid.NewString(),
			UserID:      userID,
			Date:        intent.Date,
			EndDate:     intent.EndDate,
			Title:       title,
			Description: intent.Description,
			Status:      model.StatusBusy,
			GroupKey:    groupKey,
		})
	}
	return e.dispatch(p), nil
}

// Update resolves an update intent into the fan-out diff: surviving
// participants get a full-field update, departed ones a delete, new ones a
// create. An unknown target id is a no-op.
func (e *Engine) Update(intent UpdateIntent) ([]Result, error) {
	if birthday.IsBirthdayID(intent.TargetID) {
		return []Result{{Op: OpUpdate, EventID: intent.TargetID, Outcome: OutcomeRejected}}, ErrReadOnlyEvent
	}

	e.mu.Lock()
	target, found := findByID(e.events, intent.TargetID)
	if !found {
		e.mu.Unlock()
		return nil, nil
	}
	existing := group.Members(e.events, target)
	e.mu.Unlock()

	newIDs := intent.ParticipantIDs
	if newIDs == nil {
		for _, m := range existing {
			newIDs = append(newIDs, m.UserID)
		}
	}
	newIDs = dedupe(newIDs)
	if len(newIDs) == 0 {
		return nil, errors.New("at least one participant required")
	}

	date := intent.Date
	if date == "" {
		date = target.Date
	}
	if err := validateRange(date, intent.EndDate); err != nil {
		return nil, err
	}

	title := group.NormalizeTitle(intent.Title, len(newIDs))
	groupKey := ""
	if len(newIDs) > 1 {
		groupKey = target.GroupKey
		if groupKey == "" {
			groupKey = uuid.NewString()
		}
	}

	inNew := make(map[string]struct{}, len(newIDs))
	for _, id := range newIDs {
		inNew[id] = struct{}{}
	}

	var p plan
	kept := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		_, wanted := inNew[rec.UserID]
		_, already := kept[rec.UserID]
		if !wanted || already {
			p.deletes = append(p.deletes, rec.ID)
			continue
		}
		kept[rec.UserID] = struct{}{}
		p.updates = append(p.updates, model.ScheduleEvent{
			ID:          rec.ID,
			UserID:      rec.UserID,
			Date:        date,
			EndDate:     intent.EndDate,
			Title:       title,
			Description: intent.Description,
			Status:      model.StatusBusy,
			GroupKey:    groupKey,
		})
	}
	for _, userID := range newIDs {
		if _, already := kept[userID]; already {
			continue
		}
		p.creates = append(p.creates, model.ScheduleEvent{
			ID:          uuid.NewString(),
			UserID:      userID,
			Date:        date,
			EndDate:     intent.EndDate,
			Title:       title,
			Description: intent.Description,
			Status:      model.StatusBusy,
			GroupKey:    groupKey,
		})
	}

	return e.dispatch(p), nil
}

// Delete removes the logical event the target belongs to: the whole group for
// a group record, the single record otherwise. Unknown ids are a no-op.
func (e *Engine) Delete(targetID string) ([]Result, error) {
	if birthday.IsBirthdayID(targetID) {
		return []Result{{Op: OpDelete, EventID: targetID, Outcome: OutcomeRejected}}, ErrReadOnlyEvent
	}

	e.mu.Lock()
	target, found := findByID(e.events, targetID)
	if !found {
		e.mu.Unlock()
		return nil, nil
	}
	members := group.Members(e.events, target)
	e.mu.Unlock()

	var p plan
	for _, m := range members {
		p.deletes = append(p.deletes, m.ID)
	}
	return e.dispatch(p), nil
}

func findByID(events []model.ScheduleEvent, id string) (model.ScheduleEvent, bool) {
	for _, e := range events {
		if e.ID == id {
			return e, true
		}
	}
	return model.ScheduleEvent{}, false
}
