package remote

import (
	"context"
	"errors"
	"sort"

	"github.com/squadsync/squadsync/internal/model"
)

// ErrUnavailable is returned by mutation calls when no realtime channel is
// connected.
var ErrUnavailable = errors.New("realtime channel unavailable")

// Channel is the realtime sync collaborator. When connected it owns the
// authoritative record set; every mutation pushed through it eventually comes
// back as a fresh snapshot.
type Channel interface {
	// Subscribe starts delivering full snapshots to onSnapshot. onError is
	// called once if the subscription breaks; after that the channel stays
	// disconnected for the rest of the session. The returned func stops the
	// subscription.
	Subscribe(onSnapshot func([]model.ScheduleEvent), onError func(error)) (func(), error)

	// Connected reports whether the channel is currently usable.
	Connected() bool

	Create(ctx context.Context, event model.ScheduleEvent) error
	// Update writes partial fields per event id. A nil field value clears
	// that field; a nil patch map deletes the whole record.
	Update(ctx context.Context, patches map[string]map[string]any) error
	Delete(ctx context.Context, ids []string) error
}

// Message is the wire frame exchanged with the relay. The record set travels
// as a flat id → record map; id is the sole partition key.
type Message struct {
	Op      string                         `json:"op"`
	Events  map[string]model.ScheduleEvent `json:"events,omitempty"`  // snapshot payload
	Event   *model.ScheduleEvent           `json:"event,omitempty"`   // set payload
	Patches map[string]map[string]any      `json:"patches,omitempty"` // patch payload
}

const (
	OpSnapshot = "snapshot"
	OpSet      = "set"
	OpPatch    = "patch"
)

// FlattenSnapshot turns a snapshot map into a slice ordered by date then id.
// Ordering is for display stability only; nothing may depend on it.
func FlattenSnapshot(m map[string]model.ScheduleEvent) []model.ScheduleEvent {
	events := make([]model.ScheduleEvent, 0, len(m))
	for _, e := range m {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		return events[i].ID < events[j].ID
	})
	return events
}

// Noop is the channel used when no relay is configured: subscribing is a no-op
// that never calls back, so the engine stays in local-fallback mode for the
// whole session.
type Noop struct{}

func (Noop) Subscribe(func([]model.ScheduleEvent), func(error)) (func(), error) {
	return func() {}, nil
}

func (Noop) Connected() bool { return false }

func (Noop) Create(context.Context, model.ScheduleEvent) error { return ErrUnavailable }

func (Noop) Update(context.Context, map[string]map[string]any) error { return ErrUnavailable }

func (Noop) Delete(context.Context, []string) error { return ErrUnavailable }
