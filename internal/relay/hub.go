package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/squadsync/squadsync/internal/model"
	"github.com/squadsync/squadsync/internal/remote"
)

// Store persists the authoritative record set across relay restarts.
type Store interface {
	LoadEvents() ([]model.ScheduleEvent, bool, error)
	SaveEvents([]model.ScheduleEvent) error
}

// Hub owns the authoritative id → record map and the set of subscribed
// sessions. Every accepted mutation is persisted and answered with a fresh
// snapshot broadcast to all sessions, including the sender.
type Hub struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	state    map[string]model.ScheduleEvent
	store    Store
	logger   *slog.Logger
}

// NewHub creates a Hub seeded from the store.
func NewHub(store Store, logger *slog.Logger) *Hub {
	h := &Hub{
		sessions: make(map[*Session]struct{}),
		state:    make(map[string]model.ScheduleEvent),
		store:    store,
		logger:   logger,
	}
	events, ok, err := store.LoadEvents()
	if err != nil {
		logger.Warn("load relay state, starting empty", "error", err)
	}
	if ok {
		for _, ev := range events {
			h.state[ev.ID] = ev
		}
	}
	logger.Info("relay state loaded", "events", len(h.state))
	return h
}

// Register adds a session and immediately sends it the current snapshot.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	frame := h.snapshotFrame()
	h.mu.Unlock()

	if frame != nil {
		select {
		case s.send <- frame:
		default:
		}
	}
}

// Unregister removes a session and closes its send channel.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		close(s.send)
	}
	h.mu.Unlock()
}

// Apply processes one mutation frame from a session. Unknown ops and malformed
// payloads are logged and dropped; the state is never left half-applied.
func (h *Hub) Apply(msg remote.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch msg.Op {
	case remote.OpSet:
		if msg.Event == nil || msg.Event.ID == "" {
			h.logger.Warn("set frame without event id")
			return
		}
		h.state[msg.Event.ID] = *msg.Event
	case remote.OpPatch:
		if len(msg.Patches) == 0 {
			return
		}
		for id, fields := range msg.Patches {
			if fields == nil {
				delete(h.state, id)
				continue
			}
			ev, ok := h.state[id]
			if !ok {
				h.logger.Warn("patch for unknown record", "id", id)
				continue
			}
			applyFields(&ev, fields)
			h.state[id] = ev
		}
	default:
		h.logger.Warn("unknown frame op", "op", msg.Op)
		return
	}

	h.persistLocked()
	h.broadcastLocked()
}

// applyFields writes partial field values onto a record. A nil value clears
// the field.
func applyFields(ev *model.ScheduleEvent, fields map[string]any) {
	for name, value := range fields {
		s, _ := value.(string)
		switch name {
		case "title":
			ev.Title = s
		case "date":
			ev.Date = s
		case "endDate":
			ev.EndDate = s
		case "description":
			ev.Description = s
		case "groupKey":
			ev.GroupKey = s
		case "status":
			ev.Status = model.Status(s)
		case "userId":
			ev.UserID = s
		}
	}
}

func (h *Hub) persistLocked() {
	events := make([]model.ScheduleEvent, 0, len(h.state))
	for _, ev := range h.state {
		events = append(events, ev)
	}
	if err := h.store.SaveEvents(events); err != nil {
		h.logger.Error("persist relay state", "error", err)
	}
}

func (h *Hub) broadcastLocked() {
	frame := h.snapshotFrame()
	if frame == nil {
		return
	}
	for s := range h.sessions {
		select {
		case s.send <- frame:
		default:
			// Session buffer full — it will catch up on the next snapshot
		}
	}
}

func (h *Hub) snapshotFrame() []byte {
	data, err := json.Marshal(remote.Message{Op: remote.OpSnapshot, Events: h.state})
	if err != nil {
		h.logger.Error("marshal snapshot", "error", err)
		return nil
	}
	return data
}

// SessionCount returns the number of subscribed sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// EventCount returns the number of records currently held.
func (h *Hub) EventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.state)
}
