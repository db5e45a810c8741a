package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/squadsync/squadsync/internal/engine"
	"github.com/squadsync/squadsync/internal/group"
	"github.com/squadsync/squadsync/internal/model"
)

const defaultTitle = "Busy"

// ScheduleHandler serves the event list and accepts mutation intents.
type ScheduleHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewScheduleHandler(e *engine.Engine, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{engine: e, logger: logger}
}

// List returns the full merged event list, birthdays included.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	events := h.engine.Events()
	if events == nil {
		events = []model.ScheduleEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Day returns the collapsed display items for one date: group events folded
// into a single row carrying the participant ids.
func (h *ScheduleHandler) Day(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if !model.ValidDate(date) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}

	items := group.Collapse(h.engine.Events(), date)
	if items == nil {
		items = []group.DisplayEvent{}
	}
	writeJSON(w, http.StatusOK, items)
}

// Create accepts an add intent. Mutations are fire-and-forget toward the
// relay, so success is 202 with the per-record dispatch results.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var intent engine.AddIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	intent.Title = strings.TrimSpace(intent.Title)
	if intent.Title == "" {
		intent.Title = defaultTitle
	}

	results, err := h.engine.Add(intent)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"results": results})
}

// Update accepts an update intent for the logical event the target record
// belongs to.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var intent engine.UpdateIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	intent.TargetID = r.PathValue("id")
	intent.Title = strings.TrimSpace(intent.Title)
	if intent.Title == "" {
		intent.Title = defaultTitle
	}

	results, err := h.engine.Update(intent)
	if errors.Is(err, engine.ErrReadOnlyEvent) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if results == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"results": results})
}

// Delete removes the logical event the target record belongs to.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	results, err := h.engine.Delete(r.PathValue("id"))
	if errors.Is(err, engine.ErrReadOnlyEvent) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if results == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"results": results})
}

// SyncStatus reports which transport the engine is currently on.
func (h *ScheduleHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"connected": h.engine.Connected()})
}
