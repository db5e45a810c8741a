package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/squadsync/squadsync/internal/assist"
	"github.com/squadsync/squadsync/internal/engine"
	"github.com/squadsync/squadsync/internal/roster"
)

// AssistHandler answers natural-language schedule questions.
type AssistHandler struct {
	service *assist.Service
	engine  *engine.Engine
	roster  roster.Provider
}

func NewAssistHandler(s *assist.Service, e *engine.Engine, p roster.Provider) *AssistHandler {
	return &AssistHandler{service: s, engine: e, roster: p}
}

func (h *AssistHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	answer := h.service.Ask(r.Context(), h.roster.Members(), h.engine.Events(), req.Question)
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}
