package handler

import (
	"net/http"

	"github.com/squadsync/squadsync/internal/model"
	"github.com/squadsync/squadsync/internal/roster"
)

// RosterHandler serves the member list.
type RosterHandler struct {
	roster roster.Provider
}

func NewRosterHandler(p roster.Provider) *RosterHandler {
	return &RosterHandler{roster: p}
}

func (h *RosterHandler) List(w http.ResponseWriter, r *http.Request) {
	members := h.roster.Members()
	if members == nil {
		members = []model.User{}
	}
	writeJSON(w, http.StatusOK, members)
}
