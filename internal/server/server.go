package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/squadsync/squadsync/internal/assist"
	"github.com/squadsync/squadsync/internal/engine"
	"github.com/squadsync/squadsync/internal/handler"
	"github.com/squadsync/squadsync/internal/middleware"
	"github.com/squadsync/squadsync/internal/roster"
)

// Server wires the engine, roster, and assistant behind the HTTP API.
type Server struct {
	engine    *engine.Engine
	scheduleH *handler.ScheduleHandler
	rosterH   *handler.RosterHandler
	assistH   *handler.AssistHandler
	logger    *slog.Logger
}

func New(e *engine.Engine, assistSvc *assist.Service, provider roster.Provider, logger *slog.Logger) *Server {
	return &Server{
		engine:    e,
		scheduleH: handler.NewScheduleHandler(e, logger.With("component", "schedule")),
		rosterH:   handler.NewRosterHandler(provider),
		assistH:   handler.NewAssistHandler(assistSvc, e, provider),
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("GET /api/users", s.rosterH.List)

	mux.HandleFunc("GET /api/events", s.scheduleH.List)
	mux.HandleFunc("GET /api/events/day", s.scheduleH.Day)
	mux.HandleFunc("POST /api/events", s.scheduleH.Create)
	mux.HandleFunc("PUT /api/events/{id}", s.scheduleH.Update)
	mux.HandleFunc("DELETE /api/events/{id}", s.scheduleH.Delete)

	mux.HandleFunc("POST /api/assist", s.assistH.Ask)

	mux.HandleFunc("GET /api/sync/status", s.scheduleH.SyncStatus)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
