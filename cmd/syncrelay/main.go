package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/squadsync/squadsync/internal/config"
	"github.com/squadsync/squadsync/internal/database"
	"github.com/squadsync/squadsync/internal/logging"
	"github.com/squadsync/squadsync/internal/middleware"
	"github.com/squadsync/squadsync/internal/relay"
	"github.com/squadsync/squadsync/internal/store"
)

func main() {
	cfg := config.LoadRelay()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	hub := relay.NewHub(store.NewCache(db), logger.With("component", "hub"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", relay.HandleWebSocket(hub))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": hub.SessionCount(),
			"events":   hub.EventCount(),
		})
	})

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     middleware.RequestLogger(logger.With("component", "http"))(mux),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		fmt.Printf("Sync relay running at ws://localhost:%s/ws\n", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
