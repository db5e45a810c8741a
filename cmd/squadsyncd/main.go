package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/squadsync/squadsync/internal/assist"
	"github.com/squadsync/squadsync/internal/config"
	"github.com/squadsync/squadsync/internal/database"
	"github.com/squadsync/squadsync/internal/engine"
	"github.com/squadsync/squadsync/internal/logging"
	"github.com/squadsync/squadsync/internal/remote"
	"github.com/squadsync/squadsync/internal/roster"
	"github.com/squadsync/squadsync/internal/server"
	"github.com/squadsync/squadsync/internal/store"
)

func main() {
	cfg := config.LoadApp()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	cache := store.NewCache(db)
	provider := roster.Load(cache, logger.With("component", "roster"))

	var channel remote.Channel = remote.Noop{}
	if cfg.RelayURL != "" {
		channel = remote.NewClient(cfg.RelayURL, logger.With("component", "relay_client"))
	} else {
		logger.Info("no relay configured, running in local mode")
	}

	eng := engine.New(channel, cache, provider, logger.With("component", "engine"))
	if err := eng.Start(); err != nil {
		log.Fatalf("failed to start sync engine: %v", err)
	}
	defer eng.Stop()

	assistSvc := assist.NewService(assist.Config{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	}, logger.With("component", "assist"))

	srv := server.New(eng, assistSvc, provider, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("SquadSync running at http://localhost:%s\n", cfg.Port)
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
