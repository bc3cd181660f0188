// Command server runs the bookvoice HTTP API: document uploads go
// through the narration pipeline and come back as chapter audio.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgallion1/bookvoice/internal/api"
	"github.com/dgallion1/bookvoice/internal/config"
	"github.com/dgallion1/bookvoice/internal/pipeline"
	"github.com/dgallion1/bookvoice/internal/store"
	"github.com/dgallion1/bookvoice/internal/synth"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := store.Open(filepath.Join(cfg.DataDir, "narrations.json"))
	if err != nil {
		log.Error("opening narration registry", "error", err)
		os.Exit(1)
	}

	backend := synth.NewRemoteBackend(cfg.SynthURL, cfg.SynthAPIKey)

	orch := pipeline.NewOrchestrator(cfg, backend, registry, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		backend.Close()
	}()

	log.Info("starting bookvoice", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
