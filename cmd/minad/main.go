package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mina/internal/config"
	"mina/internal/daemon"
	"mina/internal/events"
	"mina/internal/logging"
	"mina/internal/orchestrator"
	"mina/internal/sessions"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := sessions.Open(cfg)
	if err != nil {
		logger.Error("open session store", logging.Error(err))
		os.Exit(1)
	}

	hub := events.NewHub(cfg.Events.BufferSize)
	if cfg.Events.LedgerEnabled {
		hub.AddSink(sessions.NewEventLedger(store))
	}

	handlers := buildStageHandlers(cfg, store, logger)
	orch := orchestrator.New(cfg, store, hub, logger, handlers)
	manager := orchestrator.NewManager(cfg, store, orch, logger)

	d, err := daemon.New(cfg, store, hub, logger, orch, manager)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = store.Close()
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("minad shutting down")
}
