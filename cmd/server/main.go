// Package main is the entry point for the Helmsman autonomous decision
// agent daemon. It wires the simulated market, the agent manager, the
// event journal, maintenance jobs and the HTTP control surface, then runs
// until signalled.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/agent"
	"github.com/aristath/helmsman/internal/clients/paper"
	"github.com/aristath/helmsman/internal/config"
	"github.com/aristath/helmsman/internal/database"
	"github.com/aristath/helmsman/internal/events"
	"github.com/aristath/helmsman/internal/journal"
	"github.com/aristath/helmsman/internal/reliability"
	"github.com/aristath/helmsman/internal/scheduler"
	"github.com/aristath/helmsman/internal/server"
	"github.com/aristath/helmsman/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Bool("dev_mode", cfg.DevMode).
		Msg("Starting Helmsman")

	// Event plumbing
	bus := events.NewBus()
	eventMgr := events.NewManager(bus, log)

	// Simulated market and paper venue
	market := paper.NewMarket(time.Now().UnixNano())
	source := paper.NewSource(market, log)
	venue := paper.NewVenue(market, paper.DefaultVenueConfig(), log)

	// Agent core
	manager := agent.NewManager(cfg, source, venue, venue, eventMgr, log)

	// Append-only event journal
	journalDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "journal.db"),
		Profile: database.ProfileJournal,
		Name:    "journal",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open journal database")
	}
	defer journalDB.Close()

	jnl, err := journal.New(journalDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize journal")
	}
	jnl.Attach(bus)

	// Snapshot backup, remote only when configured
	var store reliability.Uploader
	if cfg.Backup.Enabled {
		objectStore, err := reliability.NewObjectStore(cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize object store")
		}
		store = objectStore
	}
	snapshots := reliability.NewSnapshotService(
		manager.Registry(), manager.Memories(), store, eventMgr, cfg.DataDir, log)

	// Maintenance jobs
	sched := scheduler.New(log)
	mustAddJob(log, sched, "@hourly", &scheduler.SnapshotJob{
		Snapshots:     snapshots,
		RetentionDays: 14,
		Log:           log,
	})
	mustAddJob(log, sched, "@every 6h", &scheduler.ObservationPruneJob{
		Registry: manager.Registry(),
		Memories: manager.Memories(),
		KeepFor:  72 * time.Hour,
		Log:      log,
	})
	mustAddJob(log, sched, "@daily", &scheduler.JournalPruneJob{
		Journal: jnl,
		KeepFor: 30 * 24 * time.Hour,
		Log:     log,
	})
	sched.Start()

	// HTTP control surface
	srv := server.New(server.Config{
		Log:      log,
		Config:   cfg,
		Port:     cfg.Port,
		DevMode:  cfg.DevMode,
		Manager:  manager,
		EventBus: bus,
		Journal:  jnl,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	manager.StopAll()
	sched.Stop()

	// Final snapshot so a restart can pick up learned state
	if err := snapshots.CaptureAndStore(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Final snapshot failed")
	}

	log.Info().Msg("Helmsman stopped")
}

func mustAddJob(log zerolog.Logger, s *scheduler.Scheduler, schedule string, job scheduler.Job) {
	if err := s.AddJob(schedule, job); err != nil {
		log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
	}
}
