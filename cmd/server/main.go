package main

// Package main is the entry point for the hostpulse daemon.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Open the SQLite telemetry store and restore trained models from disk
//   - Run the sampling loop: collect, persist, predict, suggest
//   - Serve the REST API, WebSocket live feed, and Prometheus metrics
//   - Shut down cleanly on SIGINT/SIGTERM
//
// Data flow:
//   1. Collector (gopsutil) samples the host into the SQLite store
//   2. Stored history feeds feature/target building and forest training
//   3. Models + the latest window produce forecasts and suggestions
//   4. Each monitor tick fans out to WebSocket dashboard clients
//
// Graceful shutdown:
//   - Stops the sampling loop
//   - Drains HTTP and disconnects WebSocket clients
//   - Closes the store and flushes audit logs

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hostpulse/hostpulse/internal/advise"
	"github.com/hostpulse/hostpulse/internal/audit"
	"github.com/hostpulse/hostpulse/internal/collector"
	"github.com/hostpulse/hostpulse/internal/config"
	"github.com/hostpulse/hostpulse/internal/db"
	"github.com/hostpulse/hostpulse/internal/export"
	"github.com/hostpulse/hostpulse/internal/features"
	"github.com/hostpulse/hostpulse/internal/ml"
	"github.com/hostpulse/hostpulse/internal/monitor"
	"github.com/hostpulse/hostpulse/internal/predict"
	"github.com/hostpulse/hostpulse/internal/remedy"
	"github.com/hostpulse/hostpulse/internal/server"
)

func main() {
	configPath := flag.String("config", "/etc/hostpulse/config.yaml", "path to YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration (missing file falls back to defaults + env vars)
	mgr, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create config manager: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get(ctx)

	// Audit logger owns the rotating app log as well
	aud, err := audit.NewLogger(&audit.Config{
		AuditLogPath:  filepath.Join(filepath.Dir(cfg.Logging.File), "audit.log"),
		AppLogPath:    cfg.Logging.File,
		MaxSize:       cfg.Logging.MaxSizeMB,
		MaxBackups:    cfg.Logging.MaxBackups,
		MaxAge:        cfg.Logging.MaxAgeDays,
		Compress:      true,
		LogLevel:      cfg.Logging.Level,
		BufferSize:    cfg.Logging.BufferSize,
		FlushInterval: time.Duration(cfg.Logging.FlushIntervalSeconds) * time.Second,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create audit logger: %v\n", err)
		os.Exit(1)
	}
	log := aud.AppLogger()

	// Telemetry store
	store, err := db.NewSQLiteStore(cfg.Database.Path, db.Options{
		BusyTimeoutMS: cfg.Database.BusyTimeoutMS,
		MaxProcesses:  cfg.Sampling.TopProcesses,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open telemetry store: %v\n", err)
		os.Exit(1)
	}

	// Models, restored from disk when a previous run saved them
	models := ml.NewManager(ml.Options{
		Dir:            cfg.Model.Dir,
		Trees:          cfg.Model.Trees,
		MaxDepth:       cfg.Model.MaxDepth,
		Seed:           cfg.Model.Seed,
		RetrainCadence: cfg.Model.RetrainCadence,
	}, log)
	if restored, err := models.Load(); err != nil {
		log.Warn("stored models not restored", zap.Error(err))
	} else if restored {
		log.Info("models restored from disk", zap.String("dir", cfg.Model.Dir))
	}

	pred := predict.New(store, models, predict.Options{
		RecentWindow:   cfg.Sampling.RecentWindow,
		HistoryDays:    cfg.Model.HistoryDays,
		MinTrainRows:   cfg.Model.MinTrainRows,
		MinCleanRows:   cfg.Model.MinCleanRows,
		CriticalStress: cfg.Thresholds.CriticalStress,
		Thresholds: features.Thresholds{
			CPUHigh:    cfg.Thresholds.CPUHigh,
			MemoryHigh: cfg.Thresholds.MemoryHigh,
			DiskHigh:   cfg.Thresholds.DiskHigh,
		},
		TargetThresholds: features.TargetThresholds{
			FutureCPU:    cfg.Thresholds.FutureCPUHigh,
			FutureMemory: cfg.Thresholds.FutureMemoryHigh,
			FutureStress: cfg.Thresholds.FutureStressHigh,
		},
	}, aud, log)

	adv := advise.New(advise.Options{
		MaxLines:         cfg.Suggestions.MaxLines,
		CPUHigh:          cfg.Thresholds.CPUHigh,
		MemoryHigh:       cfg.Thresholds.MemoryHigh,
		DiskHigh:         cfg.Thresholds.DiskHigh,
		MemoryWarn:       cfg.Thresholds.MemoryWarn,
		DiskWarn:         cfg.Thresholds.DiskWarn,
		ProcessCPUMin:    cfg.Thresholds.ProcessCPUMin,
		ProcessMemoryMB:  cfg.Thresholds.ProcessMemoryMB,
		HeavyAppMemoryMB: cfg.Thresholds.HeavyAppMemoryMB,
		ProcessCountHigh: cfg.Thresholds.ProcessCountHigh,
	})

	rem := remedy.New(remedy.Options{
		Enabled:           cfg.Remediation.Enabled,
		SafeProcesses:     cfg.Remediation.SafeProcesses,
		CriticalProcesses: cfg.Remediation.CriticalProcesses,
		CPUKillPercent:    cfg.Remediation.CPUKillPercent,
		MemoryKillPercent: cfg.Remediation.MemoryKillPercent,
	}, log)

	mon := monitor.New(store, collector.New(cfg.Sampling.DiskPath), pred, adv, nil,
		monitor.Options{
			Interval:      time.Duration(cfg.Sampling.IntervalSeconds) * time.Second,
			MinRecords:    cfg.Sampling.MinRecords,
			TopProcesses:  cfg.Sampling.TopProcesses,
			RetentionDays: cfg.Database.RetentionDays,
		}, log)

	srv, err := server.New(server.Deps{
		Store:      store,
		Monitor:    mon,
		Remediator: rem,
		Exporter:   export.New(store),
		Audit:      aud,
		Log:        log,
	}, server.Options{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		ReadTimeout:      time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:     time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ShutdownTimeout:  time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		ActionsPerMinute: cfg.RateLimit.ActionsPerMinute,
		ExportDir:        cfg.Export.Dir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}
	mon.SetPublisher(srv.Publisher())

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
	log.Info("hostpulse started",
		zap.String("addr", srv.Addr()),
		zap.String("db", cfg.Database.Path),
		zap.Bool("remediation", cfg.Remediation.Enabled))
	_ = aud.Log(ctx, audit.NewEvent(audit.EventServerStarted).
		WithComponent("main").
		WithDescription(fmt.Sprintf("Listening on %s", srv.Addr())).
		WithResult(audit.ResultSuccess))
	fmt.Printf("hostpulse listening on %s\n", srv.Addr())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mon.Run(ctx)
	}()

	// Wait for shutdown signal (Ctrl+C or SIGTERM)
	<-ctx.Done()
	stop()
	fmt.Println("\nReceived shutdown signal...")
	<-done

	if err := srv.Stop(); err != nil {
		log.Warn("server stop", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		log.Warn("store close", zap.Error(err))
	}
	log.Info("hostpulse stopped")
	_ = aud.Log(context.Background(), audit.NewEvent(audit.EventServerShutdown).
		WithComponent("main").
		WithResult(audit.ResultSuccess))
	if err := aud.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing audit logger: %v\n", err)
	}
	fmt.Println("Shutdown complete")
}
