package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/example/care-scheduler/internal/application"
	"github.com/example/care-scheduler/internal/config"
	httptransport "github.com/example/care-scheduler/internal/http"
	"github.com/example/care-scheduler/internal/persistence/sqlite"
)

func main() {
	configPath := flag.String("config", "care-scheduler.yaml", "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))

	store, err := sqlite.Open(ctx, cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	idGenerator := uuid.NewString
	now := time.Now

	ledger := application.NewLedgerService(store.Sessions(), store.Appointments(), store.Attendance(), store.Volunteers(), store.Residents(), idGenerator, now, logger)
	sessionService := application.NewSessionService(store.Rules(), store.Sessions(), store.Appointments(), store.ExternalGroups(), ledger, idGenerator, now, logger)
	participantService := application.NewParticipantService(store.Sessions(), store.Appointments(), store.Volunteers(), store.Residents(), ledger, idGenerator, now, logger)
	materializer := application.NewMaterializer(store.Rules(), store.Sessions(), store.Appointments(), ledger, cfg.HorizonDays, now, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Sessions:     httptransport.NewSessionHandler(sessionService, logger),
		Participants: httptransport.NewParticipantHandler(participantService, logger),
		Attendance:   httptransport.NewAttendanceHandler(ledger, logger),
		Materialize:  httptransport.NewMaterializeHandler(materializer, logger),
		Middleware:   []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	// Materialize once on startup so the horizon is populated before the
	// first scheduled run, then keep it topped up on the configured cadence.
	if report, err := materializer.Materialize(ctx, nil, nil); err != nil {
		logger.Error("startup materialization failed", "error", err)
	} else {
		logger.Info("startup materialization finished", "created", report.Created, "skipped", report.Skipped, "failures", len(report.Failures))
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.MaterializeSchedule, func() {
		if _, err := materializer.Materialize(context.Background(), nil, nil); err != nil {
			logger.Error("scheduled materialization failed", "error", err)
		}
	}); err != nil {
		logger.Error("invalid materialization schedule", "schedule", cfg.MaterializeSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("care scheduler API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

func logLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
