// Package main is the entry point for the ontime API server.
// Its sole responsibility is wiring dependencies together and starting the
// server. No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seojinpark/ontime/backend/internal/alert"
	"github.com/seojinpark/ontime/backend/internal/config"
	"github.com/seojinpark/ontime/backend/internal/departure"
	"github.com/seojinpark/ontime/backend/internal/handler"
	"github.com/seojinpark/ontime/backend/internal/middleware"
	"github.com/seojinpark/ontime/backend/internal/repo"
	"github.com/seojinpark/ontime/backend/internal/scheduler"
	"github.com/seojinpark/ontime/backend/internal/service"
)

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// log/slog JSON handler writes machine-readable output suitable for log
	// aggregators.
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Database ---------------------------------------------------------
	// pgxpool manages a pool of Postgres connections.
	// New() does not open connections immediately — the first query does.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(context.Background()); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	// --- Engine wiring ----------------------------------------------------
	dispatcher := alert.NewDispatcher(func(f alert.Fired) {
		// Delivery routing happens client-side; the server records the fact.
		slog.Info("alert delivered",
			"kind", string(f.Kind),
			"appointment_id", f.AppointmentID,
			"handle", string(f.Handle),
		)
	})
	dispatcher.Start()

	appointments := repo.NewAppointmentRepo(pool)
	cascade := scheduler.New(appointments, dispatcher, scheduler.Config{
		BufferMinutes: cfg.BufferMinutes,
		NagCount:      cfg.NagCount,
		NagInterval:   cfg.NagInterval,
		Location:      cfg.Timezone,
	})
	proofOpts := departure.ProofOptions{
		RadiusMeters:   cfg.ProofRadiusMeters,
		EarlyTolerance: cfg.EarlyTolerance,
		LateTolerance:  cfg.LateTolerance,
	}
	svc := service.NewAppointmentService(appointments, cascade, cfg.BufferMinutes, proofOpts, cfg.Timezone)

	// The dispatcher's entries died with the previous process; re-arm every
	// confirmed, unverified appointment whose meeting is still ahead.
	rearm(context.Background(), appointments, cascade, cfg.Timezone)

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(1 << 20)) // 1 MiB

	srv := handler.NewServer(svc, cfg.BufferMinutes, proofOpts, cfg.Timezone)
	r.Mount("/", srv.Routes())

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	<-dispatcher.Stop().Done()
	slog.Info("server stopped")
}

// rearm restores the alert cascade for appointments that were armed when the
// previous process exited. Failures are logged, not fatal — a single bad
// record must not keep the server from starting.
func rearm(ctx context.Context, appointments repo.AppointmentRepo, cascade *scheduler.Cascade, loc *time.Location) {
	appts, err := appointments.List(ctx)
	if err != nil {
		slog.Error("rearm: list appointments", "error", err)
		return
	}

	for _, a := range appts {
		if !a.IsConfirmed || a.IsVerified {
			continue
		}
		if at, ok := a.MeetingAt(loc); !ok || !at.After(time.Now()) {
			continue
		}
		if err := cascade.Arm(ctx, a.ID); err != nil {
			slog.Warn("rearm: arm appointment", "appointment_id", a.ID, "error", err)
		}
	}
}
