package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"homeserve/backend/internal/auth"
	"homeserve/backend/internal/config"
	"homeserve/backend/internal/notify"
	"homeserve/backend/internal/observability/metrics"
	"homeserve/backend/internal/service/availability"
	"homeserve/backend/internal/service/engagements"
	"homeserve/backend/internal/service/holds"
	"homeserve/backend/internal/service/reminders"
	"homeserve/backend/internal/service/seriesgen"
	"homeserve/backend/internal/store/postgres"
	"homeserve/backend/internal/transport/httpapi"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "homeserve-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "homeserve-server"),
	)
	slog.SetDefault(log)

	addr := net.JoinHostPort(cfg.HTTPHost, strconv.Itoa(cfg.HTTPPort))
	log.Info("starting", slog.String("http_addr", addr), slog.String("log_level", cfg.LogLevel))

	if cfg.AuthSecret == "" {
		log.Error("auth secret is required")
		os.Exit(1)
	}
	if cfg.SchedulerSecret == "" {
		log.Warn("scheduler secret unset; batch endpoints disabled")
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	if err := postgres.Migrate(context.Background(), db); err != nil {
		log.Error("migration failed", slog.Any("err", err))
		os.Exit(1)
	}

	engagementRepo := postgres.NewEngagementRepo(db)
	blockRepo := postgres.NewTimeBlockRepo(db)

	bookingMetrics := metrics.NewBookingMetrics(nil)
	notifier := notify.NewService(&notify.LogSender{Log: log}, log)

	checker := availability.NewChecker(blockRepo)
	holdManager := holds.NewManager(blockRepo, bookingMetrics, log)
	engagementSvc := engagements.NewService(engagementRepo, holdManager, checker, notifier, log)
	generator := seriesgen.NewGenerator(engagementRepo, bookingMetrics, log)
	scanner := reminders.NewScanner(engagementRepo, notifier, bookingMetrics, log, cfg.ReminderLeadTime, cfg.ReminderDrift)

	server := httpapi.NewServer(engagementSvc, generator, scanner, holdManager, log)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(auth.NewVerifier(cfg.AuthSecret), cfg.SchedulerSecret, cfg.HTTPRequestTimeout),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	log.Info("http server started", slog.String("http_addr", addr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdown(log, httpServer, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped with error", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func shutdown(log *slog.Logger, s *http.Server, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown timed out; forcing close", slog.Any("err", err))
		_ = s.Close()
		return
	}
	log.Info("http server stopped")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
