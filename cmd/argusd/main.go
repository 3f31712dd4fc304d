package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/argus-mon/argus/internal/advisor"
	"github.com/argus-mon/argus/internal/alert"
	"github.com/argus-mon/argus/internal/api"
	"github.com/argus-mon/argus/internal/checker"
	"github.com/argus-mon/argus/internal/config"
	"github.com/argus-mon/argus/internal/events"
	"github.com/argus-mon/argus/internal/executor"
	"github.com/argus-mon/argus/internal/notifier"
	"github.com/argus-mon/argus/internal/scheduler"
	"github.com/argus-mon/argus/internal/state"
	"github.com/argus-mon/argus/internal/storage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("argusd %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting argusd", "version", version, "listen", cfg.Server.Listen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	logger.Info("store opened", "uri", cfg.Database.URI, "database", cfg.Database.Name)

	var adv checker.Advisor
	if cfg.AdvisorEnabled() {
		adv = advisor.New(advisor.Config{
			APIKey: cfg.Advisor.APIKey,
			Model:  cfg.Advisor.Model,
		}, logger)
		logger.Info("advisor enabled")
	}

	registry := checker.DefaultRegistry(adv)
	bus := events.NewBus(logger)
	states := state.NewManager(store, logger)

	var senders []notifier.Sender
	if cfg.EmailEnabled() {
		senders = append(senders, notifier.NewEmailSender(notifier.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}))
		logger.Info("email notifications enabled", "host", cfg.SMTP.Host, "from", cfg.SMTP.From)
	} else {
		logger.Warn("smtp not configured, notifications disabled")
	}

	alerts := alert.NewManager(store, senders, bus, logger)
	exec := executor.New(store, registry, states, alerts, bus, cfg.Scheduler.Workers, logger)
	sched := scheduler.New(exec, alerts, cfg.Scheduler.Tick, logger)

	retention := storage.NewRetentionWorker(store, cfg.Retention.AlertDays, cfg.Retention.QueueDays, cfg.Retention.Period, logger)
	go retention.Run(ctx)

	if cfg.Scheduler.AutoStart {
		logger.Info("scheduler autostart armed", "delay", cfg.Scheduler.StartDelay)
		time.AfterFunc(cfg.Scheduler.StartDelay, func() { sched.Start() })
	}

	srv := api.NewServer(cfg, store, registry, exec, sched, alerts, bus, logger, version)
	httpServer := startHTTPServer(cfg, srv, logger, cancel)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	cancel()
	sched.Stop()
	srv.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.MemoryStore() {
		return storage.NewMemStore(), nil
	}
	return storage.NewMongoStore(ctx, cfg.Database.URI, cfg.Database.Name)
}

func startHTTPServer(cfg *config.Config, handler http.Handler, logger *slog.Logger, cancel context.CancelFunc) *http.Server {
	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "listen", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	return httpServer
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
