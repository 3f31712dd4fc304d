// Command argus-sweep runs one sweep and prints its summary as JSON.
// Useful from cron or for smoke-testing a deployment without the daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/argus-mon/argus/internal/advisor"
	"github.com/argus-mon/argus/internal/alert"
	"github.com/argus-mon/argus/internal/checker"
	"github.com/argus-mon/argus/internal/config"
	"github.com/argus-mon/argus/internal/events"
	"github.com/argus-mon/argus/internal/executor"
	"github.com/argus-mon/argus/internal/notifier"
	"github.com/argus-mon/argus/internal/state"
	"github.com/argus-mon/argus/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	period := flag.String("period", "due", `which monitors to run: "due" or "all"`)
	flag.Parse()

	if *period != "due" && *period != "all" {
		fmt.Fprintln(os.Stderr, `error: -period must be "due" or "all"`)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so stdout stays machine-readable.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close(context.Background())

	var adv checker.Advisor
	if cfg.AdvisorEnabled() {
		adv = advisor.New(advisor.Config{
			APIKey: cfg.Advisor.APIKey,
			Model:  cfg.Advisor.Model,
		}, logger)
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
	}

	alerts := alert.NewManager(store, senders, bus, logger)
	exec := executor.New(store, registry, states, alerts, bus, cfg.Scheduler.Workers, logger)

	var summary *executor.Summary
	if *period == "all" {
		summary, err = exec.ExecuteAll(ctx, time.Now())
	} else {
		summary, err = exec.ExecuteDue(ctx, time.Now())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: sweep: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(summary)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.MemoryStore() {
		return storage.NewMemStore(), nil
	}
	return storage.NewMongoStore(ctx, cfg.Database.URI, cfg.Database.Name)
}
