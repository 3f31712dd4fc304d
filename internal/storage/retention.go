package storage

import (
	"context"
	"log/slog"
	"time"
)

// RetentionWorker periodically purges data the TTL index does not cover:
// recovered alerts and old notification-queue entries. Observations expire
// on their own via the timestamp TTL index.
type RetentionWorker struct {
	store     Store
	alertDays int
	queueDays int
	period    time.Duration
	logger    *slog.Logger
}

func NewRetentionWorker(store Store, alertDays, queueDays int, period time.Duration, logger *slog.Logger) *RetentionWorker {
	if alertDays <= 0 {
		alertDays = 90
	}
	if queueDays <= 0 {
		queueDays = 30
	}
	if period <= 0 {
		period = time.Hour
	}
	return &RetentionWorker{
		store:     store,
		alertDays: alertDays,
		queueDays: queueDays,
		period:    period,
		logger:    logger,
	}
}

func (w *RetentionWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	// Run once on startup
	w.purge(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.purge(ctx)
		}
	}
}

func (w *RetentionWorker) purge(ctx context.Context) {
	now := time.Now().UTC()

	alerts, err := w.store.PurgeRecoveredAlerts(ctx, now.AddDate(0, 0, -w.alertDays))
	if err != nil {
		w.logger.Error("retention: purge recovered alerts", "error", err)
	}
	queued, err := w.store.PurgeQueuedNotifications(ctx, now.AddDate(0, 0, -w.queueDays))
	if err != nil {
		w.logger.Error("retention: purge notification queue", "error", err)
	}
	if alerts > 0 || queued > 0 {
		w.logger.Info("retention purge completed", "alerts", alerts, "queued_notifications", queued)
	}
}
