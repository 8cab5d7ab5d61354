// Package worker provides async event processing off the bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Worker consumes engine events from the EventBus and persists alerts.
// It also invalidates cached profile snapshots after adaptations.
type Worker struct {
	bus   domain.EventBus
	repo  domain.Repository
	cache domain.Cache

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	alertsSaved   atomic.Int64
	invalidations atomic.Int64
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		cache:  cache,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the alert and profile adaptation topics.
func (w *Worker) Start() error {
	alertSub, err := w.bus.Subscribe(w.ctx, domain.TopicAlert, w.handleAlert)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, alertSub)

	adaptedSub, err := w.bus.Subscribe(w.ctx, domain.TopicProfileAdapted, w.handleProfileAdapted)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, adaptedSub)

	slog.Info("worker started",
		"topics", []string{domain.TopicAlert, domain.TopicProfileAdapted},
	)

	return nil
}

// handleAlert persists a raised alert.
func (w *Worker) handleAlert(ctx context.Context, msg *domain.Message) error {
	var a domain.Alert
	if err := json.Unmarshal(msg.Payload, &a); err != nil {
		slog.Error("failed to parse alert message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if w.repo != nil {
		if err := w.repo.SaveAlert(ctx, &a); err != nil {
			slog.Error("failed to save alert",
				"alert_id", a.ID,
				"tx_id", a.TransactionID,
				"error", err,
			)
			return err
		}
	}

	w.alertsSaved.Add(1)

	slog.Info("alert recorded",
		"alert_id", a.ID,
		"tx_id", a.TransactionID,
		"user_id", a.UserID,
		"score", a.RiskScore,
	)

	return nil
}

// handleProfileAdapted drops the stale cached snapshot for the adapted profile.
func (w *Worker) handleProfileAdapted(ctx context.Context, msg *domain.Message) error {
	var p domain.UserProfile
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		slog.Error("failed to parse profile message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if w.cache != nil {
		if err := w.cache.InvalidateProfile(ctx, p.ID); err != nil {
			slog.Error("failed to invalidate profile cache",
				"user_id", p.ID,
				"error", err,
			)
			return err
		}
	}

	w.invalidations.Add(1)

	slog.Debug("profile cache invalidated", "user_id", p.ID)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	AlertsSaved       int64    `json:"alertsSaved"`
	Invalidations     int64    `json:"invalidations"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		AlertsSaved:       w.alertsSaved.Load(),
		Invalidations:     w.invalidations.Load(),
	}
}
