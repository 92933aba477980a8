// Package worker provides async snapshot evaluation for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cooperative-finance/kestrel/internal/alerts"
	"github.com/cooperative-finance/kestrel/internal/domain"
	"github.com/cooperative-finance/kestrel/internal/rules"
)

// Worker evaluates ingested snapshots asynchronously from the EventBus.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	engine *rules.Engine
	ledger *alerts.Ledger

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// SocietyIDs is the list of societies to process (empty = all via
	// a global subscription)
	SocietyIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *rules.Engine, ledger *alerts.Ledger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		engine: engine,
		ledger: ledger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing snapshots for the given societies.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.SocietyIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, societyID := range cfg.SocietyIDs {
		if err := w.startSocietyWorker(societyID); err != nil {
			slog.Error("failed to start worker for society",
				"society_id", societyID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"society_count", len(cfg.SocietyIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all societies.
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicSnapshotIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startSocietyWorker starts a worker for a specific society.
func (w *Worker) startSocietyWorker(societyID string) error {
	sub, err := w.bus.Subscribe(w.ctx, societyID, domain.TopicSnapshotIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("society worker started",
		"society_id", societyID,
		"topic", domain.TopicSnapshotIngested,
	)

	return nil
}

// handleMessage evaluates one ingested snapshot message.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var snap domain.Snapshot
	if err := json.Unmarshal(msg.Payload, &snap); err != nil {
		slog.Error("failed to parse snapshot message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	societyID := snap.SocietyID
	if societyID == "" {
		societyID = msg.SocietyID
		snap.SocietyID = societyID
	}

	slog.Debug("processing snapshot",
		"society_id", societyID,
		"accounts", len(snap.Accounts),
	)

	run, err := w.engine.Evaluate(ctx, &snap)
	if err != nil {
		slog.Error("snapshot evaluation failed",
			"society_id", societyID,
			"error", err,
		)
		return err
	}

	// Reconcile against resolutions recorded on earlier runs.
	if w.repo != nil {
		resolutions, err := w.repo.ListResolutions(ctx, societyID)
		if err != nil {
			slog.Error("failed to list resolutions",
				"society_id", societyID,
				"error", err,
			)
		} else {
			alerts.Reconcile(run, resolutions)
		}
	}

	w.ledger.Track(run)

	if w.repo != nil {
		if err := w.repo.SaveRun(ctx, societyID, run); err != nil {
			slog.Error("failed to save run",
				"run_id", run.ID,
				"error", err,
			)
		}
	}

	// Announce the run, then each still-pending alert.
	runPayload, _ := json.Marshal(run)
	if err := w.bus.Publish(ctx, societyID, domain.TopicRunCompleted, runPayload); err != nil {
		slog.Error("failed to publish run completion",
			"run_id", run.ID,
			"error", err,
		)
	}

	for _, alert := range run.Alerts {
		if alert.Status != domain.StatusPending {
			continue
		}
		payload, _ := json.Marshal(alert)
		if err := w.bus.Publish(ctx, societyID, domain.TopicAlertRaised, payload); err != nil {
			slog.Error("failed to publish alert",
				"run_id", run.ID,
				"seq", alert.Seq,
				"error", err,
			)
		}
	}

	slog.Info("snapshot processed",
		"run_id", run.ID,
		"society_id", societyID,
		"alerts", len(run.Alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
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
	}
}
