package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cooperative-finance/kestrel/internal/alerts"
	"github.com/cooperative-finance/kestrel/internal/bus"
	"github.com/cooperative-finance/kestrel/internal/domain"
	"github.com/cooperative-finance/kestrel/internal/normalize"
	"github.com/cooperative-finance/kestrel/internal/rules"
)

// testSnapshot returns a snapshot with one account that trips the
// repayment default rule.
func testSnapshot(societyID string) *domain.Snapshot {
	return normalize.Snapshot(societyID, []*domain.AccountRecord{
		{
			SrNo:                  "1",
			CustomerNo:            "4030001",
			PacsAccountNo:         "613010001",
			MemberCustomerNo:      "403000045035",
			MemberAccountNo:       "70101000045",
			MemberAccountName:     "RAMESH KUMAR",
			MemberUnpaidPrinciple: "2500.00",
			MemberOutstanding:     "12000.50",
			LastActivityDate:      "01/06/2023",
		},
	})
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	engine := rules.NewEngine(nil, 5)
	ledger := alerts.NewLedger()

	worker := NewWorker(eventBus, nil, engine, ledger)

	t.Run("StartAndStop", func(t *testing.T) {
		cfg := Config{
			SocietyIDs: []string{"society-001"},
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessSnapshot", func(t *testing.T) {
		w := NewWorker(eventBus, nil, engine, alerts.NewLedger())

		cfg := Config{
			SocietyIDs: []string{"society-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		var runReceived atomic.Bool
		var runPayload atomic.Value

		eventBus.Subscribe(context.Background(), "society-test", domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
			runPayload.Store(msg.Payload)
			runReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(testSnapshot("society-test"))
		err := eventBus.Publish(context.Background(), "society-test", domain.TopicSnapshotIngested, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for !runReceived.Load() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}

		if !runReceived.Load() {
			t.Fatal("expected run completion to be published")
		}

		var run domain.Run
		if err := json.Unmarshal(runPayload.Load().([]byte), &run); err != nil {
			t.Fatalf("failed to parse run: %v", err)
		}

		if run.SocietyID != "society-test" {
			t.Errorf("expected societyID 'society-test', got '%s'", run.SocietyID)
		}
		if len(run.Alerts) == 0 {
			t.Error("expected alerts for defaulted account")
		}
	})

	t.Run("AlertsPublished", func(t *testing.T) {
		w := NewWorker(eventBus, nil, engine, alerts.NewLedger())

		cfg := Config{
			SocietyIDs: []string{"society-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		var alertCount atomic.Int32

		eventBus.Subscribe(context.Background(), "society-alert", domain.TopicAlertRaised, func(ctx context.Context, msg *domain.Message) error {
			alertCount.Add(1)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(testSnapshot("society-alert"))
		eventBus.Publish(context.Background(), "society-alert", domain.TopicSnapshotIngested, payload)

		deadline := time.Now().Add(2 * time.Second)
		for alertCount.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}

		if alertCount.Load() == 0 {
			t.Error("expected alert events for defaulted account")
		}
	})

	t.Run("TracksRunInLedger", func(t *testing.T) {
		ledger := alerts.NewLedger()
		w := NewWorker(eventBus, nil, engine, ledger)

		cfg := Config{
			SocietyIDs: []string{"society-ledger"},
		}
		w.Start(cfg)
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(testSnapshot("society-ledger"))
		eventBus.Publish(context.Background(), "society-ledger", domain.TopicSnapshotIngested, payload)

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if _, err := ledger.LatestRun("society-ledger"); err == nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}

		run, err := ledger.LatestRun("society-ledger")
		if err != nil {
			t.Fatalf("expected run tracked in ledger: %v", err)
		}
		if run.Metadata.AccountCount != 1 {
			t.Errorf("expected 1 account, got %d", run.Metadata.AccountCount)
		}
	})

	t.Run("MultiSociety", func(t *testing.T) {
		w := NewWorker(eventBus, nil, engine, alerts.NewLedger())

		cfg := Config{
			SocietyIDs: []string{"society-a", "society-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 societies, got %d", stats.SubscriptionCount)
		}
	})
}

func TestWorkerBadPayload(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, rules.NewEngine(nil, 2), alerts.NewLedger())

	cfg := Config{
		SocietyIDs: []string{"society-bad"},
	}
	w.Start(cfg)
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)

	// A payload that is not a snapshot must not wedge the worker.
	eventBus.Publish(context.Background(), "society-bad", domain.TopicSnapshotIngested, []byte("not-json"))

	payload, _ := json.Marshal(testSnapshot("society-bad"))
	eventBus.Publish(context.Background(), "society-bad", domain.TopicSnapshotIngested, payload)

	ledger := w.ledger
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := ledger.LatestRun("society-bad"); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected valid snapshot to be processed after bad payload")
}
