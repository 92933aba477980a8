// Package rules implements the fixed detection catalog, the CEL-based
// custom screening engine, and the orchestrator that turns a snapshot
// into a numbered alert run.
package rules

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cooperative-finance/kestrel/internal/correlate"
	"github.com/cooperative-finance/kestrel/internal/domain"
)

// EngineVersion is stamped into run metadata.
const EngineVersion = "kestrel-1.0"

// Engine runs the catalog (plus any loaded custom rules) over a
// snapshot and produces a finished run.
type Engine struct {
	catalog    []Rule
	custom     *CustomEngine
	maxWorkers int

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates an engine over the fixed catalog. The custom engine
// is optional; pass nil to run the catalog alone.
func NewEngine(custom *CustomEngine, maxWorkers int) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Engine{
		catalog:    Catalog(),
		custom:     custom,
		maxWorkers: maxWorkers,
		now:        time.Now,
	}
}

// Evaluate runs every rule over the snapshot and returns the numbered
// alert list. Rules run in parallel but results are merged back in
// catalog order before sequence ids are assigned, so output order is
// deterministic. Cancellation is checked between rule merges.
func (e *Engine) Evaluate(ctx context.Context, snap *domain.Snapshot) (*domain.Run, error) {
	start := e.now()
	ctx, span := otel.Tracer("kestrel-engine").Start(ctx, "engine.evaluate")
	defer span.End()

	idx := correlate.Build(snap)
	now := start.UTC()

	// Per-rule draft lists, indexed by catalog position. Rules share no
	// mutable state, so the only coordination is the semaphore.
	results := make([][]Draft, len(e.catalog))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range e.catalog {
		wg.Add(1)
		go func(idxPos int, r Rule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			results[idxPos] = r.Eval(snap, idx, now)
		}(i, rule)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var drafts []Draft
	for _, ruleDrafts := range results {
		drafts = append(drafts, ruleDrafts...)
	}

	rulesEvaluated := len(e.catalog)
	if e.custom != nil {
		customDrafts, n := e.custom.Evaluate(ctx, snap)
		drafts = append(drafts, customDrafts...)
		rulesEvaluated += n
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	alerts := number(drafts)

	run := &domain.Run{
		ID:        uuid.New().String(),
		SocietyID: snap.SocietyID,
		Timestamp: now,
		Alerts:    alerts,
		Stats:     snap.Stats(),
		Metadata: domain.RunMetadata{
			AccountCount:   len(snap.Accounts),
			RulesEvaluated: rulesEvaluated,
			TotalMs:        time.Since(start).Milliseconds(),
			EngineVersion:  EngineVersion,
		},
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasTraceID() {
		run.Metadata.TraceID = sc.TraceID().String()
	}
	return run, nil
}

// number deduplicates drafts by fingerprint (first occurrence wins) and
// assigns run-scoped sequence ids starting at 1.
func number(drafts []Draft) []*domain.Alert {
	alerts := make([]*domain.Alert, 0, len(drafts))
	seen := make(map[string]struct{}, len(drafts))
	seq := 0
	for _, d := range drafts {
		fp := domain.AlertFingerprint(d.Type, d.Account.AccountNo, d.Description)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		seq++
		alerts = append(alerts, &domain.Alert{
			Seq:         seq,
			Type:        d.Type,
			Description: d.Description,
			AccountNo:   d.Account.AccountNo,
			AccountName: d.Account.AccountName,
			Fingerprint: fp,
			Status:      domain.StatusPending,
		})
	}
	return alerts
}
