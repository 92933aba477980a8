// Package alerts tracks engine runs and drives the alert review
// lifecycle: Pending to Resolved, with Resolved terminal.
package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/cooperative-finance/kestrel/internal/domain"
)

// Ledger holds tracked runs and serializes resolution actions. It is
// the only mutable state in the evaluation path; a single lock is
// enough because resolves are rare compared to reads.
type Ledger struct {
	mu     sync.RWMutex
	runs   map[string]*domain.Run
	latest map[string]string // societyID -> most recent run id

	// now is swappable for tests.
	now func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		runs:   make(map[string]*domain.Run),
		latest: make(map[string]string),
		now:    time.Now,
	}
}

// Track registers a completed run, making it the latest for its
// society.
func (l *Ledger) Track(run *domain.Run) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs[run.ID] = run
	l.latest[run.SocietyID] = run.ID
}

// Run returns a tracked run by id.
func (l *Ledger) Run(runID string) (*domain.Run, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	run, ok := l.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, runID)
	}
	return run, nil
}

// LatestRun returns the most recently tracked run for a society.
func (l *Ledger) LatestRun(societyID string) (*domain.Run, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	runID, ok := l.latest[societyID]
	if !ok {
		return nil, fmt.Errorf("%w: no runs for society %s", domain.ErrNotFound, societyID)
	}
	return l.runs[runID], nil
}

// Alerts returns the alert list of the society's latest run.
func (l *Ledger) Alerts(societyID string) ([]*domain.Alert, error) {
	run, err := l.LatestRun(societyID)
	if err != nil {
		return nil, err
	}
	return run.Alerts, nil
}

// Get returns one alert by run id and sequence number.
func (l *Ledger) Get(runID string, seq int) (*domain.Alert, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.get(runID, seq)
}

func (l *Ledger) get(runID string, seq int) (*domain.Alert, error) {
	run, ok := l.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, runID)
	}
	for _, a := range run.Alerts {
		if a.Seq == seq {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: alert %d in run %s", domain.ErrNotFound, seq, runID)
}

// Resolve transitions an alert to Resolved. Resolving an already
// resolved alert is an idempotent success: the original resolution
// timestamp is kept and notes are replaced only when new notes are
// explicitly supplied. Returns the alert and the resolution record the
// caller should persist.
func (l *Ledger) Resolve(runID string, seq int, notes, resolvedBy string) (*domain.Alert, *domain.Resolution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	alert, err := l.get(runID, seq)
	if err != nil {
		return nil, nil, err
	}

	switch alert.Status {
	case domain.StatusPending:
		now := l.now().UTC()
		alert.Status = domain.StatusResolved
		alert.Notes = notes
		alert.ResolvedBy = resolvedBy
		alert.ResolvedAt = &now
	case domain.StatusResolved:
		if notes != "" {
			alert.Notes = notes
		}
		if resolvedBy != "" {
			alert.ResolvedBy = resolvedBy
		}
	}

	res := &domain.Resolution{
		Fingerprint: alert.Fingerprint,
		Notes:       alert.Notes,
		ResolvedBy:  alert.ResolvedBy,
		ResolvedAt:  *alert.ResolvedAt,
	}
	return alert, res, nil
}

// Reconcile applies persisted resolutions to a fresh run, matching by
// fingerprint so review work survives re-evaluation of the same
// snapshot under new sequence ids.
func Reconcile(run *domain.Run, resolutions []*domain.Resolution) {
	if len(resolutions) == 0 {
		return
	}
	byFingerprint := make(map[string]*domain.Resolution, len(resolutions))
	for _, res := range resolutions {
		byFingerprint[res.Fingerprint] = res
	}
	for _, a := range run.Alerts {
		res, ok := byFingerprint[a.Fingerprint]
		if !ok {
			continue
		}
		resolvedAt := res.ResolvedAt
		a.Status = domain.StatusResolved
		a.Notes = res.Notes
		a.ResolvedBy = res.ResolvedBy
		a.ResolvedAt = &resolvedAt
	}
}
