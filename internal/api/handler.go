package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cooperative-finance/kestrel/internal/alerts"
	"github.com/cooperative-finance/kestrel/internal/domain"
	"github.com/cooperative-finance/kestrel/internal/ingest"
	"github.com/cooperative-finance/kestrel/internal/normalize"
	"github.com/cooperative-finance/kestrel/internal/rules"
	"github.com/go-chi/chi/v5"
)

// GlobalSocietyID is used for rules that apply to all societies.
const GlobalSocietyID = "*"

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	engine      *rules.Engine
	custom      *rules.CustomEngine
	ledger      *alerts.Ledger
	fetcher     *ingest.Client
	version     string
	snapshotTTL time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, custom *rules.CustomEngine, ledger *alerts.Ledger, fetcher *ingest.Client, version string, snapshotTTL time.Duration) *Handler {
	return &Handler{
		repo:        repo,
		cache:       cache,
		bus:         bus,
		engine:      engine,
		custom:      custom,
		ledger:      ledger,
		fetcher:     fetcher,
		version:     version,
		snapshotTTL: snapshotTTL,
	}
}

// evaluateRequest is the JSON request body for POST /evaluate when the
// caller does not post records inline.
type evaluateRequest struct {
	Source string `json:"source"`
}

// runSummary is the bus payload published when a run completes.
type runSummary struct {
	RunID      string `json:"runId"`
	SocietyID  string `json:"societyId"`
	AlertCount int    `json:"alertCount"`
}

// Evaluate handles POST /evaluate requests. The body is either a JSON
// array of raw account records, {"source":"upstream"} to pull the
// snapshot from the upstream PACS service, {"source":"cache"} to
// re-evaluate the last ingested snapshot, or a pipe-delimited loan
// report posted as text/plain. With ?async=true the snapshot is
// published to the bus and evaluated by the worker.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	societyID := GetSocietyID(ctx)

	snap, fromCache, err := h.readSnapshot(r, societyID)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if len(snap.Accounts) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "no account records in request",
		})
		return
	}

	// Cache freshly ingested snapshots so {"source":"cache"} re-runs
	// can skip the upstream fetch.
	if h.cache != nil && !fromCache {
		if err := h.cache.SetSnapshot(ctx, societyID, snap, h.snapshotTTL); err != nil {
			slog.Error("failed to cache snapshot", "society_id", societyID, "error", err)
		}
	}

	if r.URL.Query().Get("async") == "true" {
		payload, err := json.Marshal(snap)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to encode snapshot",
			})
			return
		}
		if err := h.bus.Publish(ctx, societyID, domain.TopicSnapshotIngested, payload); err != nil {
			slog.Error("failed to publish snapshot", "society_id", societyID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to publish snapshot",
			})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":   "accepted",
			"accounts": len(snap.Accounts),
		})
		return
	}

	run, err := h.evaluateSnapshot(ctx, snap)
	if err != nil {
		slog.Error("evaluation failed", "society_id", societyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "evaluation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// evaluateSnapshot runs the full pipeline over one snapshot: evaluate,
// reconcile prior resolutions, track, persist, announce.
func (h *Handler) evaluateSnapshot(ctx context.Context, snap *domain.Snapshot) (*domain.Run, error) {
	run, err := h.engine.Evaluate(ctx, snap)
	if err != nil {
		return nil, err
	}

	if h.repo != nil {
		resolutions, err := h.repo.ListResolutions(ctx, snap.SocietyID)
		if err != nil {
			slog.Error("failed to list resolutions", "society_id", snap.SocietyID, "error", err)
		} else {
			alerts.Reconcile(run, resolutions)
		}
	}

	h.ledger.Track(run)

	if h.repo != nil {
		if err := h.repo.SaveRun(ctx, snap.SocietyID, run); err != nil {
			slog.Error("failed to save run", "run_id", run.ID, "error", err)
		}
	}

	if h.bus != nil {
		summary, _ := json.Marshal(runSummary{
			RunID:      run.ID,
			SocietyID:  run.SocietyID,
			AlertCount: len(run.Alerts),
		})
		if err := h.bus.Publish(ctx, snap.SocietyID, domain.TopicRunCompleted, summary); err != nil {
			slog.Error("failed to publish run completion", "run_id", run.ID, "error", err)
		}
	}

	return run, nil
}

// readSnapshot builds the snapshot to evaluate from the request body.
// The bool reports whether it was served from the snapshot cache.
func (h *Handler) readSnapshot(r *http.Request, societyID string) (*domain.Snapshot, bool, error) {
	if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/plain") {
		records, err := ingest.ParseReport(r.Body)
		if err != nil {
			return nil, false, errors.New("invalid report body: " + err.Error())
		}
		return normalize.Snapshot(societyID, records), false, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false, errors.New("failed to read request body")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false, errors.New("request body is required")
	}

	if body[0] == '[' {
		var records []*domain.AccountRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, false, errors.New("invalid JSON record array")
		}
		return normalize.Snapshot(societyID, records), false, nil
	}

	var req evaluateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, false, errors.New("invalid JSON request body")
	}

	switch req.Source {
	case "upstream":
		if h.fetcher == nil {
			return nil, false, errors.New("upstream ingestion is not configured")
		}
		records, err := h.fetcher.FetchAll(r.Context())
		if err != nil {
			return nil, false, err
		}
		return normalize.Snapshot(societyID, records), false, nil
	case "cache":
		if h.cache == nil {
			return nil, false, errors.New("snapshot cache is not configured")
		}
		snap, err := h.cache.GetSnapshot(r.Context(), societyID)
		if err != nil {
			return nil, false, err
		}
		if snap == nil {
			return nil, false, fmt.Errorf("%w: no cached snapshot for society", domain.ErrNotFound)
		}
		return snap, true, nil
	default:
		return nil, false, errors.New(`body must be a record array, {"source":"upstream"}, or {"source":"cache"}`)
	}
}

// GetRun retrieves a stored evaluation run by ID.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	societyID := GetSocietyID(ctx)
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	// Check the in-memory ledger first, then fall back to the repository.
	run, err := h.ledger.Run(runID)
	if err != nil && h.repo != nil {
		run, err = h.repo.GetRun(ctx, societyID, runID)
	}
	if err != nil || run == nil || run.SocietyID != societyID {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListAlerts returns the alerts of the caller's latest run.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	societyID := GetSocietyID(r.Context())

	list, err := h.ledger.Alerts(societyID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no evaluation run for society",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": list,
		"count":  len(list),
	})
}

// GetAlert returns one alert of the latest run by sequence number.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	societyID := GetSocietyID(r.Context())

	seq, err := strconv.Atoi(chi.URLParam(r, "seq"))
	if err != nil || seq < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert seq must be a positive integer",
		})
		return
	}

	run, err := h.ledger.LatestRun(societyID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no evaluation run for society",
		})
		return
	}

	alert, err := h.ledger.Get(run.ID, seq)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// resolveRequest is the request body for POST /alerts/{seq}/resolve.
type resolveRequest struct {
	Notes      string `json:"notes"`
	ResolvedBy string `json:"resolvedBy"`
}

// ResolveAlert marks an alert of the latest run as resolved. Resolving
// an already resolved alert succeeds without reopening it.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	societyID := GetSocietyID(ctx)

	seq, err := strconv.Atoi(chi.URLParam(r, "seq"))
	if err != nil || seq < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert seq must be a positive integer",
		})
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	run, err := h.ledger.LatestRun(societyID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no evaluation run for society",
		})
		return
	}

	alert, resolution, err := h.ledger.Resolve(run.ID, seq, req.Notes, req.ResolvedBy)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert not found",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve alert",
		})
		return
	}

	// Persist the resolution by fingerprint so re-evaluations of the same
	// snapshot keep the alert resolved, and persist the updated run.
	if h.repo != nil {
		if err := h.repo.SaveResolution(ctx, societyID, resolution); err != nil {
			slog.Error("failed to save resolution", "fingerprint", resolution.Fingerprint, "error", err)
		}
		if err := h.repo.SaveRun(ctx, societyID, run); err != nil {
			slog.Error("failed to save run", "run_id", run.ID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(alert)
		if err := h.bus.Publish(ctx, societyID, domain.TopicAlertResolved, payload); err != nil {
			slog.Error("failed to publish resolution", "fingerprint", resolution.Fingerprint, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, alert)
}

// ListRules returns all loaded custom rules.
// Rules are loaded from the database at startup and can be reloaded via
// POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.custom.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule creates a new custom rule and saves it to the database.
// Rules are saved globally (society_id = "*") so they apply to all
// societies. After saving, call POST /rules/reload to hot-reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		SocietyID:   GlobalSocietyID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression by attempting to load.
	if err := h.custom.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, GlobalSocietyID, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all custom rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalSocietyID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.custom.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
