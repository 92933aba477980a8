// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cooperative-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun upserts a run with society isolation. The alert list, stats,
// and metadata are stored as JSON documents; resolving an alert
// rewrites the documents of an already saved run.
func (r *SQLRepository) SaveRun(ctx context.Context, societyID string, run *domain.Run) error {
	if societyID == "" {
		return fmt.Errorf("%w: societyID is required", domain.ErrInvalidInput)
	}

	alerts, err := json.Marshal(run.Alerts)
	if err != nil {
		return fmt.Errorf("failed to encode alerts: %w", err)
	}
	stats, _ := json.Marshal(run.Stats)
	metadata, _ := json.Marshal(run.Metadata)

	query := `
		INSERT INTO runs (id, society_id, timestamp, alerts, stats, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			alerts = excluded.alerts,
			stats = excluded.stats,
			metadata = excluded.metadata
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		run.ID, societyID, run.Timestamp,
		string(alerts), string(stats), string(metadata),
	)
	return err
}

// GetRun retrieves a run by ID with society isolation.
func (r *SQLRepository) GetRun(ctx context.Context, societyID string, runID string) (*domain.Run, error) {
	if societyID == "" {
		return nil, fmt.Errorf("%w: societyID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, society_id, timestamp, alerts, stats, metadata
		FROM runs
		WHERE society_id = ? AND id = ?
	`

	var run domain.Run
	var alerts, stats, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), societyID, runID).Scan(
		&run.ID, &run.SocietyID, &run.Timestamp,
		&alerts, &stats, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(alerts), &run.Alerts); err != nil {
		return nil, fmt.Errorf("failed to parse run alerts: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &run.Stats); err != nil {
		return nil, fmt.Errorf("failed to parse run stats: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &run.Metadata); err != nil {
		return nil, fmt.Errorf("failed to parse run metadata: %w", err)
	}

	return &run, nil
}

// SaveResolution upserts a resolution keyed by alert fingerprint, so a
// repeated resolve of the same alert overwrites rather than duplicates.
func (r *SQLRepository) SaveResolution(ctx context.Context, societyID string, res *domain.Resolution) error {
	if societyID == "" {
		return fmt.Errorf("%w: societyID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO resolutions (fingerprint, society_id, notes, resolved_by, resolved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint, society_id) DO UPDATE SET
			notes = excluded.notes,
			resolved_by = excluded.resolved_by,
			resolved_at = excluded.resolved_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		res.Fingerprint, societyID, res.Notes, res.ResolvedBy, res.ResolvedAt,
	)
	return err
}

// GetResolution retrieves a resolution by alert fingerprint.
func (r *SQLRepository) GetResolution(ctx context.Context, societyID string, fingerprint string) (*domain.Resolution, error) {
	if societyID == "" {
		return nil, fmt.Errorf("%w: societyID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT fingerprint, notes, resolved_by, resolved_at
		FROM resolutions
		WHERE society_id = ? AND fingerprint = ?
	`

	var res domain.Resolution
	err := r.db.QueryRowContext(ctx, r.rebind(query), societyID, fingerprint).Scan(
		&res.Fingerprint, &res.Notes, &res.ResolvedBy, &res.ResolvedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// ListResolutions retrieves every resolution for a society, used to
// reconcile a fresh run against prior review work.
func (r *SQLRepository) ListResolutions(ctx context.Context, societyID string) ([]*domain.Resolution, error) {
	if societyID == "" {
		return nil, fmt.Errorf("%w: societyID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT fingerprint, notes, resolved_by, resolved_at
		FROM resolutions
		WHERE society_id = ?
		ORDER BY resolved_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), societyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resolutions []*domain.Resolution
	for rows.Next() {
		var res domain.Resolution
		if err := rows.Scan(&res.Fingerprint, &res.Notes, &res.ResolvedBy, &res.ResolvedAt); err != nil {
			return nil, err
		}
		resolutions = append(resolutions, &res)
	}

	return resolutions, rows.Err()
}

// SaveRuleConfig upserts a custom screening rule.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, societyID string, rule *domain.RuleConfig) error {
	if societyID == "" {
		return fmt.Errorf("%w: societyID is required", domain.ErrInvalidInput)
	}
	if rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	query := `
		INSERT INTO rule_configs (id, society_id, name, description, version, expression, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id, society_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, societyID, rule.Name, rule.Description,
		rule.Version, rule.Expression, enabled, now, now,
	)
	return err
}

// GetRuleConfig retrieves a custom rule by ID.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, societyID string, ruleID string) (*domain.RuleConfig, error) {
	if societyID == "" {
		return nil, fmt.Errorf("%w: societyID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, society_id, name, description, version, expression, enabled
		FROM rule_configs
		WHERE society_id = ? AND id = ?
	`

	var rule domain.RuleConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), societyID, ruleID).Scan(
		&rule.ID, &rule.SocietyID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListRuleConfigs retrieves all enabled custom rules for a society.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, societyID string) ([]*domain.RuleConfig, error) {
	if societyID == "" {
		return nil, fmt.Errorf("%w: societyID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, society_id, name, description, version, expression, enabled
		FROM rule_configs
		WHERE society_id = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), societyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.RuleConfig
	for rows.Next() {
		var rule domain.RuleConfig
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.SocietyID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
