package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require societyID for strict isolation between cooperatives.
type Repository interface {
	// Evaluation runs
	SaveRun(ctx context.Context, societyID string, run *Run) error
	GetRun(ctx context.Context, societyID string, runID string) (*Run, error)

	// Resolutions, keyed by alert fingerprint for cross-run reconciliation
	SaveResolution(ctx context.Context, societyID string, res *Resolution) error
	GetResolution(ctx context.Context, societyID string, fingerprint string) (*Resolution, error)
	ListResolutions(ctx context.Context, societyID string) ([]*Resolution, error)

	// Custom screening rule configurations
	SaveRuleConfig(ctx context.Context, societyID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, societyID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, societyID string) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
