package repository

// Schema definitions for Kestrel's database.
// Compatible with both SQLite and PostgreSQL.

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    society_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    alerts TEXT NOT NULL,
    stats TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_society ON runs(society_id);
CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(society_id, timestamp);
`

const schemaResolutions = `
CREATE TABLE IF NOT EXISTS resolutions (
    fingerprint TEXT NOT NULL,
    society_id TEXT NOT NULL,
    notes TEXT,
    resolved_by TEXT,
    resolved_at TIMESTAMP NOT NULL,
    PRIMARY KEY (fingerprint, society_id)
);

CREATE INDEX IF NOT EXISTS idx_resolutions_society ON resolutions(society_id);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    society_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, society_id)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_society ON rule_configs(society_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(society_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRuns,
		schemaResolutions,
		schemaRuleConfigs,
	}
}
