package domain

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Ingest settings
	Ingest IngestConfig `json:"ingest"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// IngestConfig holds settings for pulling account snapshots
// from an upstream core-banking endpoint.
type IngestConfig struct {
	BaseURL string `json:"baseUrl"`
	Timeout int    `json:"timeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// env mirrors the environment variables Kestrel reads at startup.
// Only the variables that are set override the tier defaults.
type env struct {
	Tier string `envconfig:"KESTREL_TIER" default:"community"`

	Host         string `envconfig:"KESTREL_HOST" default:""`
	Port         int    `envconfig:"KESTREL_PORT" default:"0"`
	ReadTimeout  int    `envconfig:"KESTREL_READ_TIMEOUT" default:"0"`
	WriteTimeout int    `envconfig:"KESTREL_WRITE_TIMEOUT" default:"0"`

	IngestBaseURL string `envconfig:"KESTREL_INGEST_URL" default:""`
	IngestTimeout int    `envconfig:"KESTREL_INGEST_TIMEOUT" default:"0"`

	SQLitePath   string `envconfig:"KESTREL_SQLITE_PATH" default:""`
	PostgresHost string `envconfig:"KESTREL_PG_HOST" default:""`
	PostgresPort int    `envconfig:"KESTREL_PG_PORT" default:"0"`
	PostgresUser string `envconfig:"KESTREL_PG_USER" default:""`
	PostgresPass string `envconfig:"KESTREL_PG_PASSWORD" default:""`
	PostgresDB   string `envconfig:"KESTREL_PG_DB" default:""`

	RedisAddr     string `envconfig:"KESTREL_REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"KESTREL_REDIS_PASSWORD" default:""`

	NATSUrl   string `envconfig:"KESTREL_NATS_URL" default:""`
	NATSToken string `envconfig:"KESTREL_NATS_TOKEN" default:""`

	LogLevel  string `envconfig:"KESTREL_LOG_LEVEL" default:""`
	LogFormat string `envconfig:"KESTREL_LOG_FORMAT" default:""`

	TracingEnabled  bool   `envconfig:"KESTREL_TRACING" default:"false"`
	TracingEndpoint string `envconfig:"KESTREL_TRACING_ENDPOINT" default:""`
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Ingest: IngestConfig{
			Timeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig builds the configuration from tier defaults and
// KESTREL_* environment overrides.
func LoadConfig() (*Config, error) {
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	var cfg *Config
	switch Tier(e.Tier) {
	case TierPro:
		cfg = ProConfig()
	case TierCommunity, "":
		cfg = DefaultConfig()
	default:
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, e.Tier)
	}

	if e.Host != "" {
		cfg.Server.Host = e.Host
	}
	if e.Port != 0 {
		cfg.Server.Port = e.Port
	}
	if e.ReadTimeout != 0 {
		cfg.Server.ReadTimeout = e.ReadTimeout
	}
	if e.WriteTimeout != 0 {
		cfg.Server.WriteTimeout = e.WriteTimeout
	}
	if e.IngestBaseURL != "" {
		cfg.Ingest.BaseURL = e.IngestBaseURL
	}
	if e.IngestTimeout != 0 {
		cfg.Ingest.Timeout = e.IngestTimeout
	}
	if e.SQLitePath != "" {
		cfg.Repository.SQLitePath = e.SQLitePath
	}
	if e.PostgresHost != "" {
		cfg.Repository.PostgresHost = e.PostgresHost
	}
	if e.PostgresPort != 0 {
		cfg.Repository.PostgresPort = e.PostgresPort
	}
	if e.PostgresUser != "" {
		cfg.Repository.PostgresUser = e.PostgresUser
	}
	if e.PostgresPass != "" {
		cfg.Repository.PostgresPassword = e.PostgresPass
	}
	if e.PostgresDB != "" {
		cfg.Repository.PostgresDB = e.PostgresDB
	}
	if e.RedisAddr != "" {
		cfg.Cache.RedisAddr = e.RedisAddr
	}
	if e.RedisPassword != "" {
		cfg.Cache.RedisPassword = e.RedisPassword
	}
	if e.NATSUrl != "" {
		cfg.EventBus.NATSUrl = e.NATSUrl
	}
	if e.NATSToken != "" {
		cfg.EventBus.NATSToken = e.NATSToken
	}
	if e.LogLevel != "" {
		cfg.Logging.Level = e.LogLevel
	}
	if e.LogFormat != "" {
		cfg.Logging.Format = e.LogFormat
	}
	if e.TracingEnabled {
		cfg.Tracing.Enabled = true
	}
	if e.TracingEndpoint != "" {
		cfg.Tracing.Endpoint = e.TracingEndpoint
	}

	return cfg, nil
}
