// Package config provides configuration management for the citation network service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "CITENET"

// Supported bibliographic backends.
const (
	ProviderPubMed   = "pubmed"
	ProviderOpenAlex = "openalex"
)

// MaxResolverBatchSize is the largest efetch batch accepted by configuration.
const MaxResolverBatchSize = 200

// Config holds all configuration for the citation network service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings for the collection store.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Provider names the bibliographic backend: "pubmed" or "openalex".
	Provider string `mapstructure:"provider"`
	// PubMed contains NCBI E-utilities client settings.
	PubMed PubMedConfig `mapstructure:"pubmed"`
	// OpenAlex contains OpenAlex client settings.
	OpenAlex OpenAlexConfig `mapstructure:"openalex"`
	// Resolver contains record hydration batching settings.
	Resolver ResolverConfig `mapstructure:"resolver"`
	// Discovery contains neighborhood discovery cascade settings.
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	// Cache contains lookup cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Network contains network assembly settings.
	Network NetworkConfig `mapstructure:"network"`
	// Ranking contains default ranking weights and caps.
	Ranking RankingConfig `mapstructure:"ranking"`
	// Embedding contains embedding provider settings used by the ranking enricher.
	Embedding EmbeddingConfig `mapstructure:"embedding"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Enabled turns on the PostgreSQL collection store. Without it the
	// collection endpoints answer 503 and networks are built from sources only.
	Enabled bool `mapstructure:"enabled"`
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (loaded from CITENET_DATABASE_PASSWORD).
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 2).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// PubMedConfig holds NCBI E-utilities settings.
type PubMedConfig struct {
	// BaseURL is the E-utilities base URL.
	BaseURL string `mapstructure:"base_url"`
	// APIKey is the NCBI API key (loaded from CITENET_PUBMED_API_KEY).
	APIKey string `mapstructure:"-"`
	// Tool is the tool name reported to NCBI.
	Tool string `mapstructure:"tool"`
	// Email is the contact address reported to NCBI.
	Email string `mapstructure:"email"`
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second; 0 picks 3, or 10 with an API key.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxRetries bounds retries on 429 and 5xx responses.
	MaxRetries int `mapstructure:"max_retries"`
}

// OpenAlexConfig holds OpenAlex API settings.
type OpenAlexConfig struct {
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Email joins the polite pool when set.
	Email string `mapstructure:"email"`
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxRetries bounds retries on 429 and 5xx responses.
	MaxRetries int `mapstructure:"max_retries"`
}

// ResolverConfig holds record hydration settings.
type ResolverConfig struct {
	// BatchSize is the number of identifiers per efetch call (max 200).
	BatchSize int `mapstructure:"batch_size"`
	// MaxConcurrentBatches bounds in-flight efetch calls per Resolve.
	MaxConcurrentBatches int `mapstructure:"max_concurrent_batches"`
	// BatchTimeout bounds each efetch call.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// DiscoveryConfig holds discovery cascade settings.
type DiscoveryConfig struct {
	// OverFetchFactor multiplies the requested limit for raw identifier requests.
	OverFetchFactor int `mapstructure:"over_fetch_factor"`
	// StepTimeout bounds each cascade step.
	StepTimeout time.Duration `mapstructure:"step_timeout"`
	// PlaceholderCount is the number of synthesized fallback records.
	PlaceholderCount int `mapstructure:"placeholder_count"`
	// LexiconPath optionally points at a YAML lexicon replacing the built-in one.
	LexiconPath string `mapstructure:"lexicon_path"`
	// DefaultLimit applies when a caller passes no limit.
	DefaultLimit int `mapstructure:"default_limit"`
	// MaxLimit caps caller-supplied limits.
	MaxLimit int `mapstructure:"max_limit"`
	// BatchConcurrency bounds concurrent lookups in batch discovery.
	BatchConcurrency int `mapstructure:"batch_concurrency"`
}

// CacheConfig holds lookup cache settings shared by the record and
// related-paper caches.
type CacheConfig struct {
	// DefaultTTL is the lifetime of an entry stored without explicit TTL.
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	// MaxEntries bounds the entry count per cache.
	MaxEntries int `mapstructure:"max_entries"`
	// MaxBytes is the soft payload budget per cache.
	MaxBytes int64 `mapstructure:"max_bytes"`
	// SweepInterval is the period of the expired-entry sweep.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// SnapshotInterval is the period of the persistence snapshot.
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	// SnapshotSize is the number of most recently used entries persisted.
	SnapshotSize int `mapstructure:"snapshot_size"`
	// SnapshotPath is the SQLite file for snapshots; empty disables persistence.
	SnapshotPath string `mapstructure:"snapshot_path"`
}

// NetworkConfig holds network assembly settings.
type NetworkConfig struct {
	// DefaultLimit is the per-source neighbor limit when the request omits one.
	DefaultLimit int `mapstructure:"default_limit"`
	// MaxSources caps the number of source papers per build.
	MaxSources int `mapstructure:"max_sources"`
	// Concurrency bounds concurrent discovery calls during a build.
	Concurrency int `mapstructure:"concurrency"`
	// DropDangling removes edges with a missing endpoint before validation.
	DropDangling bool `mapstructure:"drop_dangling"`
}

// RankingConfig holds default ranking weights and normalization caps.
type RankingConfig struct {
	ContentWeight       float64 `mapstructure:"content_weight"`
	CollaborativeWeight float64 `mapstructure:"collaborative_weight"`
	TemporalWeight      float64 `mapstructure:"temporal_weight"`
	// CitationCap, VenueCap and HIndexCap normalize the collaborative signals.
	CitationCap float64 `mapstructure:"citation_cap"`
	VenueCap    float64 `mapstructure:"venue_cap"`
	HIndexCap   float64 `mapstructure:"h_index_cap"`
	// HalfLifeYears is the temporal decay half-life.
	HalfLifeYears float64 `mapstructure:"half_life_years"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Enabled turns on embedding enrichment before ranking.
	Enabled bool `mapstructure:"enabled"`
	// Provider selects the backend (openai).
	Provider string `mapstructure:"provider"`
	// Model is the embedding model name.
	Model string `mapstructure:"model"`
	// Dimensions is the embedding length reported by the model.
	Dimensions int `mapstructure:"dimensions"`
	// Timeout bounds each embedding call.
	Timeout time.Duration `mapstructure:"timeout"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (loaded from CITENET_EMBEDDING_OPENAI_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// BaseURL is the OpenAI API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/citation-network-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv(EnvPrefix + "_DATABASE_PASSWORD")
	cfg.PubMed.APIKey = os.Getenv(EnvPrefix + "_PUBMED_API_KEY")
	cfg.Embedding.OpenAI.APIKey = os.Getenv(EnvPrefix + "_EMBEDDING_OPENAI_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "citenet")
	v.SetDefault("database.name", "citation_network_service")
	// Default to "require" for production security. Use CITENET_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "citenet")

	v.SetDefault("provider", ProviderPubMed)

	// PubMed defaults. API key is loaded exclusively from the environment.
	v.SetDefault("pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pubmed.tool", "citation-network-service")
	v.SetDefault("pubmed.email", "")
	v.SetDefault("pubmed.timeout", "15s")
	v.SetDefault("pubmed.rate_limit", 0.0)
	v.SetDefault("pubmed.max_retries", 2)

	// OpenAlex defaults
	v.SetDefault("openalex.base_url", "https://api.openalex.org")
	v.SetDefault("openalex.email", "")
	v.SetDefault("openalex.timeout", "30s")
	v.SetDefault("openalex.rate_limit", 10.0)
	v.SetDefault("openalex.max_retries", 2)

	// Resolver defaults
	v.SetDefault("resolver.batch_size", 20)
	v.SetDefault("resolver.max_concurrent_batches", 3)
	v.SetDefault("resolver.batch_timeout", "15s")

	// Discovery defaults
	v.SetDefault("discovery.over_fetch_factor", 3)
	v.SetDefault("discovery.step_timeout", "20s")
	v.SetDefault("discovery.placeholder_count", 3)
	v.SetDefault("discovery.lexicon_path", "")
	v.SetDefault("discovery.default_limit", 20)
	v.SetDefault("discovery.max_limit", 100)
	v.SetDefault("discovery.batch_concurrency", 4)

	// Cache defaults
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.max_entries", 200)
	v.SetDefault("cache.max_bytes", 8<<20)
	v.SetDefault("cache.sweep_interval", "5m")
	v.SetDefault("cache.snapshot_interval", "10m")
	v.SetDefault("cache.snapshot_size", 100)
	v.SetDefault("cache.snapshot_path", "")

	// Network defaults
	v.SetDefault("network.default_limit", 20)
	v.SetDefault("network.max_sources", 25)
	v.SetDefault("network.concurrency", 4)
	v.SetDefault("network.drop_dangling", false)

	// Ranking defaults
	v.SetDefault("ranking.content_weight", 0.4)
	v.SetDefault("ranking.collaborative_weight", 0.3)
	v.SetDefault("ranking.temporal_weight", 0.2)
	v.SetDefault("ranking.citation_cap", 100.0)
	v.SetDefault("ranking.venue_cap", 10.0)
	v.SetDefault("ranking.h_index_cap", 50.0)
	v.SetDefault("ranking.half_life_years", 8.0)

	// Embedding defaults. API key is loaded exclusively from the environment.
	v.SetDefault("embedding.enabled", false)
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.openai.base_url", "https://api.openai.com/v1")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate database config
	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate provider config
	switch strings.ToLower(c.Provider) {
	case ProviderPubMed:
		if c.PubMed.BaseURL == "" {
			return fmt.Errorf("pubmed base_url is required")
		}
		if c.PubMed.RateLimit < 0 {
			return fmt.Errorf("pubmed rate_limit must not be negative")
		}
	case ProviderOpenAlex:
		if c.OpenAlex.BaseURL == "" {
			return fmt.Errorf("openalex base_url is required")
		}
		if c.OpenAlex.RateLimit < 0 {
			return fmt.Errorf("openalex rate_limit must not be negative")
		}
	default:
		return fmt.Errorf("invalid provider: %q (must be %s or %s)", c.Provider, ProviderPubMed, ProviderOpenAlex)
	}

	// Validate resolver config
	if c.Resolver.BatchSize <= 0 || c.Resolver.BatchSize > MaxResolverBatchSize {
		return fmt.Errorf("resolver batch_size must be between 1 and %d", MaxResolverBatchSize)
	}
	if c.Resolver.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("resolver max_concurrent_batches must be positive")
	}
	if c.Resolver.BatchTimeout <= 0 {
		return fmt.Errorf("resolver batch_timeout must be positive")
	}

	// Validate discovery config
	if c.Discovery.OverFetchFactor < 1 {
		return fmt.Errorf("discovery over_fetch_factor must be at least 1")
	}
	if c.Discovery.StepTimeout <= 0 {
		return fmt.Errorf("discovery step_timeout must be positive")
	}
	if c.Discovery.PlaceholderCount < 0 {
		return fmt.Errorf("discovery placeholder_count must not be negative")
	}
	if c.Discovery.MaxLimit < c.Discovery.DefaultLimit {
		return fmt.Errorf("discovery max_limit (%d) must be >= default_limit (%d)", c.Discovery.MaxLimit, c.Discovery.DefaultLimit)
	}

	// Validate cache config
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be positive")
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache default_ttl must be positive")
	}
	if c.Cache.SnapshotSize < 0 {
		return fmt.Errorf("cache snapshot_size must not be negative")
	}

	// Validate ranking config
	if c.Ranking.ContentWeight < 0 || c.Ranking.CollaborativeWeight < 0 || c.Ranking.TemporalWeight < 0 {
		return fmt.Errorf("ranking weights must not be negative")
	}
	if c.Ranking.HalfLifeYears <= 0 {
		return fmt.Errorf("ranking half_life_years must be positive")
	}
	if c.Ranking.CitationCap <= 0 || c.Ranking.VenueCap <= 0 || c.Ranking.HIndexCap <= 0 {
		return fmt.Errorf("ranking caps must be positive")
	}

	// The configured embedding provider needs its API key.
	if c.Embedding.Enabled {
		switch strings.ToLower(c.Embedding.Provider) {
		case "openai":
			if c.Embedding.OpenAI.APIKey == "" {
				return fmt.Errorf("embedding provider %q requires %s_EMBEDDING_OPENAI_API_KEY to be set", c.Embedding.Provider, EnvPrefix)
			}
		default:
			return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
		}
	}

	return nil
}
