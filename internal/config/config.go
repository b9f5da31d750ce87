package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the only configuration format version landingd understands.
const Version = "1.0"

// Config is the landingd configuration file.
type Config struct {
	Version   string          `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Build     BuildConfig     `yaml:"build"`
	Cache     CacheConfig     `yaml:"cache"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Progress  ProgressConfig  `yaml:"progress"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Generate  GenerateConfig  `yaml:"generate"`
	Quality   QualityConfig   `yaml:"quality"`
	Janitor   JanitorConfig   `yaml:"janitor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // 0 disables; SSE streams are long lived
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BuildConfig controls the orchestrator and the per-stage retry loop.
type BuildConfig struct {
	MaxAttempts       int              `yaml:"max_attempts"` // generation calls per stage (1 initial + repairs)
	BestPolicy        BestPolicy       `yaml:"best_policy"`
	StageTimeout      time.Duration    `yaml:"stage_timeout"` // deadline per generation/repair call
	FetchTimeout      time.Duration    `yaml:"fetch_timeout"`
	FetchRetries      int              `yaml:"fetch_retries"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff"`
	RetryInitialDelay time.Duration    `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration    `yaml:"retry_max_delay"`
	Concurrency       int              `yaml:"concurrency"` // builds running at once
	CriticalStages    []string         `yaml:"critical_stages,omitempty"`
}

// CacheConfig selects and sizes the content addressable cache.
type CacheConfig struct {
	Backend  CacheBackend  `yaml:"backend"`
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
	Redis    RedisConfig   `yaml:"redis"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ArtifactsConfig configures bundle storage and read-time inlining.
type ArtifactsConfig struct {
	Dir             string `yaml:"dir"`
	InlineThreshold int64  `yaml:"inline_threshold"` // bytes; secondary files smaller than this are embedded
}

// ProgressConfig configures progress event persistence and mirroring.
type ProgressConfig struct {
	EventStore    string `yaml:"event_store"` // sqlite path, ":memory:" or empty to disable
	NATSURL       string `yaml:"nats_url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// FetchConfig selects the data fetcher.
type FetchConfig struct {
	Mode        FetchMode `yaml:"mode"`
	BaseURL     string    `yaml:"base_url,omitempty"`
	APIKey      string    `yaml:"api_key,omitempty"`
	FixturesDir string    `yaml:"fixtures_dir,omitempty"`
}

// GenerateConfig selects the stage generator.
type GenerateConfig struct {
	Mode      GenerateMode `yaml:"mode"`
	Endpoint  string       `yaml:"endpoint,omitempty"`
	APIKey    string       `yaml:"api_key,omitempty"`
	RateLimit float64      `yaml:"rate_limit"` // calls per second, 0 = unlimited
	Burst     int          `yaml:"burst"`
	// Stylesheet is linked by the template generator; it should live under
	// quality.required_cdn when that is set.
	Stylesheet string `yaml:"stylesheet,omitempty"`
}

// QualityConfig tunes the default HTML rule set.
type QualityConfig struct {
	RequiredCDN         string  `yaml:"required_cdn,omitempty"`
	MaxInlineStyleRatio float64 `yaml:"max_inline_style_ratio"`
}

// JanitorConfig schedules cleanup of expired cache entries and old sessions.
type JanitorConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Retention time.Duration `yaml:"retention"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads, expands, normalizes, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from raw YAML on top of Default(). Environment
// variables are expanded before decoding.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Version != "" && cfg.Version != Version {
		return nil, fmt.Errorf("unsupported configuration version: %s (expected %s)", cfg.Version, Version)
	}
	for _, w := range normalize(cfg) {
		fmt.Fprintf(os.Stderr, "config normalization: %s\n", w)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Default()
	example.Fetch = FetchConfig{Mode: FetchHTTP, BaseURL: "https://places.example.com/v1", APIKey: "${PLACES_API_KEY}"}
	example.Generate = GenerateConfig{Mode: GenerateHTTP, Endpoint: "https://generator.example.com/v1/stages", APIKey: "${GENERATOR_API_KEY}", RateLimit: 2, Burst: 4}
	example.Progress.NATSURL = "nats://localhost:4222"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
