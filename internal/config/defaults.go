package config

import "time"

// Default returns the configuration used when a field is absent from the file.
// The defaults run fully offline: fixtures fetcher, template generator,
// in-memory cache.
func Default() *Config {
	return &Config{
		Version: Version,
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Build: BuildConfig{
			MaxAttempts:       3,
			BestPolicy:        BestFewestViolations,
			StageTimeout:      60 * time.Second,
			FetchTimeout:      15 * time.Second,
			FetchRetries:      2,
			RetryBackoff:      RetryBackoffLinear,
			RetryInitialDelay: 500 * time.Millisecond,
			RetryMaxDelay:     10 * time.Second,
			Concurrency:       8,
		},
		Cache: CacheConfig{
			Backend:  CacheMemory,
			Capacity: 256,
			TTL:      24 * time.Hour,
			Redis:    RedisConfig{Addr: "localhost:6379", Prefix: "landingd:"},
		},
		Artifacts: ArtifactsConfig{Dir: "./artifacts", InlineThreshold: 8 << 10},
		Progress:  ProgressConfig{EventStore: "./landingd-events.db", SubjectPrefix: "landingd.progress"},
		Fetch:     FetchConfig{Mode: FetchFixtures, FixturesDir: "./fixtures"},
		Generate:  GenerateConfig{Mode: GenerateTemplate, Burst: 1},
		Quality:   QualityConfig{MaxInlineStyleRatio: 0.3},
		Janitor:   JanitorConfig{Interval: 10 * time.Minute, Retention: 24 * time.Hour},
		Logging:   LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}
}

// applyDefaults repairs values an explicit empty YAML field would have zeroed.
func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.Version == "" {
		cfg.Version = Version
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Build.BestPolicy == "" {
		cfg.Build.BestPolicy = d.Build.BestPolicy
	}
	if cfg.Build.RetryBackoff == "" {
		cfg.Build.RetryBackoff = d.Build.RetryBackoff
	}
	if cfg.Build.Concurrency <= 0 {
		cfg.Build.Concurrency = d.Build.Concurrency
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = d.Cache.Backend
	}
	if cfg.Progress.SubjectPrefix == "" {
		cfg.Progress.SubjectPrefix = d.Progress.SubjectPrefix
	}
	if cfg.Generate.RateLimit > 0 && cfg.Generate.Burst <= 0 {
		cfg.Generate.Burst = 1
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
}
