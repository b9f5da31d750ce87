package build

import (
	"time"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/config"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/retry"
)

// Settings are the tunables of the orchestrator. A build reads them once
// when it starts; changes apply to later builds.
type Settings struct {
	MaxAttempts  int
	BestPolicy   config.BestPolicy
	StageTimeout time.Duration
	FetchTimeout time.Duration
	// FetchRetry governs retries of retryable fetch errors.
	FetchRetry retry.Policy
	// Backoff spaces generation calls after a failed call.
	Backoff     retry.Policy
	Concurrency int
	CacheTTL    time.Duration
}

// DefaultSettings mirrors config.Default().
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Default())
}

// SettingsFromConfig derives orchestrator settings from configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	policy := retry.FromConfig(cfg.Build)
	return Settings{
		MaxAttempts:  cfg.Build.MaxAttempts,
		BestPolicy:   cfg.Build.BestPolicy,
		StageTimeout: cfg.Build.StageTimeout,
		FetchTimeout: cfg.Build.FetchTimeout,
		FetchRetry:   policy,
		Backoff:      policy,
		Concurrency:  cfg.Build.Concurrency,
		CacheTTL:     cfg.Cache.TTL,
	}
}
