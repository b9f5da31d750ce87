package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if _, ok := bestPolicies.parse(string(c.Build.BestPolicy)); !ok {
		errs = append(errs, bestPolicies.errorf(string(c.Build.BestPolicy)))
	}
	if _, ok := backoffModes.parse(string(c.Build.RetryBackoff)); !ok {
		errs = append(errs, backoffModes.errorf(string(c.Build.RetryBackoff)))
	}
	check(c.Build.MaxAttempts >= 1, "build.max_attempts must be >= 1, got %d", c.Build.MaxAttempts)
	check(c.Build.StageTimeout > 0, "build.stage_timeout must be > 0")
	check(c.Build.FetchTimeout > 0, "build.fetch_timeout must be > 0")
	check(c.Build.FetchRetries >= 0, "build.fetch_retries cannot be negative")
	check(c.Build.RetryInitialDelay > 0 && c.Build.RetryMaxDelay > 0, "build retry delays must be > 0")
	for _, name := range c.Build.CriticalStages {
		check(name != "", "build.critical_stages contains an empty name")
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		check(c.Cache.Redis.Addr != "", "cache.redis.addr is required for the redis backend")
	default:
		errs = append(errs, cacheBackends.errorf(string(c.Cache.Backend)))
	}
	check(c.Cache.Capacity >= 1, "cache.capacity must be >= 1, got %d", c.Cache.Capacity)
	check(c.Cache.TTL > 0, "cache.ttl must be > 0")

	check(c.Artifacts.Dir != "", "artifacts.dir is required")
	check(c.Artifacts.InlineThreshold >= 0, "artifacts.inline_threshold cannot be negative")

	switch c.Fetch.Mode {
	case FetchHTTP:
		check(c.Fetch.BaseURL != "", "fetch.base_url is required for the http fetcher")
	case FetchFixtures:
		check(c.Fetch.FixturesDir != "", "fetch.fixtures_dir is required for the fixtures fetcher")
	default:
		errs = append(errs, fetchModes.errorf(string(c.Fetch.Mode)))
	}

	switch c.Generate.Mode {
	case GenerateHTTP:
		check(c.Generate.Endpoint != "", "generate.endpoint is required for the http generator")
	case GenerateTemplate:
		check(c.Quality.RequiredCDN == "" || strings.HasPrefix(c.Generate.Stylesheet, c.Quality.RequiredCDN),
			"generate.stylesheet must start with quality.required_cdn (%s)", c.Quality.RequiredCDN)
	default:
		errs = append(errs, generateModes.errorf(string(c.Generate.Mode)))
	}
	check(c.Generate.RateLimit >= 0, "generate.rate_limit cannot be negative")

	check(c.Quality.MaxInlineStyleRatio > 0 && c.Quality.MaxInlineStyleRatio <= 1,
		"quality.max_inline_style_ratio must be in (0,1], got %v", c.Quality.MaxInlineStyleRatio)
	check(c.Janitor.Interval > 0, "janitor.interval must be > 0")
	check(c.Janitor.Retention > 0, "janitor.retention must be > 0")

	if _, ok := logLevels.parse(string(c.Logging.Level)); !ok {
		errs = append(errs, logLevels.errorf(string(c.Logging.Level)))
	}
	if _, ok := logFormats.parse(string(c.Logging.Format)); !ok {
		errs = append(errs, logFormats.errorf(string(c.Logging.Format)))
	}
	return errors.Join(errs...)
}

// IsCritical reports whether a stage was marked critical in the configuration.
func (b BuildConfig) IsCritical(stage string) bool {
	return slices.Contains(b.CriticalStages, stage)
}
