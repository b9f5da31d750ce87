package config

import (
	"fmt"
	"slices"
	"strings"
)

// BestPolicy selects the candidate returned when a stage exhausts its attempts.
type BestPolicy string

const (
	BestFewestViolations BestPolicy = "fewest_violations" // ties go to the most recent
	BestFewestErrors     BestPolicy = "fewest_errors"     // blocking violations first, then total
	BestLatest           BestPolicy = "latest"
)

// CacheBackend selects the cache implementation.
type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheRedis  CacheBackend = "redis"
)

// FetchMode selects the data fetcher.
type FetchMode string

const (
	FetchHTTP     FetchMode = "http"
	FetchFixtures FetchMode = "fixtures"
)

// GenerateMode selects the stage generator.
type GenerateMode string

const (
	GenerateHTTP     GenerateMode = "http"
	GenerateTemplate GenerateMode = "template"
)

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// enum is a case-insensitive parser for one string enumeration.
type enum[T ~string] struct {
	name   string
	values []T
}

func (e enum[T]) parse(raw string) (T, bool) {
	s := T(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(e.values, s) {
		return s, true
	}
	var zero T
	return zero, false
}

func (e enum[T]) errorf(raw string) error {
	return fmt.Errorf("invalid %s %q (valid: %v)", e.name, raw, e.values)
}

var (
	bestPolicies  = enum[BestPolicy]{"build.best_policy", []BestPolicy{BestFewestViolations, BestFewestErrors, BestLatest}}
	cacheBackends = enum[CacheBackend]{"cache.backend", []CacheBackend{CacheMemory, CacheRedis}}
	fetchModes    = enum[FetchMode]{"fetch.mode", []FetchMode{FetchHTTP, FetchFixtures}}
	generateModes = enum[GenerateMode]{"generate.mode", []GenerateMode{GenerateHTTP, GenerateTemplate}}
	backoffModes  = enum[RetryBackoffMode]{"build.retry_backoff", []RetryBackoffMode{RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential}}
	logLevels     = enum[LogLevel]{"logging.level", []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError}}
	logFormats    = enum[LogFormat]{"logging.format", []LogFormat{LogFormatText, LogFormatJSON}}
)

// NormalizeRetryBackoff converts user input into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	m, _ := backoffModes.parse(raw)
	return m
}

// NormalizeLogLevel maps raw input to a level, defaulting to info.
func NormalizeLogLevel(raw string) LogLevel {
	if l, ok := logLevels.parse(raw); ok {
		return l
	}
	return LogLevelInfo
}

// NormalizeLogFormat maps raw input to a format, defaulting to text.
func NormalizeLogFormat(raw string) LogFormat {
	if f, ok := logFormats.parse(raw); ok {
		return f
	}
	return LogFormatText
}

// normalize case-folds enumerations in place and returns warnings for values it changed.
func normalize(cfg *Config) []string {
	var warnings []string
	fold := func(field string, raw *string) {
		if raw == nil || *raw == "" {
			return
		}
		if lowered := strings.ToLower(strings.TrimSpace(*raw)); lowered != *raw {
			warnings = append(warnings, fmt.Sprintf("normalized %s from '%s' to '%s'", field, *raw, lowered))
			*raw = lowered
		}
	}
	fold("build.best_policy", (*string)(&cfg.Build.BestPolicy))
	fold("build.retry_backoff", (*string)(&cfg.Build.RetryBackoff))
	fold("cache.backend", (*string)(&cfg.Cache.Backend))
	fold("fetch.mode", (*string)(&cfg.Fetch.Mode))
	fold("generate.mode", (*string)(&cfg.Generate.Mode))
	fold("logging.level", (*string)(&cfg.Logging.Level))
	fold("logging.format", (*string)(&cfg.Logging.Format))
	return warnings
}
