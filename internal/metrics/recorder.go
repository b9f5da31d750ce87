package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultPassed   ResultLabel = "passed"
	ResultDegraded ResultLabel = "degraded"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// BuildOutcomeLabel enumerates terminal build outcomes.
type BuildOutcomeLabel string

const (
	BuildOutcomeReady    BuildOutcomeLabel = "ready"
	BuildOutcomeDegraded BuildOutcomeLabel = "degraded"
	BuildOutcomeFailed   BuildOutcomeLabel = "failed"
	BuildOutcomeCanceled BuildOutcomeLabel = "canceled"
	BuildOutcomeCached   BuildOutcomeLabel = "cached"
)

// Recorder defines observability hooks for build and stage metrics.
// Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(outcome BuildOutcomeLabel)
	IncGenerationCall(stage string, repair bool)
	IncCacheLookup(hit bool)
	IncFetchRetry()
	SetActiveBuilds(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncBuildOutcome(BuildOutcomeLabel)          {}
func (NoopRecorder) IncGenerationCall(string, bool)             {}
func (NoopRecorder) IncCacheLookup(bool)                        {}
func (NoopRecorder) IncFetchRetry()                             {}
func (NoopRecorder) SetActiveBuilds(int)                        {}
