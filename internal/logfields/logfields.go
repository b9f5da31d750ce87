package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field names shared by the orchestrator, API and daemon.
const (
	KeySessionID  = "session_id"
	KeyBuildKey   = "build_key"
	KeyPhase      = "phase"
	KeyStage      = "stage"
	KeyAttempt    = "attempt"
	KeyViolations = "violations"
	KeyDegraded   = "degraded"
	KeyFailure    = "failure"
	KeyDurationMS = "duration_ms"
	KeyJob        = "job"
	KeyPath       = "path"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyComponent  = "component"
	KeyError      = "error"
)

func SessionID(id string) slog.Attr  { return slog.String(KeySessionID, id) }
func BuildKey(k string) slog.Attr    { return slog.String(KeyBuildKey, k) }
func Phase(p string) slog.Attr       { return slog.String(KeyPhase, p) }
func Stage(name string) slog.Attr    { return slog.String(KeyStage, name) }
func Attempt(n int) slog.Attr        { return slog.Int(KeyAttempt, n) }
func Violations(n int) slog.Attr     { return slog.Int(KeyViolations, n) }
func Degraded(d bool) slog.Attr      { return slog.Bool(KeyDegraded, d) }
func Failure(kind string) slog.Attr  { return slog.String(KeyFailure, kind) }
func Job(name string) slog.Attr      { return slog.String(KeyJob, name) }
func Path(p string) slog.Attr        { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr      { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr      { return slog.Int(KeyStatus, code) }
func Component(c string) slog.Attr   { return slog.String(KeyComponent, c) }

// Duration reports d in fractional milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d)/float64(time.Millisecond))
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
