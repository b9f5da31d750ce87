package session

import (
	"slices"
	"time"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/quality"
)

// FailureKind is the caller-visible classification of a failed or degraded build.
type FailureKind string

const (
	FailureFetch               FailureKind = "fetch_error"
	FailureStageGeneration     FailureKind = "stage_generation_error"
	FailureValidationExhausted FailureKind = "validation_exhausted"
	FailureCriticalStage       FailureKind = "critical_stage_failed"
	FailureCancelled           FailureKind = "cancellation_requested"
)

// Failure records why a session reached ERROR. Message is always a
// translated, caller-safe text.
type Failure struct {
	Kind      FailureKind `json:"kind"`
	Stage     string      `json:"stage,omitempty"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
}

// StageReport summarizes one completed stage.
type StageReport struct {
	Name       string              `json:"name"`
	Phase      Phase               `json:"phase"`
	Attempts   int                 `json:"attempts"`
	Passed     bool                `json:"passed"`
	Degraded   bool                `json:"degraded"`
	Violations []quality.Violation `json:"violations,omitempty"`
}

// Session is one build attempt. Values handed out by Store are snapshots.
type Session struct {
	ID        string    `json:"session_id"`
	Key       string    `json:"key"`
	InputHash string    `json:"input_hash"`
	Phase     Phase     `json:"phase"`
	Progress  float64   `json:"progress"`
	Step      string    `json:"step,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Stage and Attempts track the stage currently running; Attempts resets
	// when a new stage begins.
	Stage    string        `json:"stage,omitempty"`
	Attempts int           `json:"attempts"`
	Stages   []StageReport `json:"stages,omitempty"`

	Degraded   bool                `json:"degraded"`
	Violations []quality.Violation `json:"violations,omitempty"`
	Failure    *Failure            `json:"failure,omitempty"`
	Restored   bool                `json:"restored,omitempty"`
}

// Clone returns a deep copy.
func (s *Session) Clone() Session {
	c := *s
	c.Stages = make([]StageReport, len(s.Stages))
	for i, r := range s.Stages {
		r.Violations = slices.Clone(r.Violations)
		c.Stages[i] = r
	}
	c.Violations = slices.Clone(s.Violations)
	if s.Failure != nil {
		f := *s.Failure
		c.Failure = &f
	}
	return c
}

// Transition moves the session to phase to, resetting progress.
func (s *Session) Transition(to Phase, now time.Time) error {
	if s.Phase.Terminal() {
		return ErrTerminal.WithContext("phase", string(s.Phase))
	}
	if !CanTransition(s.Phase, to) {
		return ErrIllegalTransition.WithContext("from", string(s.Phase)).WithContext("to", string(to))
	}
	s.Phase = to
	s.Progress = 0
	s.UpdatedAt = now
	return nil
}

// Fail moves the session to ERROR with f.
func (s *Session) Fail(f Failure, now time.Time) error {
	if err := s.Transition(PhaseError, now); err != nil {
		return err
	}
	s.Failure = &f
	s.Step = string(f.Kind)
	return nil
}

// SetProgress records progress within the current phase. Progress never
// decreases inside a phase and is clamped to [0,1].
func (s *Session) SetProgress(p float64, step string, now time.Time) {
	p = min(max(p, 0), 1)
	if p > s.Progress {
		s.Progress = p
	}
	if step != "" {
		s.Step = step
	}
	s.UpdatedAt = now
}

// BeginStage starts a new stage with a fresh attempt counter.
func (s *Session) BeginStage(name string, now time.Time) {
	s.Stage = name
	s.Attempts = 0
	s.UpdatedAt = now
}
