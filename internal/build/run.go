package build

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/fetch"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/logfields"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/metrics"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/quality"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/session"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/stage"
)

// commitStage names the artifact commit in failures.
const commitStage = "commit"

// execute runs one build to a terminal phase.
func (o *Orchestrator) execute(r *run, hash string, input map[string]any, settings Settings) {
	defer o.wg.Done()
	defer o.release(r)
	o.recorder.SetActiveBuilds(int(o.active.Add(1)))
	defer func() { o.recorder.SetActiveBuilds(int(o.active.Add(-1))) }()

	ctx := o.ctx
	logger := o.logger.With(logfields.SessionID(r.id), logfields.BuildKey(r.key))

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.fail(r, classify(CancellationRequested, "", err))
		return
	}
	defer o.sem.Release(1)

	start := o.clock.Now()
	if err := o.advance(r, session.PhaseFetching, "fetching business data"); err != nil {
		return
	}

	fetched, err := o.fetch(ctx, r.key, input, settings)
	if err != nil {
		logger.Warn("fetch failed", logfields.Error(err))
		if o.ctx.Err() != nil {
			o.fail(r, classify(CancellationRequested, "", err))
			o.recorder.IncBuildOutcome(metrics.BuildOutcomeCanceled)
			return
		}
		o.fail(r, classify(FetchError, "", err))
		o.recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
		return
	}
	if o.isCancelled(r) {
		return
	}

	in := stage.Input{
		SessionID: r.id,
		Key:       r.key,
		Data:      fetch.Merge(fetched, input),
		Prior:     make(map[string]artifact.Files, len(o.deps.Stages)),
	}
	opts := stage.Options{
		MaxAttempts: settings.MaxAttempts,
		Best:        settings.BestPolicy,
		CallTimeout: settings.StageTimeout,
		Backoff:     settings.Backoff,
		Clock:       o.clock,
	}

	var (
		final      artifact.Files
		degraded   bool
		violations []quality.Violation
	)
	for _, st := range o.deps.Stages {
		if err := o.advanceTo(r, st.Phase); err != nil {
			return
		}
		out, err := o.runStage(ctx, r, st, in, opts)
		if err != nil {
			o.stageFailed(r, st, err, logger)
			return
		}
		if out.Degraded {
			logger.Warn("stage degraded",
				logfields.Stage(st.Name),
				logfields.Attempt(out.Attempts),
				logfields.Violations(out.Result.Count()))
			if st.Critical {
				o.fail(r, classify(CriticalStageFailed, st.Name, nil))
				o.recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
				return
			}
			degraded = true
			violations = append(violations, out.Result.Violations...)
		}
		in.Prior[st.Name] = out.Candidate
		final = out.Candidate
	}

	if err := o.advanceTo(r, session.PhaseQA); err != nil {
		return
	}
	if err := o.commit(ctx, r, hash, final, degraded, violations, settings); err != nil {
		if stderrors.Is(err, errCancelled) {
			logger.Debug("build cancelled before commit")
			return
		}
		logger.Error("commit failed", logfields.Error(err))
		return
	}

	d := o.clock.Since(start)
	o.recorder.ObserveBuildDuration(d)
	outcome := metrics.BuildOutcomeReady
	if degraded {
		outcome = metrics.BuildOutcomeDegraded
	}
	o.recorder.IncBuildOutcome(outcome)
	logger.Info("build ready", logfields.Degraded(degraded), logfields.Duration(d))
}

// release drops the build from the in-flight tables.
func (o *Orchestrator) release(r *run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[r.key] == r.id {
		delete(o.inflight, r.key)
	}
	delete(o.runs, r.id)
}

// fetch calls the fetcher with a per-call deadline, retrying retryable
// failures with the fetch policy.
func (o *Orchestrator) fetch(ctx context.Context, key string, input map[string]any, settings Settings) (map[string]any, error) {
	var (
		record map[string]any
		calls  int
	)
	err := settings.FetchRetry.Do(ctx, o.clock, errors.IsRetryable, func(ctx context.Context) error {
		if calls++; calls > 1 {
			o.recorder.IncFetchRetry()
		}
		if settings.FetchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, settings.FetchTimeout)
			defer cancel()
		}
		var err error
		record, err = o.deps.Fetcher.Fetch(ctx, key, input)
		return err
	})
	return record, err
}

// runStage drives one stage through the validate and repair loop, reporting
// attempts and validation results as progress.
func (o *Orchestrator) runStage(ctx context.Context, r *run, st stage.Stage, in stage.Input, opts stage.Options) (stage.Outcome, error) {
	started := o.clock.Now()
	if _, err := o.emit(r, func(s *session.Session, now time.Time) error {
		s.BeginStage(st.Name, now)
		s.SetProgress(0, st.Name, now)
		return nil
	}, st.Name, "stage started"); err != nil {
		return stage.Outcome{}, err
	}

	maxAttempts := max(opts.MaxAttempts, 1)
	hooks := stage.Hooks{
		BeforeCall: func(attempt int, repair bool) error {
			o.recorder.IncGenerationCall(st.Name, repair)
			detail := fmt.Sprintf("attempt %d of %d", attempt, maxAttempts)
			if repair {
				detail += " (repair)"
			}
			_, err := o.emit(r, func(s *session.Session, now time.Time) error {
				s.Attempts = attempt
				s.SetProgress(float64(attempt-1)/float64(maxAttempts), st.Name, now)
				return nil
			}, st.Name, detail)
			return err
		},
		AfterCall: func(int, error) error {
			if o.isCancelled(r) {
				return errCancelled
			}
			return nil
		},
		Validated: func(attempt int, res quality.Result) {
			detail := "passed"
			if !res.Passed {
				detail = fmt.Sprintf("%d violations", res.Count())
			}
			_, _ = o.emit(r, func(s *session.Session, now time.Time) error {
				s.SetProgress(float64(attempt)/float64(maxAttempts), st.Name, now)
				return nil
			}, st.Name, detail)
		},
	}
	out, err := stage.Run(ctx, o.deps.Generator, st, in, opts, hooks)
	o.recorder.ObserveStageDuration(st.Name, o.clock.Since(started))
	if err != nil {
		return out, err
	}

	result := metrics.ResultPassed
	step := st.Name + " passed"
	if out.Degraded {
		result = metrics.ResultDegraded
		step = string(ValidationExhausted)
	}
	o.recorder.IncStageResult(st.Name, result)
	report := session.StageReport{
		Name:       st.Name,
		Phase:      st.Phase,
		Attempts:   out.Attempts,
		Passed:     out.Passed,
		Degraded:   out.Degraded,
		Violations: out.Result.Violations,
	}
	_, err = o.emit(r, func(s *session.Session, now time.Time) error {
		s.Stages = append(s.Stages, report)
		s.SetProgress(1, st.Name, now)
		return nil
	}, step, fmt.Sprintf("%s after %d attempts", st.Name, out.Attempts))
	return out, err
}

// stageFailed records a stage that stopped without an outcome.
func (o *Orchestrator) stageFailed(r *run, st stage.Stage, err error, logger *slog.Logger) {
	var genErr *stage.GenerationError
	switch {
	case stderrors.Is(err, errCancelled):
		return
	case stderrors.As(err, &genErr):
		logger.Warn("stage generation failed", logfields.Stage(st.Name), logfields.Error(err))
		o.fail(r, classify(StageGenerationError, st.Name, err))
		o.recorder.IncStageResult(st.Name, metrics.ResultFailed)
		o.recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
	case o.ctx.Err() != nil:
		o.fail(r, classify(CancellationRequested, st.Name, err))
		o.recorder.IncStageResult(st.Name, metrics.ResultCanceled)
		o.recorder.IncBuildOutcome(metrics.BuildOutcomeCanceled)
	default:
		// Session updates fail only once the build is terminal.
		logger.Warn("stage stopped", logfields.Stage(st.Name), logfields.Error(err))
	}
}

// commit stores the bundle, caches the session id and moves to READY.
// Cancel is refused from here on.
func (o *Orchestrator) commit(ctx context.Context, r *run, hash string, files artifact.Files, degraded bool, violations []quality.Violation, settings Settings) error {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return errCancelled
	}
	r.committing = true
	r.mu.Unlock()

	b := artifact.Bundle{SessionID: r.id, Files: files, CreatedAt: o.clock.Now()}
	if err := o.deps.Artifacts.Save(ctx, b); err != nil {
		o.fail(r, classify(CriticalStageFailed, commitStage, err))
		o.recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
		return err
	}
	if err := o.deps.Cache.Put(ctx, r.key, hash, r.id, settings.CacheTTL); err != nil {
		o.logger.Warn("cache put failed", logfields.SessionID(r.id), logfields.Error(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sess, err := o.deps.Sessions.Update(r.id, func(s *session.Session, now time.Time) error {
		if err := s.Transition(session.PhaseReady, now); err != nil {
			return err
		}
		s.Progress = 1
		s.Step = "ready"
		s.Degraded = degraded
		s.Violations = violations
		return nil
	})
	if err != nil {
		return err
	}
	o.publishTerminal(sess)
	return nil
}

// advanceTo walks the session forward one phase at a time until it reaches
// target. Phases without stages are entered and left immediately.
func (o *Orchestrator) advanceTo(r *run, target session.Phase) error {
	for {
		sess, ok := o.deps.Sessions.Get(r.id)
		if !ok {
			return ErrNotFound
		}
		if sess.Phase == target {
			return nil
		}
		next, ok := sess.Phase.Next()
		if !ok || !next.Before(target) && next != target {
			return session.ErrIllegalTransition.WithContext("from", string(sess.Phase)).WithContext("to", string(target))
		}
		if err := o.advance(r, next, ""); err != nil {
			return err
		}
	}
}

// advance moves the session to phase and publishes the change.
func (o *Orchestrator) advance(r *run, phase session.Phase, step string) error {
	if step == "" {
		step = "entered " + string(phase)
	}
	_, err := o.emit(r, func(s *session.Session, now time.Time) error {
		return s.Transition(phase, now)
	}, step, "")
	if err == nil {
		o.logger.Debug("phase changed", logfields.SessionID(r.id), logfields.Phase(string(phase)))
	}
	return err
}

// emit applies fn to the session and publishes the resulting snapshot,
// unless the build was cancelled.
func (o *Orchestrator) emit(r *run, fn func(*session.Session, time.Time) error, step, detail string) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return session.Session{}, errCancelled
	}
	sess, err := o.deps.Sessions.Update(r.id, fn)
	if err != nil {
		return sess, err
	}
	o.publish(sess, step, detail)
	return sess, nil
}

// fail moves the session to ERROR with f unless it is already terminal.
func (o *Orchestrator) fail(r *run, f session.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return
	}
	sess, err := o.deps.Sessions.Update(r.id, func(s *session.Session, now time.Time) error {
		return s.Fail(f, now)
	})
	if err != nil {
		return
	}
	o.publishTerminal(sess)
	o.logger.Info("build failed",
		logfields.SessionID(r.id),
		logfields.Failure(string(f.Kind)),
		logfields.Stage(f.Stage))
}

func (o *Orchestrator) isCancelled(r *run) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}
