package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/config"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/quality"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/retry"
)

// Options bounds one run of the loop.
type Options struct {
	// MaxAttempts caps generate plus repair calls. Values below 1 mean 1.
	MaxAttempts int
	Best        config.BestPolicy
	// CallTimeout bounds each generation call; zero disables the deadline.
	CallTimeout time.Duration
	// Backoff spaces calls after a failed one.
	Backoff retry.Policy
	Clock   clockwork.Clock
}

// OptionsFromConfig derives loop options from build settings.
func OptionsFromConfig(b config.BuildConfig, clock clockwork.Clock) Options {
	return Options{
		MaxAttempts: b.MaxAttempts,
		Best:        b.BestPolicy,
		CallTimeout: b.StageTimeout,
		Backoff:     retry.FromConfig(b),
		Clock:       clock,
	}
}

// Hooks observe the loop. Every field is optional.
type Hooks struct {
	// BeforeCall runs before each generation call. A non-nil error stops the
	// loop and is returned as is.
	BeforeCall func(attempt int, repair bool) error
	// AfterCall runs as soon as a call returns, before its result is used.
	// A non-nil error discards the result and stops the loop.
	AfterCall func(attempt int, callErr error) error
	// Validated runs after each candidate has been checked by the gate.
	Validated func(attempt int, res quality.Result)
}

// Outcome is the accepted candidate of a stage.
type Outcome struct {
	Candidate artifact.Files
	Result    quality.Result
	// Attempts is the number of generation calls made.
	Attempts int
	Passed   bool
	// Degraded is set when no candidate passed and the best one was kept.
	Degraded bool
}

// GenerationError reports a stage that never produced a usable candidate.
type GenerationError struct {
	Stage    string
	Attempts int
	Err      error // last call error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("stage %s: no candidate after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

var errEmptyCandidate = errors.New("generator returned an empty candidate")

type candidate struct {
	files   artifact.Files
	result  quality.Result
	attempt int
}

// Run drives st through generate, validate and repair. It returns a
// *GenerationError when every call failed, the error of a hook that stopped
// the loop, or ctx.Err() when ctx ends.
func Run(ctx context.Context, gen Generator, st Stage, in Input, opts Options, hooks Hooks) (Outcome, error) {
	maxAttempts := max(opts.MaxAttempts, 1)
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	in.Stage = st.Name

	var (
		best, last *candidate
		lastErr    error
		failures   int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		repair := last != nil
		if hooks.BeforeCall != nil {
			if err := hooks.BeforeCall(attempt, repair); err != nil {
				return Outcome{}, err
			}
		}

		files, err := call(ctx, gen, in, last, opts.CallTimeout)
		if hooks.AfterCall != nil {
			if herr := hooks.AfterCall(attempt, err); herr != nil {
				return Outcome{}, herr
			}
		}
		if err == nil && len(files) == 0 {
			err = errEmptyCandidate
		}
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			lastErr = err
			failures++
			if attempt < maxAttempts {
				if werr := opts.Backoff.Wait(ctx, clock, failures); werr != nil {
					return Outcome{}, werr
				}
			}
			continue
		}
		failures = 0

		if st.Gate == nil {
			return Outcome{Candidate: files, Result: quality.NewResult(nil), Attempts: attempt, Passed: true}, nil
		}
		res := st.Gate.Validate(files)
		if hooks.Validated != nil {
			hooks.Validated(attempt, res)
		}
		c := &candidate{files: files, result: res, attempt: attempt}
		last = c
		if best == nil || replaces(opts.Best, best.result, res) {
			best = c
		}
		if res.Passed {
			return Outcome{Candidate: files, Result: res, Attempts: attempt, Passed: true}, nil
		}
	}

	if best == nil {
		return Outcome{}, &GenerationError{Stage: st.Name, Attempts: maxAttempts, Err: lastErr}
	}
	return Outcome{Candidate: best.files, Result: best.result, Attempts: maxAttempts, Degraded: true}, nil
}

// replaces reports whether next takes over from prev as the best candidate.
// Ties always go to next, the more recent attempt.
func replaces(policy config.BestPolicy, prev, next quality.Result) bool {
	switch policy {
	case config.BestLatest:
		return true
	case config.BestFewestErrors:
		return !prev.Better(next)
	default:
		return next.Count() <= prev.Count()
	}
}

func call(ctx context.Context, gen Generator, in Input, last *candidate, timeout time.Duration) (artifact.Files, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if last == nil {
		return gen.Generate(ctx, in)
	}
	return gen.Repair(ctx, in, last.files.Clone(), quality.FixInstructions(last.result.Violations))
}
