package build

import (
	stderrors "errors"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/session"
)

// FailureKind is the failure taxonomy recorded on sessions.
type FailureKind = session.FailureKind

const (
	FetchError            = session.FailureFetch
	StageGenerationError  = session.FailureStageGeneration
	ValidationExhausted   = session.FailureValidationExhausted
	CriticalStageFailed   = session.FailureCriticalStage
	CancellationRequested = session.FailureCancelled
)

var (
	// ErrNotFound indicates an unknown session or one without an artifact.
	ErrNotFound = errors.NotFoundError("build not found").Build()

	// ErrNotReady indicates the build has not reached READY yet.
	ErrNotReady = errors.ConflictError("build not ready").Build()

	// ErrCommitting indicates Cancel arrived after the build started
	// publishing its artifact.
	ErrCommitting = errors.ConflictError("build is committing and can no longer be cancelled").Build()

	// errCancelled stops a build goroutine once Cancel has won.
	errCancelled = stderrors.New("build cancelled")
)

// classify translates a raw error into the caller-visible failure. The raw
// error is logged by the caller and never stored.
func classify(kind FailureKind, stageName string, err error) session.Failure {
	f := session.Failure{Kind: kind, Stage: stageName}
	switch kind {
	case FetchError:
		f.Retryable = errors.IsRetryable(err)
		switch errors.GetCategory(err) {
		case errors.CategoryValidation:
			f.Message = "the business key is not valid"
		case errors.CategoryNotFound:
			f.Message = "no business data exists for this key"
		default:
			f.Message = "business data could not be fetched"
		}
	case StageGenerationError:
		f.Message = "stage " + stageName + " could not produce a candidate"
		f.Retryable = true
	case CriticalStageFailed:
		if stageName == commitStage {
			f.Message = "the finished page could not be stored"
			f.Retryable = true
		} else {
			f.Message = "critical stage " + stageName + " did not pass quality checks"
		}
	case CancellationRequested:
		f.Message = "build was cancelled"
		f.Retryable = true
	default:
		f.Message = "build failed"
	}
	return f
}
