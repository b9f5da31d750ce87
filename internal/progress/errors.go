package progress

import "github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"

var (
	// ErrUnknownSession indicates the bus has no log for the session.
	ErrUnknownSession = errors.NotFoundError("unknown progress session").Build()

	// ErrClosed indicates a publish after the session's terminal event.
	ErrClosed = errors.ConflictError("progress stream already terminated").Build()
)
