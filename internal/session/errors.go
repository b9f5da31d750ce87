package session

import "github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"

var (
	// ErrNotFound indicates no session exists with the given id.
	ErrNotFound = errors.NotFoundError("session not found").Build()

	// ErrIllegalTransition indicates a phase change outside the state machine.
	ErrIllegalTransition = errors.InternalError("illegal phase transition").Build()

	// ErrTerminal indicates a mutation was attempted on a READY or ERROR session.
	ErrTerminal = errors.ConflictError("session already terminal").Build()
)
