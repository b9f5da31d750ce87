// Package build runs landing page builds.
//
// The Orchestrator owns the build state machine
//
//	IDLE → FETCHING → ORCHESTRATING → GENERATING → QA → READY
//
// with ERROR reachable from every non-terminal phase. Each build runs in its
// own goroutine; callers start builds, read session snapshots, cancel, fetch
// artifacts and follow progress through the Orchestrator only. At most one
// build runs per key: StartBuild for a key that is already in flight returns
// the running session's id.
//
// Raw errors never leave the package. Failures are translated into a
// session.Failure with one of the FailureKind values before they are recorded
// on the session and published as the terminal progress event.
package build
