package session

import "fmt"

// Phase is a state of the build state machine.
type Phase string

const (
	PhaseIdle          Phase = "IDLE"
	PhaseFetching      Phase = "FETCHING"
	PhaseOrchestrating Phase = "ORCHESTRATING"
	PhaseGenerating    Phase = "GENERATING"
	PhaseQA            Phase = "QA"
	PhaseReady         Phase = "READY"
	PhaseError         Phase = "ERROR"
)

// pipeline is the forward order of the non-error phases.
var pipeline = []Phase{PhaseIdle, PhaseFetching, PhaseOrchestrating, PhaseGenerating, PhaseQA, PhaseReady}

func (p Phase) String() string { return string(p) }

// Terminal reports whether no transition may leave p.
func (p Phase) Terminal() bool { return p == PhaseReady || p == PhaseError }

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p == PhaseError || p.rank() >= 0 }

func (p Phase) rank() int {
	for i, q := range pipeline {
		if q == p {
			return i
		}
	}
	return -1
}

// Next returns the phase that follows p on the success path.
func (p Phase) Next() (Phase, bool) {
	r := p.rank()
	if r < 0 || r == len(pipeline)-1 {
		return "", false
	}
	return pipeline[r+1], true
}

// Before reports whether p precedes q on the success path.
func (p Phase) Before(q Phase) bool {
	rp, rq := p.rank(), q.rank()
	return rp >= 0 && rq >= 0 && rp < rq
}

// CanTransition reports whether from -> to is a legal edge: one step forward
// on the success path, or into ERROR from any non-terminal phase.
func CanTransition(from, to Phase) bool {
	if from.Terminal() || !from.Valid() {
		return false
	}
	if to == PhaseError {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// ValidPath reports whether phases, as observed in order, form a legal walk
// starting at IDLE. A session restored from cache is the single-element path
// [READY]. Consecutive repeats of a non-terminal phase are allowed.
func ValidPath(phases []Phase) error {
	if len(phases) == 0 {
		return nil
	}
	if len(phases) == 1 && phases[0] == PhaseReady {
		return nil
	}
	if phases[0] != PhaseIdle {
		return fmt.Errorf("path starts at %s, want %s", phases[0], PhaseIdle)
	}
	for i := 1; i < len(phases); i++ {
		from, to := phases[i-1], phases[i]
		if from == to && !from.Terminal() {
			continue
		}
		if !CanTransition(from, to) {
			return fmt.Errorf("illegal transition %s -> %s at index %d", from, to, i)
		}
	}
	return nil
}
