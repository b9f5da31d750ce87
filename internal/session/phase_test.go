package session

import (
	"testing"

	"pgregory.net/rapid"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseFetching, true},
		{PhaseFetching, PhaseOrchestrating, true},
		{PhaseOrchestrating, PhaseGenerating, true},
		{PhaseGenerating, PhaseQA, true},
		{PhaseQA, PhaseReady, true},
		{PhaseIdle, PhaseError, true},
		{PhaseQA, PhaseError, true},
		{PhaseIdle, PhaseOrchestrating, false},
		{PhaseGenerating, PhaseFetching, false},
		{PhaseReady, PhaseError, false},
		{PhaseError, PhaseReady, false},
		{PhaseError, PhaseError, false},
		{Phase("BOGUS"), PhaseError, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidPath(t *testing.T) {
	ok := [][]Phase{
		{PhaseIdle, PhaseFetching, PhaseOrchestrating, PhaseOrchestrating, PhaseGenerating, PhaseQA, PhaseReady},
		{PhaseIdle, PhaseFetching, PhaseError},
		{PhaseReady},
		nil,
	}
	for _, p := range ok {
		if err := ValidPath(p); err != nil {
			t.Errorf("ValidPath(%v) = %v", p, err)
		}
	}
	bad := [][]Phase{
		{PhaseFetching, PhaseOrchestrating},
		{PhaseIdle, PhaseFetching, PhaseReady},
		{PhaseIdle, PhaseFetching, PhaseError, PhaseError},
		{PhaseIdle, PhaseError, PhaseFetching},
	}
	for _, p := range bad {
		if err := ValidPath(p); err == nil {
			t.Errorf("ValidPath(%v) accepted an illegal path", p)
		}
	}
}

// Any walk built only from legal steps is accepted, and appending anything
// after a terminal phase is rejected.
func TestValidPathProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		path := []Phase{PhaseIdle}
		for !path[len(path)-1].Terminal() {
			cur := path[len(path)-1]
			switch rapid.IntRange(0, 4).Draw(t, "move") {
			case 0:
				path = append(path, PhaseError)
			case 1:
				path = append(path, cur)
			default:
				next, _ := cur.Next()
				path = append(path, next)
			}
		}
		if err := ValidPath(path); err != nil {
			t.Fatalf("legal walk %v rejected: %v", path, err)
		}
		extra := rapid.SampledFrom(append([]Phase{PhaseError}, pipeline...)).Draw(t, "extra")
		if err := ValidPath(append(path, extra)); err == nil {
			t.Fatalf("event after terminal accepted: %v + %s", path, extra)
		}
	})
}
