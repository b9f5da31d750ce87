package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/quality"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/session"
)

// Stage names of the default table.
const (
	Plan   = "plan"
	Page   = "page"
	Polish = "polish"
)

// Input is what a generator receives for one stage.
type Input struct {
	SessionID string
	Key       string
	Stage     string
	// Data is the normalized business input returned by the fetcher.
	Data map[string]any
	// Prior holds the accepted output of every earlier stage by name.
	Prior map[string]artifact.Files
}

// Previous returns the output of the stage that ran immediately before,
// following order.
func (in Input) Previous(order []string) (artifact.Files, bool) {
	for i, name := range order {
		if name == in.Stage && i > 0 {
			f, ok := in.Prior[order[i-1]]
			return f, ok
		}
	}
	return nil, false
}

// Generator produces and repairs stage candidates. Implementations must be
// safe for concurrent use across sessions.
type Generator interface {
	Generate(ctx context.Context, in Input) (artifact.Files, error)
	Repair(ctx context.Context, in Input, prior artifact.Files, fixes []quality.FixInstruction) (artifact.Files, error)
}

// Stage is one row of the stage table.
type Stage struct {
	Name     string
	Phase    session.Phase
	Gate     quality.Gate // nil accepts the first candidate without validation
	Critical bool
}

// Table is the ordered stage list of a build.
type Table []Stage

// Names returns the stage names in order.
func (t Table) Names() []string {
	names := make([]string, len(t))
	for i, s := range t {
		names[i] = s.Name
	}
	return names
}

// Validate checks the table once at startup: stage names are unique, every
// phase is a generation phase and phases never move backwards.
func (t Table) Validate() error {
	if len(t) == 0 {
		return errors.New("stage table is empty")
	}
	seen := make(map[string]bool, len(t))
	prev := session.PhaseOrchestrating
	for _, s := range t {
		if s.Name == "" {
			return errors.New("stage name is required")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage %q", s.Name)
		}
		seen[s.Name] = true
		switch s.Phase {
		case session.PhaseOrchestrating, session.PhaseGenerating, session.PhaseQA:
		default:
			return fmt.Errorf("stage %q: phase %s cannot run stages", s.Name, s.Phase)
		}
		if s.Phase.Before(prev) {
			return fmt.Errorf("stage %q: phase %s after %s", s.Name, s.Phase, prev)
		}
		prev = s.Phase
	}
	return nil
}

// DefaultTable is the three-stage pipeline: an outline in ORCHESTRATING, the
// page in GENERATING and a final polish pass in QA. critical names stages
// that must pass their gate in addition to the plan stage.
func DefaultTable(opts quality.Options, critical func(string) bool) Table {
	isCritical := func(name string) bool { return critical != nil && critical(name) }
	return Table{
		{Name: Plan, Phase: session.PhaseOrchestrating, Gate: quality.PlanRules(), Critical: true},
		{Name: Page, Phase: session.PhaseGenerating, Gate: quality.StructureRules(), Critical: isCritical(Page)},
		{Name: Polish, Phase: session.PhaseQA, Gate: quality.DefaultRules(opts), Critical: isCritical(Polish)},
	}
}
