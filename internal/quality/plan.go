package quality

import (
	"encoding/json"
	"strings"
)

// PlanPath is the file the planning stage emits.
const PlanPath = "plan.json"

// Plan is the page outline produced by the planning stage.
type Plan struct {
	Title    string        `json:"title"`
	Tagline  string        `json:"tagline,omitempty"`
	Sections []PlanSection `json:"sections"`
}

// PlanSection is one section of the outline.
type PlanSection struct {
	ID      string `json:"id"`
	Heading string `json:"heading"`
	Body    string `json:"body,omitempty"`
}

// PlanRules is the rule set for the planning stage.
func PlanRules() *RuleSet { return NewRuleSet(PlanRule{}) }

// PlanRule requires a decodable plan with a title and sections.
type PlanRule struct{}

func (PlanRule) Name() string { return "plan" }

func (PlanRule) Check(doc *Document) []Violation {
	f, ok := doc.Files[PlanPath]
	if !ok {
		return []Violation{{Code: CodePlanInvalid, Severity: SeverityError, Detail: "plan.json missing"}}
	}
	var p Plan
	if err := json.Unmarshal(f.Content, &p); err != nil {
		return []Violation{{Code: CodePlanInvalid, Severity: SeverityError, Detail: err.Error()}}
	}
	if strings.TrimSpace(p.Title) == "" || len(p.Sections) == 0 {
		return []Violation{{Code: CodePlanInvalid, Severity: SeverityError, Detail: "title and sections are required"}}
	}
	return nil
}
