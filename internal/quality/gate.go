// Package quality evaluates candidate bundles against a deterministic rule set.
//
// A Gate is a pure function: the same candidate always yields the same
// ordered violations. Violation codes map to fix hints through a fixed table
// so repair calls receive stable, actionable instructions.
package quality

import (
	"bytes"

	"golang.org/x/net/html"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
)

// Severity of a violation. Only error-severity violations fail the gate.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is one failed check.
type Violation struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Hint     string   `json:"hint"`
	Detail   string   `json:"detail,omitempty"`
}

// Result is the outcome of validating one candidate.
type Result struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations"`
}

// Gate validates candidates.
type Gate interface {
	Validate(candidate artifact.Files) Result
}

// GateFunc adapts a function to Gate.
type GateFunc func(artifact.Files) Result

func (f GateFunc) Validate(c artifact.Files) Result { return f(c) }

// Document is the parsed view of a candidate shared by all rules.
type Document struct {
	Files artifact.Files
	Root  *html.Node // nil when the primary document is absent
}

// Rule is one check of a rule set.
type Rule interface {
	// Name returns a short identifier for logging.
	Name() string
	// Check returns the violations found in doc, in document order.
	Check(doc *Document) []Violation
}

// RuleSet runs every rule in order and collects all violations.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet creates a rule set from rules.
func NewRuleSet(rules ...Rule) *RuleSet {
	return &RuleSet{rules: rules}
}

// Rules returns the rule names in evaluation order.
func (rs *RuleSet) Rules() []string {
	names := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		names[i] = r.Name()
	}
	return names
}

// Validate implements Gate.
func (rs *RuleSet) Validate(candidate artifact.Files) Result {
	doc := &Document{Files: candidate}
	if primary, ok := candidate.Primary(); ok {
		// html.Parse only fails on reader errors, never on malformed markup.
		doc.Root, _ = html.Parse(bytes.NewReader(primary.Content))
	}
	var violations []Violation
	for _, r := range rs.rules {
		violations = append(violations, r.Check(doc)...)
	}
	return NewResult(violations)
}

// NewResult derives Passed from violations and fills missing hints.
func NewResult(violations []Violation) Result {
	passed := true
	for i := range violations {
		if violations[i].Hint == "" {
			violations[i].Hint = Hint(violations[i].Code)
		}
		if violations[i].Severity == "" {
			violations[i].Severity = SeverityError
		}
		if violations[i].Severity == SeverityError {
			passed = false
		}
	}
	if violations == nil {
		violations = []Violation{}
	}
	return Result{Passed: passed, Violations: violations}
}

// Count returns the number of violations.
func (r Result) Count() int { return len(r.Violations) }

// Errors returns the number of error-severity violations.
func (r Result) Errors() int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Better reports whether r ranks strictly above other: fewer blocking
// violations, then fewer violations overall.
func (r Result) Better(other Result) bool {
	if r.Errors() != other.Errors() {
		return r.Errors() < other.Errors()
	}
	return r.Count() < other.Count()
}

// Codes returns the violation codes in order.
func (r Result) Codes() []string {
	codes := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		codes[i] = v.Code
	}
	return codes
}
