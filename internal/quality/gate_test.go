package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
)

func files(indexHTML string, extra ...string) artifact.Files {
	f := artifact.Files{artifact.PrimaryPath: artifact.NewFile(artifact.PrimaryPath, []byte(indexHTML))}
	for _, p := range extra {
		f[p] = artifact.NewFile(p, []byte("x"))
	}
	return f
}

const good = `<html><head><title>Blue Door Cafe</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/bootstrap.min.css">
<link rel="stylesheet" href="css/site.css"></head>
<body><h1>Blue Door Cafe</h1><img src="img/hero.jpg" alt="Storefront"></body></html>`

func TestDefaultRulesPass(t *testing.T) {
	gate := DefaultRules(Options{RequiredCDN: "https://cdn.jsdelivr.net/", MaxInlineStyleRatio: 0.3})
	res := gate.Validate(files(good, "css/site.css", "img/hero.jpg"))
	assert.True(t, res.Passed)
	assert.Empty(t, res.Violations)
}

func TestDefaultRulesViolations(t *testing.T) {
	gate := DefaultRules(Options{RequiredCDN: "https://cdn.jsdelivr.net/", MaxInlineStyleRatio: 0.3})
	bad := `<html><head><title> </title><script src="js/app.js"></script></head>
<body><p style="color:red">Hi</p><img src="img/a.png"></body></html>`
	res := gate.Validate(files(bad))

	assert.False(t, res.Passed)
	assert.Equal(t, []string{
		CodeTitleMissing,
		CodeAssetUnresolved, // js/app.js
		CodeAssetUnresolved, // img/a.png
		CodeImgAltMissing,
		CodeCDNMissing,
		CodeInlineStyleDensity,
	}, res.Codes())
	for _, v := range res.Violations {
		assert.Equal(t, Hint(v.Code), v.Hint)
	}
	assert.Equal(t, "js/app.js", res.Violations[1].Detail)
}

func TestMissingPrimaryShortCircuits(t *testing.T) {
	res := DefaultRules(Options{}).Validate(artifact.Files{"css/site.css": artifact.NewFile("site.css", nil)})
	assert.False(t, res.Passed)
	assert.Equal(t, []string{CodePrimaryMissing}, res.Codes())
}

func TestWarningsDoNotFailTheGate(t *testing.T) {
	page := `<html><head><title>T</title></head><body><p style="a">x</p><p style="b">y</p></body></html>`
	res := DefaultRules(Options{MaxInlineStyleRatio: 0.5}).Validate(files(page))
	require.Len(t, res.Violations, 1)
	assert.Equal(t, SeverityWarning, res.Violations[0].Severity)
	assert.True(t, res.Passed)
	assert.Equal(t, 1, res.Count())
}

func TestEmptyBody(t *testing.T) {
	res := StructureRules().Validate(files(`<html><head><title>T</title></head><body>  </body></html>`))
	assert.Equal(t, []string{CodeEmptyBody}, res.Codes())
}

func TestGateIsDeterministic(t *testing.T) {
	gate := DefaultRules(Options{RequiredCDN: "https://cdn/", MaxInlineStyleRatio: 0.1})
	c := files(`<html><body><img src="a.png"><img src="b.png"></body></html>`)
	first := gate.Validate(c)
	for range 5 {
		assert.Equal(t, first, gate.Validate(c))
	}
}

func TestFixInstructions(t *testing.T) {
	vs := []Violation{{Code: CodeTitleMissing}, {Code: "CUSTOM_X", Detail: "d"}}
	fixes := FixInstructions(vs)
	require.Len(t, fixes, 2)
	assert.Equal(t, hints[CodeTitleMissing], fixes[0].Hint)
	assert.Equal(t, "Resolve quality check CUSTOM_X.", fixes[1].Hint)
	assert.Equal(t, "d", fixes[1].Detail)
}

func TestNewResultDefaults(t *testing.T) {
	res := NewResult(nil)
	assert.True(t, res.Passed)
	assert.NotNil(t, res.Violations)

	res = NewResult([]Violation{{Code: CodeCDNMissing}})
	assert.False(t, res.Passed, "missing severity defaults to error")
	assert.Equal(t, Hint(CodeCDNMissing), res.Violations[0].Hint)
}

func TestRuleNames(t *testing.T) {
	assert.Equal(t, []string{"primary", "title", "body", "assets"}, StructureRules().Rules())
}

func TestResultRanking(t *testing.T) {
	warnOnly := NewResult([]Violation{{Code: "W", Severity: SeverityWarning}, {Code: "W2", Severity: SeverityWarning}})
	oneError := NewResult([]Violation{{Code: "E"}})
	twoErrors := NewResult([]Violation{{Code: "E"}, {Code: "E2"}})

	assert.True(t, warnOnly.Better(oneError), "blocking violations rank first")
	assert.True(t, oneError.Better(twoErrors))
	assert.False(t, oneError.Better(oneError))
	assert.Equal(t, 0, warnOnly.Errors())
}

func TestPlanRule(t *testing.T) {
	gate := PlanRules()
	ok := artifact.Files{PlanPath: artifact.NewFile(PlanPath, []byte(`{"title":"Cafe","sections":[{"id":"hero","heading":"Welcome"}]}`))}
	assert.True(t, gate.Validate(ok).Passed)

	for _, raw := range []string{`{`, `{"title":"Cafe","sections":[]}`} {
		res := gate.Validate(artifact.Files{PlanPath: artifact.NewFile(PlanPath, []byte(raw))})
		assert.Equal(t, []string{CodePlanInvalid}, res.Codes(), raw)
	}
	assert.False(t, gate.Validate(artifact.Files{}).Passed)
}
