package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/config"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/quality"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/retry"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/stage"
)

const cdn = "https://cdn.example.com/pico.min.css"

func cafe() map[string]any {
	return map[string]any{
		"name":    "Blue Door Cafe",
		"tagline": "Coffee & pastries since 1998",
		"summary": "We roast **in house** every morning.",
		"photos":  []any{"https://img.example.com/1.jpg", map[string]any{"url": "https://img.example.com/2.jpg"}},
		"reviews": []any{map[string]any{"author": "Ana", "text": "Best croissant in town"}},
		"hours":   []any{"Mon-Fri 7-18", "Sat 8-14"},
		"address": "1 Harbour St",
	}
}

func TestTemplateGeneratorPassesDefaultTable(t *testing.T) {
	gen := NewTemplateGenerator(cdn)
	table := stage.DefaultTable(quality.Options{RequiredCDN: "https://cdn.example.com/", MaxInlineStyleRatio: 0.3}, nil)
	require.NoError(t, table.Validate())

	in := stage.Input{SessionID: "s1", Key: "blue-door", Data: cafe(), Prior: map[string]artifact.Files{}}
	opts := stage.Options{MaxAttempts: 3, Best: config.BestFewestViolations, Backoff: retry.DefaultPolicy()}
	for _, st := range table {
		out, err := stage.Run(context.Background(), gen, st, in, opts, stage.Hooks{})
		require.NoError(t, err, st.Name)
		assert.True(t, out.Passed, "%s: %v", st.Name, out.Result.Codes())
		in.Prior[st.Name] = out.Candidate
	}

	page := string(in.Prior[stage.Polish][artifact.PrimaryPath].Content)
	assert.Contains(t, page, "<title>Blue Door Cafe</title>")
	assert.Contains(t, page, "<strong>in house</strong>")
	assert.Contains(t, page, cdn)
	assert.Contains(t, page, `alt="Blue Door Cafe"`)
	assert.Contains(t, page, "Best croissant in town")
	assert.Contains(t, in.Prior[stage.Polish], "styles.css")
}

func TestTemplateGeneratorPlanFallsBackToKey(t *testing.T) {
	files, err := NewTemplateGenerator("").Generate(context.Background(), stage.Input{Stage: stage.Plan, Key: "corner-shop", Data: map[string]any{}})
	require.NoError(t, err)

	var p quality.Plan
	require.NoError(t, json.Unmarshal(files[quality.PlanPath].Content, &p))
	assert.Equal(t, "corner-shop", p.Title)
	require.Len(t, p.Sections, 1)
	assert.Equal(t, "about", p.Sections[0].ID)
}

func TestTemplateGeneratorRepairPatchesPrior(t *testing.T) {
	gen := NewTemplateGenerator(cdn)
	prior := artifact.Files{
		artifact.PrimaryPath: artifact.NewFile(artifact.PrimaryPath, []byte(
			`<html><head><title>x</title></head><body><p style="color:red">hi</p><img src="a.png"><script src="gone.js"></script></body></html>`)),
		"a.png": artifact.NewFile("a.png", []byte{0x89}),
	}
	fixes := quality.FixInstructions([]quality.Violation{
		{Code: quality.CodeImgAltMissing},
		{Code: quality.CodeCDNMissing},
		{Code: quality.CodeAssetUnresolved, Detail: "gone.js"},
		{Code: quality.CodeInlineStyleDensity},
	})

	out, err := gen.Repair(context.Background(), stage.Input{Stage: stage.Page, Data: map[string]any{"name": "Cafe"}}, prior, fixes)
	require.NoError(t, err)

	html := string(out[artifact.PrimaryPath].Content)
	assert.Contains(t, html, `alt="Cafe"`)
	assert.Contains(t, html, cdn)
	assert.NotContains(t, html, "gone.js")
	assert.NotContains(t, html, "style=")
	assert.Contains(t, string(prior[artifact.PrimaryPath].Content), "gone.js", "prior must not be modified")

	res := quality.DefaultRules(quality.Options{RequiredCDN: cdn}).Validate(out)
	assert.True(t, res.Passed, res.Codes())
}

func TestTemplateGeneratorUnknownStage(t *testing.T) {
	_, err := NewTemplateGenerator("").Generate(context.Background(), stage.Input{Stage: "teaser"})
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err))
}

func TestHTTPGeneratorGenerateAndRepair(t *testing.T) {
	var got []Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got = append(got, req)
		_ = json.NewEncoder(w).Encode(Response{Files: map[string]ResponseFile{
			"index.html": {Content: "<html><head><title>t</title></head><body>ok</body></html>"},
			"logo.png":   {Content: "iVBORw==", Encoding: "base64", MediaType: "image/png"},
		}})
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, "k", srv.Client(), 0, 0)
	in := stage.Input{SessionID: "s1", Key: "cafe", Stage: stage.Page, Data: cafe()}

	files, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, files["logo.png"].Content)
	assert.Equal(t, "image/png", files["logo.png"].MediaType)

	fixes := []quality.FixInstruction{{Code: quality.CodeTitleMissing, Hint: quality.Hint(quality.CodeTitleMissing)}}
	_, err = gen.Repair(context.Background(), in, files, fixes)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Nil(t, got[0].Repair)
	require.NotNil(t, got[1].Repair)
	assert.Equal(t, quality.CodeTitleMissing, got[1].Repair.Fixes[0].Code)
	assert.Contains(t, got[1].Repair.Files["index.html"], "<title>t</title>")
}

func TestHTTPGeneratorClassifiesStatus(t *testing.T) {
	status := int32(http.StatusBadGateway)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()
	gen := NewHTTPGenerator(srv.URL, "", srv.Client(), 0, 0)

	_, err := gen.Generate(context.Background(), stage.Input{Stage: stage.Page})
	assert.True(t, errors.HasCategory(err, errors.CategoryGeneration))
	assert.True(t, errors.IsRetryable(err))

	atomic.StoreInt32(&status, http.StatusBadRequest)
	_, err = gen.Generate(context.Background(), stage.Input{Stage: stage.Page})
	assert.False(t, errors.IsRetryable(err))
}

func TestHTTPGeneratorRejectsEscapingPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"files":{"../evil.html":{"content":"x"}}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPGenerator(srv.URL, "", srv.Client(), 0, 0).Generate(context.Background(), stage.Input{})
	assert.Error(t, err)
}

func TestHTTPGeneratorRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"files":{"index.html":{"content":"x"}}}`))
	}))
	defer srv.Close()

	// One token, refilled every ten seconds: the second call cannot get one
	// before its context expires.
	gen := NewHTTPGenerator(srv.URL, "", srv.Client(), 0.1, 1)
	_, err := gen.Generate(context.Background(), stage.Input{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = gen.Generate(ctx, stage.Input{})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewSelectsMode(t *testing.T) {
	g, err := New(config.GenerateConfig{Mode: config.GenerateTemplate}, cdn, nil)
	require.NoError(t, err)
	assert.IsType(t, &TemplateGenerator{}, g)

	g, err = New(config.GenerateConfig{Mode: config.GenerateHTTP, Endpoint: "http://x"}, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPGenerator{}, g)

	_, err = New(config.GenerateConfig{Mode: "oracle"}, "", nil)
	assert.True(t, strings.Contains(err.Error(), "oracle"))
}
