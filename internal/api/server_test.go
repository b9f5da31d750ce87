package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/build"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/config"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/progress"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/session"
)

// fakeBuilds serves canned answers and records calls.
type fakeBuilds struct {
	mu        sync.Mutex
	started   []BuildRequest
	startErr  error
	sessions  map[string]session.Session
	bundles   map[string]artifact.Bundle
	events    []progress.Event
	cancelled []string
}

func (f *fakeBuilds) StartBuild(_ context.Context, key string, input map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, BuildRequest{Key: key, Input: input})
	return "sess-1", nil
}

func (f *fakeBuilds) GetState(id string) (session.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return session.Session{}, build.ErrNotFound.WithContext("session_id", id)
	}
	return s, nil
}

func (f *fakeBuilds) Cancel(id string) error {
	if _, ok := f.sessions[id]; !ok {
		return build.ErrNotFound
	}
	f.mu.Lock()
	f.cancelled = append(f.cancelled, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeBuilds) GetArtifact(_ context.Context, id string) (artifact.Bundle, error) {
	b, ok := f.bundles[id]
	if !ok {
		return artifact.Bundle{}, build.ErrNotReady.WithContext("session_id", id)
	}
	return b, nil
}

func (f *fakeBuilds) Subscribe(ctx context.Context, id string) (<-chan progress.Event, error) {
	if _, ok := f.sessions[id]; !ok {
		return nil, progress.ErrUnknownSession
	}
	ch := make(chan progress.Event, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func (f *fakeBuilds) Active() int { return 2 }

func newTestServer(t *testing.T, b Builds, opts ...Option) *Server {
	t.Helper()
	return NewServer(config.ServerConfig{Addr: ":0"}, b, opts...)
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errors.HTTPErrorResponse {
	t.Helper()
	var resp errors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeBuilds{})
	rec := do(s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeData(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 2, body["active_builds"])
}

func TestCreateBuild(t *testing.T) {
	fb := &fakeBuilds{}
	s := newTestServer(t, fb)

	rec := do(s, http.MethodPost, "/builds", `{"key":"blue-door","input":{"name":"Blue Door"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/builds/sess-1", rec.Header().Get("Location"))

	var accepted BuildAccepted
	decodeData(t, rec, &accepted)
	assert.Equal(t, "sess-1", accepted.SessionID)
	require.Len(t, fb.started, 1)
	assert.Equal(t, "blue-door", fb.started[0].Key)
	assert.Equal(t, "Blue Door", fb.started[0].Input["name"])
}

func TestCreateBuildErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		status   int
		code     string
	}{
		{"malformed body", `{"key":`, nil, http.StatusBadRequest, string(errors.CategoryValidation)},
		{"invalid key", `{"key":""}`, errors.ValidationError("invalid build key").Build(), http.StatusBadRequest, string(errors.CategoryValidation)},
		{"shutting down", `{"key":"a"}`, errors.RuntimeError("orchestrator is shutting down").Build(), http.StatusServiceUnavailable, string(errors.CategoryRuntime)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeBuilds{startErr: tt.startErr})
			rec := do(s, http.MethodPost, "/builds", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestGetBuild(t *testing.T) {
	fb := &fakeBuilds{sessions: map[string]session.Session{
		"s1": {ID: "s1", Key: "k", Phase: session.PhaseGenerating, Progress: 0.5},
	}}
	s := newTestServer(t, fb)

	rec := do(s, http.MethodGet, "/builds/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got session.Session
	decodeData(t, rec, &got)
	assert.Equal(t, session.PhaseGenerating, got.Phase)
	assert.InDelta(t, 0.5, got.Progress, 1e-9)

	rec = do(s, http.MethodGet, "/builds/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "nope", decodeError(t, rec).Details["session_id"])
}

func TestCancelBuild(t *testing.T) {
	fb := &fakeBuilds{sessions: map[string]session.Session{"s1": {ID: "s1", Phase: session.PhaseError}}}
	s := newTestServer(t, fb)

	rec := do(s, http.MethodDelete, "/builds/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s1"}, fb.cancelled)

	rec = do(s, http.MethodDelete, "/builds/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArtifactHonoursThreshold(t *testing.T) {
	page := `<html><head><title>t</title><link rel="stylesheet" href="styles.css"></head><body><img src="logo.png" alt="l"></body></html>`
	fb := &fakeBuilds{bundles: map[string]artifact.Bundle{"s1": {
		SessionID: "s1",
		Files: artifact.Files{
			artifact.PrimaryPath: artifact.NewFile(artifact.PrimaryPath, []byte(page)),
			"styles.css":         artifact.NewFile("styles.css", []byte("body{margin:0}")),
			"logo.png":           artifact.NewFile("logo.png", []byte(strings.Repeat("x", 64))),
		},
	}}}

	var threshold int64 = 32
	s := newTestServer(t, fb, WithInlineThreshold(func() int64 { return threshold }))

	rec := do(s, http.MethodGet, "/builds/s1/artifact", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<style>body{margin:0}</style>")
	assert.Contains(t, body, `src="/builds/s1/files/logo.png"`)

	threshold = 1 << 10
	body = do(s, http.MethodGet, "/builds/s1/artifact", "").Body.String()
	assert.Contains(t, body, `src="data:image/png;base64,`)

	rec = do(s, http.MethodGet, "/builds/other/artifact", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetFile(t *testing.T) {
	fb := &fakeBuilds{bundles: map[string]artifact.Bundle{"s1": {
		SessionID: "s1",
		Files: artifact.Files{
			artifact.PrimaryPath: artifact.NewFile(artifact.PrimaryPath, []byte("<html></html>")),
			"css/site.css":       artifact.NewFile("css/site.css", []byte("p{}")),
		},
	}}}
	s := newTestServer(t, fb)

	rec := do(s, http.MethodGet, "/builds/s1/files/css/site.css", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p{}", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")

	rec = do(s, http.MethodGet, "/builds/s1/files/missing.js", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "missing.js", decodeError(t, rec).Details["path"])
}

func TestBuildEventsStream(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	fb := &fakeBuilds{
		sessions: map[string]session.Session{"s1": {ID: "s1"}},
		events: []progress.Event{
			{Seq: 1, TS: ts, SessionID: "s1", Phase: session.PhaseIdle, Step: "queued"},
			{Seq: 2, TS: ts, SessionID: "s1", Phase: session.PhaseFetching, Step: "fetching"},
			{Seq: 3, TS: ts, SessionID: "s1", Phase: session.PhaseReady, Progress: 1},
		},
	}
	s := newTestServer(t, fb)

	rec := do(s, http.MethodGet, "/builds/s1/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	got := parseSSE(t, rec.Body.String())
	require.Len(t, got, 3)
	assert.Equal(t, session.PhaseIdle, got[0].Phase)
	assert.Equal(t, "queued", got[0].Step)
	assert.Equal(t, session.PhaseReady, got[2].Phase)
	assert.Equal(t, int64(3), got[2].Seq)
	assert.Contains(t, rec.Body.String(), "event: READY\n")

	rec = do(s, http.MethodGet, "/builds/nope/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRouteOptional(t *testing.T) {
	s := newTestServer(t, &fakeBuilds{})
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/metrics", "").Code)

	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	s = newTestServer(t, &fakeBuilds{}, WithMetricsHandler(h))
	rec := do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

// parseSSE decodes the data lines of an SSE body.
func parseSSE(t *testing.T, body string) []progress.Event {
	t.Helper()
	var out []progress.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var e progress.Event
		require.NoError(t, json.Unmarshal([]byte(data), &e))
		out = append(out, e)
	}
	require.NoError(t, sc.Err())
	return out
}
