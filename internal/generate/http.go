package generate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/quality"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/stage"
)

// Request is the body posted to the generation service.
type Request struct {
	SessionID string                       `json:"session_id"`
	Key       string                       `json:"key"`
	Stage     string                       `json:"stage"`
	Data      map[string]any               `json:"data"`
	Prior     map[string]map[string]string `json:"prior,omitempty"`
	Repair    *RepairRequest               `json:"repair,omitempty"`
}

// RepairRequest carries the rejected candidate and what to fix.
type RepairRequest struct {
	Files map[string]string         `json:"files"`
	Fixes []quality.FixInstruction `json:"fixes"`
}

// Response is the generation service reply.
type Response struct {
	Files map[string]ResponseFile `json:"files"`
}

// ResponseFile is one generated file. Encoding is empty for text or "base64".
type ResponseFile struct {
	Content   string `json:"content"`
	MediaType string `json:"media_type,omitempty"`
	Encoding  string `json:"encoding,omitempty"`
}

// HTTPGenerator calls a remote generation service. Calls are throttled by a
// token bucket shared across sessions.
type HTTPGenerator struct {
	client   *http.Client
	endpoint string
	apiKey   string
	limiter  *rate.Limiter
}

// NewHTTPGenerator creates an HTTP generator. perSecond <= 0 disables
// throttling.
func NewHTTPGenerator(endpoint, apiKey string, client *http.Client, perSecond float64, burst int) *HTTPGenerator {
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &HTTPGenerator{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
		limiter:  rate.NewLimiter(limit, max(burst, 1)),
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, in stage.Input) (artifact.Files, error) {
	return g.do(ctx, g.request(in, nil))
}

func (g *HTTPGenerator) Repair(ctx context.Context, in stage.Input, prior artifact.Files, fixes []quality.FixInstruction) (artifact.Files, error) {
	return g.do(ctx, g.request(in, &RepairRequest{Files: textFiles(prior), Fixes: fixes}))
}

func (g *HTTPGenerator) request(in stage.Input, repair *RepairRequest) Request {
	req := Request{SessionID: in.SessionID, Key: in.Key, Stage: in.Stage, Data: in.Data, Repair: repair}
	if len(in.Prior) > 0 {
		req.Prior = make(map[string]map[string]string, len(in.Prior))
		for name, files := range in.Prior {
			req.Prior[name] = textFiles(files)
		}
	}
	return req
}

func (g *HTTPGenerator) do(ctx context.Context, body Request) (artifact.Files, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, errors.GenerationError("rate limiter wait aborted").WithCause(err).Build()
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.InternalError("failed to marshal generation request").WithCause(err).Build()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.ConfigError("invalid generation endpoint").WithCause(err).Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "landingd/1.0")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		b := errors.GenerationError("generation request failed").WithCause(err).WithContext("stage", body.Stage)
		if stderrors.Is(err, context.Canceled) {
			b = b.WithRetry(errors.RetryNever)
		}
		return nil, b.Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		limitedBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		b := errors.GenerationError(fmt.Sprintf("generation service error: %s", resp.Status)).
			WithContext("stage", body.Stage).
			WithContext("code", resp.StatusCode).
			WithContext("response", string(limitedBody))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			b = b.RateLimit()
		case resp.StatusCode < 500:
			b = b.WithRetry(errors.RetryNever)
		}
		return nil, b.Build()
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.GenerationError("failed to decode generation response").WithCause(err).Build()
	}
	return decodeFiles(out.Files)
}

func decodeFiles(in map[string]ResponseFile) (artifact.Files, error) {
	files := make(artifact.Files, len(in))
	for p, f := range in {
		if err := artifact.ValidPath(p); err != nil {
			return nil, errors.GenerationError("generation response has an invalid path").
				WithCause(err).
				WithContext("path", p).
				Build()
		}
		content := []byte(f.Content)
		if f.Encoding == "base64" {
			var err error
			if content, err = base64.StdEncoding.DecodeString(f.Content); err != nil {
				return nil, errors.GenerationError("generation response has bad base64").
					WithCause(err).
					WithContext("path", p).
					Build()
			}
		}
		file := artifact.NewFile(p, content)
		if f.MediaType != "" {
			file.MediaType = f.MediaType
		}
		files[p] = file
	}
	return files, nil
}

func textFiles(files artifact.Files) map[string]string {
	out := make(map[string]string, len(files))
	for p, f := range files {
		out[p] = string(f.Content)
	}
	return out
}
