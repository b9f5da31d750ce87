package fetch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
)

// HTTPFetcher reads records from a places API: GET {base}/places/{key}.
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPFetcher creates an HTTP fetcher. A nil client uses http.DefaultClient.
func NewHTTPFetcher(baseURL, apiKey string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, baseURL: baseURL, apiKey: apiKey}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, key string, _ map[string]any) (map[string]any, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, errors.ConfigError("invalid fetch base URL").
			WithCause(err).
			WithContext("base_url", f.baseURL).
			Build()
	}
	u.Path = path.Join(strings.TrimSuffix(u.Path, "/"), "places", url.PathEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, errors.FetchError("failed to create request").WithCause(err).Build()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "landingd/1.0")
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		b := errors.FetchError("places request failed").
			WithCause(err).
			WithContext("key", key)
		// Parent cancellation is final; deadlines and network failures are transient.
		if !stderrors.Is(err, context.Canceled) {
			b = b.Retryable()
		}
		return nil, b.Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		limitedBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		category := errors.CategoryFetch
		if resp.StatusCode == http.StatusNotFound {
			category = errors.CategoryNotFound
		}
		b := errors.NewError(category, fmt.Sprintf("places API error: %s", resp.Status)).
			WithContext("key", key).
			WithContext("code", resp.StatusCode).
			WithContext("response", strings.ReplaceAll(string(limitedBody), "\n", " "))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			b = b.RateLimit()
		case resp.StatusCode >= 500:
			b = b.Retryable()
		}
		return nil, b.Build()
	}

	var record map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, errors.FetchError("failed to decode places response").
			WithCause(err).
			WithContext("key", key).
			Build()
	}
	if record == nil {
		return nil, errors.FetchError("places response is not an object").WithContext("key", key).Build()
	}
	return record, nil
}
