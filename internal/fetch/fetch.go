// Package fetch retrieves the business record a landing page is built from.
//
// Fetchers return classified errors: category fetch, marked retryable when
// the upstream condition is transient (timeouts, 429, 5xx). The orchestrator
// retries those with its backoff policy and fails the build on the rest.
package fetch

import (
	"context"
	"fmt"
	"maps"
	"net/http"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/config"
)

// Fetcher loads the record for key. input is the caller's build input and
// may carry lookup hints; implementations must not modify it.
type Fetcher interface {
	Fetch(ctx context.Context, key string, input map[string]any) (map[string]any, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key string, input map[string]any) (map[string]any, error)

func (f FetcherFunc) Fetch(ctx context.Context, key string, input map[string]any) (map[string]any, error) {
	return f(ctx, key, input)
}

// Merge overlays the caller's input on the fetched record. Caller values win
// so a build can correct upstream data.
func Merge(fetched, input map[string]any) map[string]any {
	out := make(map[string]any, len(fetched)+len(input))
	maps.Copy(out, fetched)
	maps.Copy(out, input)
	return out
}

// New creates the fetcher selected by cfg.
func New(cfg config.FetchConfig, client *http.Client) (Fetcher, error) {
	switch cfg.Mode {
	case config.FetchHTTP:
		return NewHTTPFetcher(cfg.BaseURL, cfg.APIKey, client), nil
	case config.FetchFixtures:
		return NewFixturesFetcher(cfg.FixturesDir), nil
	default:
		return nil, fmt.Errorf("unsupported fetch mode: %s", cfg.Mode)
	}
}
