// Package generate provides the stage generators: an HTTP client for a
// remote generation service and an offline template generator.
package generate

import (
	"fmt"
	"net/http"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/config"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/stage"
)

// New creates the generator selected by cfg. cdn is the stylesheet URL the
// template generator links when a CDN is required.
func New(cfg config.GenerateConfig, cdn string, client *http.Client) (stage.Generator, error) {
	switch cfg.Mode {
	case config.GenerateHTTP:
		return NewHTTPGenerator(cfg.Endpoint, cfg.APIKey, client, cfg.RateLimit, cfg.Burst), nil
	case config.GenerateTemplate:
		return NewTemplateGenerator(cdn), nil
	default:
		return nil, fmt.Errorf("unsupported generate mode: %s", cfg.Mode)
	}
}

func str(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

func list(data map[string]any, key string) []any {
	l, _ := data[key].([]any)
	return l
}
