package fetch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
)

// FixturesFetcher reads records from <dir>/<key>.json for offline builds.
type FixturesFetcher struct {
	dir string
}

func NewFixturesFetcher(dir string) *FixturesFetcher {
	return &FixturesFetcher{dir: dir}
}

func (f *FixturesFetcher) Fetch(ctx context.Context, key string, _ map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FetchError("fetch cancelled").WithCause(err).Build()
	}
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return nil, errors.ValidationError("invalid fixture key").WithContext("key", key).Build()
	}
	p := filepath.Join(f.dir, key+".json")
	data, err := os.ReadFile(p)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.NotFoundError("no fixture for key").WithContext("path", p).Build()
	}
	if err != nil {
		return nil, errors.FetchError("fixture not readable").
			WithCause(err).
			WithContext("path", p).
			Build()
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.FetchError("fixture is not a JSON object").
			WithCause(err).
			WithContext("path", p).
			Build()
	}
	return record, nil
}
