package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
)

const manifestName = "_manifest.json"

// FSStore keeps one directory per session:
//
//	<dir>/
//	  sessions/<session_id>/_manifest.json
//	  sessions/<session_id>/index.html, css/site.css, ...
//	  staging/<session_id>-<nonce>/   (in-progress writes)
//
// Save writes into staging and publishes with a directory rename while
// holding the write lock, so Load (read lock) sees whole bundles only.
type FSStore struct {
	basePath string
	mu       sync.RWMutex
}

type manifest struct {
	SessionID string            `json:"session_id"`
	CreatedAt time.Time         `json:"created_at"`
	Files     map[string]string `json:"files"` // path -> media type
}

// NewFSStore creates the directory layout under basePath.
func NewFSStore(basePath string) (*FSStore, error) {
	for _, dir := range []string{filepath.Join(basePath, "sessions"), filepath.Join(basePath, "staging")} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.WrapError(err, errors.CategoryStorage, "create artifact directory").
				WithContext("dir", dir).Fatal().Build()
		}
	}
	return &FSStore{basePath: basePath}, nil
}

func (fs *FSStore) sessionDir(id string) string {
	return filepath.Join(fs.basePath, "sessions", id)
}

// Save writes b to staging, then swaps it into place.
func (fs *FSStore) Save(ctx context.Context, b Bundle) error {
	if err := b.Validate(); err != nil {
		return errors.WrapError(err, errors.CategoryValidation, "invalid bundle").Build()
	}
	staging := filepath.Join(fs.basePath, "staging", b.SessionID+"-"+uuid.NewString())
	if err := fs.writeStaging(ctx, staging, b); err != nil {
		_ = os.RemoveAll(staging)
		return errors.WrapError(err, errors.CategoryStorage, "write artifact").
			WithContext("session_id", b.SessionID).Build()
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	dest := fs.sessionDir(b.SessionID)
	var trash string
	if _, err := os.Stat(dest); err == nil {
		trash = staging + ".old"
		if err := os.Rename(dest, trash); err != nil {
			_ = os.RemoveAll(staging)
			return errors.WrapError(err, errors.CategoryStorage, "replace artifact").Build()
		}
	}
	if err := os.Rename(staging, dest); err != nil {
		if trash != "" {
			_ = os.Rename(trash, dest)
		}
		_ = os.RemoveAll(staging)
		return errors.WrapError(err, errors.CategoryStorage, "publish artifact").
			WithContext("session_id", b.SessionID).Build()
	}
	if trash != "" {
		_ = os.RemoveAll(trash)
	}
	return nil
}

func (fs *FSStore) writeStaging(ctx context.Context, dir string, b Bundle) error {
	m := manifest{SessionID: b.SessionID, CreatedAt: b.CreatedAt, Files: make(map[string]string, len(b.Files))}
	for _, p := range b.Files.Paths() {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := b.Files[p]
		target := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(target, f.Content, 0o600); err != nil {
			return err
		}
		mt := f.MediaType
		if mt == "" {
			mt = MediaTypeFor(p)
		}
		m.Files[p] = mt
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, manifestName), data, 0o600)
}

// Load reads the whole bundle for sessionID.
func (fs *FSStore) Load(ctx context.Context, sessionID string) (Bundle, error) {
	if err := ValidSessionID(sessionID); err != nil {
		return Bundle{}, ErrNotFound.WithContext("session_id", sessionID)
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	dir := fs.sessionDir(sessionID)
	// #nosec G304 - dir is built from a validated session id
	raw, err := os.ReadFile(filepath.Join(dir, manifestName))
	if os.IsNotExist(err) {
		return Bundle{}, ErrNotFound.WithContext("session_id", sessionID)
	}
	if err != nil {
		return Bundle{}, errors.WrapError(err, errors.CategoryStorage, "read artifact manifest").Build()
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Bundle{}, errors.WrapError(err, errors.CategoryStorage, "decode artifact manifest").Build()
	}

	b := Bundle{SessionID: m.SessionID, CreatedAt: m.CreatedAt, Files: make(Files, len(m.Files))}
	for p, mt := range m.Files {
		if err := ctx.Err(); err != nil {
			return Bundle{}, err
		}
		// #nosec G304 - p was validated before it was written to the manifest
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil {
			return Bundle{}, errors.WrapError(err, errors.CategoryStorage, "read artifact file").
				WithContext("path", p).Build()
		}
		b.Files[p] = File{Content: content, MediaType: mt}
	}
	return b, nil
}

// Delete removes the session directory if present.
func (fs *FSStore) Delete(_ context.Context, sessionID string) error {
	if ValidSessionID(sessionID) != nil {
		return nil
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := os.RemoveAll(fs.sessionDir(sessionID)); err != nil {
		return errors.WrapError(err, errors.CategoryStorage, "delete artifact").
			WithContext("session_id", sessionID).Build()
	}
	return nil
}

// PurgeStaging removes leftovers of interrupted saves. Called at startup.
func (fs *FSStore) PurgeStaging() error {
	dir := filepath.Join(fs.basePath, "staging")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		_ = os.RemoveAll(filepath.Join(dir, e.Name()))
	}
	return nil
}
