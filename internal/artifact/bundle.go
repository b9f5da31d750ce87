package artifact

import (
	"fmt"
	"maps"
	"mime"
	"path"
	"slices"
	"strings"
	"time"
)

// PrimaryPath is the document every bundle must contain.
const PrimaryPath = "index.html"

// File is one file of a bundle.
type File struct {
	Content   []byte `json:"content"`
	MediaType string `json:"media_type"`
}

// NewFile builds a file with a media type derived from name.
func NewFile(name string, content []byte) File {
	return File{Content: content, MediaType: MediaTypeFor(name)}
}

// Size returns the content length in bytes.
func (f File) Size() int64 { return int64(len(f.Content)) }

// Files maps a relative path to file content.
type Files map[string]File

// Clone deep-copies the file map.
func (f Files) Clone() Files {
	if f == nil {
		return nil
	}
	out := make(Files, len(f))
	for p, file := range f {
		file.Content = slices.Clone(file.Content)
		out[p] = file
	}
	return out
}

// Paths returns the file paths in sorted order.
func (f Files) Paths() []string {
	return slices.Sorted(maps.Keys(f))
}

// Primary returns the primary document.
func (f Files) Primary() (File, bool) {
	file, ok := f[PrimaryPath]
	return file, ok
}

// Bundle is the immutable output of one successful build.
type Bundle struct {
	SessionID string    `json:"session_id"`
	Files     Files     `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the bundle can be stored.
func (b Bundle) Validate() error {
	if err := ValidSessionID(b.SessionID); err != nil {
		return err
	}
	if _, ok := b.Files.Primary(); !ok {
		return fmt.Errorf("bundle has no %s", PrimaryPath)
	}
	for p := range b.Files {
		if err := ValidPath(p); err != nil {
			return err
		}
	}
	return nil
}

// ValidSessionID rejects ids that cannot be used as a single path segment.
func ValidSessionID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}

// ValidPath rejects paths that would escape the bundle namespace.
func ValidPath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return fmt.Errorf("invalid bundle path %q", p)
	}
	if clean := path.Clean(p); clean != p || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "_") {
		return fmt.Errorf("invalid bundle path %q", p)
	}
	return nil
}

// NormalizeRef turns a reference found in the primary document into a
// bundle path. External and absolute references return "".
func NormalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "#") || strings.Contains(ref, ":") {
		return ""
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	clean := path.Clean(strings.TrimPrefix(ref, "./"))
	if ValidPath(clean) != nil {
		return ""
	}
	return clean
}

// MediaTypeFor guesses a media type from the file extension.
func MediaTypeFor(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
