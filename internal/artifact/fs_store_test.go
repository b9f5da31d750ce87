package artifact

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bundleOf(id string, fill byte) Bundle {
	return Bundle{
		SessionID: id,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
		Files: Files{
			PrimaryPath:       NewFile(PrimaryPath, bytes.Repeat([]byte{fill}, 64)),
			"css/site.css":    NewFile("site.css", bytes.Repeat([]byte{fill}, 32)),
			"js/app.js":       NewFile("app.js", bytes.Repeat([]byte{fill}, 16)),
			"img/hero.png":    NewFile("hero.png", bytes.Repeat([]byte{fill}, 128)),
			"fonts/brand.txt": NewFile("brand.txt", []byte{fill}),
		},
	}
}

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	in := bundleOf("sess-1", 'a')
	require.NoError(t, st.Save(ctx, in))

	out, err := st.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, in.SessionID, out.SessionID)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.Files.Paths(), out.Files.Paths())
	assert.Equal(t, in.Files["css/site.css"].Content, out.Files["css/site.css"].Content)
	assert.Equal(t, "text/css; charset=utf-8", out.Files["css/site.css"].MediaType)
}

func TestFSStoreNotFoundAndDelete(t *testing.T) {
	ctx := context.Background()
	st, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = st.Load(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, st.Delete(ctx, "missing"), "deleting a missing session is a no-op")

	require.NoError(t, st.Save(ctx, bundleOf("s", 'x')))
	require.NoError(t, st.Delete(ctx, "s"))
	_, err = st.Load(ctx, "s")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFSStoreRejectsInvalidBundles(t *testing.T) {
	st, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	noPrimary := Bundle{SessionID: "s", Files: Files{"a.css": NewFile("a.css", nil)}}
	assert.Error(t, st.Save(context.Background(), noPrimary))

	escape := bundleOf("s", 'a')
	escape.Files["../../etc/passwd"] = NewFile("passwd", nil)
	assert.Error(t, st.Save(context.Background(), escape))

	assert.Error(t, st.Save(context.Background(), bundleOf("../s", 'a')))
}

// Readers racing a writer that alternates two bundles must see one of them whole.
func TestFSStoreNoPartialReads(t *testing.T) {
	ctx := context.Background()
	st, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, bundleOf("s", 'a')))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 40; i++ {
			fill := byte('a')
			if i%2 == 0 {
				fill = 'b'
			}
			assert.NoError(t, st.Save(ctx, bundleOf("s", fill)))
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				b, err := st.Load(ctx, "s")
				if !assert.NoError(t, err) {
					return
				}
				want := b.Files[PrimaryPath].Content[0]
				for p, f := range b.Files {
					for _, c := range f.Content {
						if c != want {
							t.Errorf("mixed bundle: %s has %q, primary has %q", p, c, want)
							return
						}
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	b := bundleOf("m", 'a')
	require.NoError(t, st.Save(ctx, b))
	b.Files[PrimaryPath].Content[0] = 'z'

	got, err := st.Load(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, byte('a'), got.Files[PrimaryPath].Content[0])
	require.NoError(t, st.Delete(ctx, "m"))
	_, err = st.Load(ctx, "m")
	assert.True(t, errors.Is(err, ErrNotFound))
}
