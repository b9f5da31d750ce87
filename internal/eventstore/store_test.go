package eventstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndGetBySession(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()
	base := time.Unix(1700000000, 123456789)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, store.Append(ctx, Record{
			SessionID: "s1",
			Seq:       i,
			Type:      "progress",
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
			Payload:   []byte(`{"step":"x"}`),
			Metadata:  map[string]string{"phase": "FETCHING"},
		}))
	}
	require.NoError(t, store.Append(ctx, Record{SessionID: "s2", Seq: 1, Type: "progress", Timestamp: base}))

	got, err := store.GetBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, int64(i+1), r.Seq)
		assert.Equal(t, "FETCHING", r.Metadata["phase"])
	}
	assert.True(t, got[0].Timestamp.Equal(base.Add(time.Millisecond)), "nanosecond precision survives")
}

func TestAppendIsIdempotentPerSeq(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()
	r := Record{SessionID: "s", Seq: 1, Type: "progress", Timestamp: time.Now(), Payload: []byte("a")}
	require.NoError(t, store.Append(ctx, r))
	r.Payload = []byte("b")
	require.NoError(t, store.Append(ctx, r))

	got, err := store.GetBySession(ctx, "s")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("a"), got[0].Payload)
}

func TestGetRangeAndDelete(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()
	t0 := time.Unix(1000, 0)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, store.Append(ctx, Record{SessionID: "s", Seq: i, Type: "progress", Timestamp: t0.Add(time.Duration(i) * time.Second)}))
	}

	got, err := store.GetRange(ctx, t0.Add(time.Second), t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	n, err := store.DeleteSession(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	got, err = store.GetBySession(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(t.Context(), Record{SessionID: "s", Seq: 1, Type: "progress", Timestamp: time.Now()}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.GetBySession(t.Context(), "s")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestErrorsAreClassified(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Close())
	err := store.Append(t.Context(), Record{SessionID: "s", Seq: 1, Timestamp: time.Now()})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryEventStore))
	assert.True(t, errors.Is(err, ErrEventAppendFailed))
}
