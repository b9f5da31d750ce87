package session

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/quality"
)

func TestStoreCreateAndTransition(t *testing.T) {
	clock := clockwork.NewFakeClock()
	st := NewStore(clock)

	s := st.Create("place-1", "h1")
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.NotEmpty(t, s.ID)

	clock.Advance(time.Second)
	got, err := st.Update(s.ID, func(sess *Session, now time.Time) error {
		return sess.Transition(PhaseFetching, now)
	})
	require.NoError(t, err)
	assert.Equal(t, PhaseFetching, got.Phase)
	assert.Equal(t, clock.Now(), got.UpdatedAt)

	_, err = st.Update(s.ID, func(sess *Session, now time.Time) error {
		return sess.Transition(PhaseReady, now)
	})
	assert.True(t, errors.Is(err, ErrIllegalTransition))

	cur, _ := st.Get(s.ID)
	assert.Equal(t, PhaseFetching, cur.Phase, "failed update leaves session unchanged")
}

func TestStoreSnapshotsAreIsolated(t *testing.T) {
	st := NewStore(nil)
	s := st.Create("k", "h")
	_, err := st.Update(s.ID, func(sess *Session, _ time.Time) error {
		sess.Violations = []quality.Violation{{Code: "TITLE_MISSING", Severity: quality.SeverityError}}
		return nil
	})
	require.NoError(t, err)

	snap, _ := st.Get(s.ID)
	snap.Violations[0].Code = "MUTATED"
	again, _ := st.Get(s.ID)
	assert.Equal(t, "TITLE_MISSING", again.Violations[0].Code)
}

func TestSessionTerminalRejectsChanges(t *testing.T) {
	st := NewStore(nil)
	s := st.Create("k", "h")
	_, err := st.Update(s.ID, func(sess *Session, now time.Time) error {
		return sess.Fail(Failure{Kind: FailureCancelled, Message: "cancelled"}, now)
	})
	require.NoError(t, err)

	_, err = st.Update(s.ID, func(sess *Session, now time.Time) error {
		return sess.Transition(PhaseFetching, now)
	})
	assert.True(t, errors.Is(err, ErrTerminal))

	got, _ := st.Get(s.ID)
	require.NotNil(t, got.Failure)
	assert.Equal(t, FailureCancelled, got.Failure.Kind)
}

func TestProgressIsMonotonicWithinPhase(t *testing.T) {
	var s Session
	now := time.Now()
	s.SetProgress(0.5, "half", now)
	s.SetProgress(0.2, "", now)
	assert.Equal(t, 0.5, s.Progress)
	assert.Equal(t, "half", s.Step)
	s.SetProgress(3, "", now)
	assert.Equal(t, 1.0, s.Progress)

	s.Phase = PhaseFetching
	require.NoError(t, s.Transition(PhaseOrchestrating, now))
	assert.Zero(t, s.Progress, "progress resets on phase change")
}

func TestStoreRestoreAndRetention(t *testing.T) {
	clock := clockwork.NewFakeClock()
	st := NewStore(clock)
	r := st.Restore("sess-old", "k", "h")
	assert.Equal(t, PhaseReady, r.Phase)
	assert.True(t, r.Restored)

	live := st.Create("k2", "h2")
	clock.Advance(time.Hour)

	old := st.TerminalBefore(clock.Now())
	require.Len(t, old, 1)
	assert.Equal(t, "sess-old", old[0].ID)

	st.Delete("sess-old")
	st.Delete("missing")
	assert.Len(t, st.List(), 1)
	_, ok := st.Get(live.ID)
	assert.True(t, ok)

	_, err := st.Update("missing", func(*Session, time.Time) error { return nil })
	assert.True(t, errors.Is(err, ErrNotFound))
}
