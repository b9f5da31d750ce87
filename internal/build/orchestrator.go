package build

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/cache"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/fetch"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/logfields"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/metrics"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/progress"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/session"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/stage"
)

// Deps are the collaborators an Orchestrator is built from. All of them are
// shared across builds and must be safe for concurrent use.
type Deps struct {
	Sessions  *session.Store
	Cache     cache.Cache
	Artifacts artifact.Store
	Bus       *progress.Bus
	Fetcher   fetch.Fetcher
	Generator stage.Generator
	Stages    stage.Table
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithClock(c clockwork.Clock) Option        { return func(o *Orchestrator) { o.clock = c } }
func WithLogger(l *slog.Logger) Option          { return func(o *Orchestrator) { o.logger = l } }
func WithRecorder(r metrics.Recorder) Option    { return func(o *Orchestrator) { o.recorder = r } }
func WithSettings(s Settings) Option            { return func(o *Orchestrator) { o.initial = s } }
func WithHistoryPurger(p HistoryPurger) Option  { return func(o *Orchestrator) { o.purger = p } }

// HistoryPurger removes persisted progress history for a session.
type HistoryPurger interface {
	Purge(ctx context.Context, sessionID string) error
}

// Orchestrator runs builds. Create it with New and stop it with Shutdown.
type Orchestrator struct {
	deps     Deps
	clock    clockwork.Clock
	logger   *slog.Logger
	recorder metrics.Recorder
	purger   HistoryPurger
	initial  Settings
	settings atomic.Pointer[Settings]
	sem      *semaphore.Weighted

	ctx    context.Context // parent of every build; cancelled by Shutdown
	stop   context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Int64

	mu       sync.Mutex
	inflight map[string]string // key -> session id
	runs     map[string]*run   // session id -> running build
}

// run is the cancellation token and commit guard of one build. Its mutex
// also serializes session updates with their progress events so the event
// log follows the session's phase order.
type run struct {
	mu         sync.Mutex
	id         string
	key        string
	cancelled  bool
	committing bool
}

// New validates deps and the stage table and returns an idle orchestrator.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Sessions == nil, deps.Cache == nil, deps.Artifacts == nil, deps.Bus == nil:
		return nil, errors.ConfigError("orchestrator requires sessions, cache, artifacts and bus").Build()
	case deps.Fetcher == nil || deps.Generator == nil:
		return nil, errors.ConfigError("orchestrator requires a fetcher and a generator").Build()
	}
	if err := deps.Stages.Validate(); err != nil {
		return nil, errors.ConfigError("invalid stage table").WithCause(err).Build()
	}

	o := &Orchestrator{
		deps:     deps,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		initial:  DefaultSettings(),
		inflight: make(map[string]string),
		runs:     make(map[string]*run),
	}
	for _, opt := range opts {
		opt(o)
	}
	s := o.initial
	o.settings.Store(&s)
	o.sem = semaphore.NewWeighted(int64(max(s.Concurrency, 1)))
	o.ctx, o.stop = context.WithCancel(context.Background())
	return o, nil
}

// Settings returns the settings new builds will use.
func (o *Orchestrator) Settings() Settings { return *o.settings.Load() }

// Configure applies fn to a copy of the current settings and publishes the
// result for builds started afterwards. Concurrency is fixed at New.
func (o *Orchestrator) Configure(fn func(*Settings)) {
	s := o.Settings()
	fn(&s)
	o.settings.Store(&s)
}

// StartBuild returns the session serving key: the in-flight build for key,
// a READY session from the cache when input is unchanged, or a new build.
// It never waits for the build itself.
func (o *Orchestrator) StartBuild(ctx context.Context, key string, input map[string]any) (string, error) {
	if key == "" {
		return "", errors.ValidationError("build key is required").Build()
	}
	hash, err := cache.Digest(input)
	if err != nil {
		return "", errors.ValidationError("build input is not serializable").WithCause(err).Build()
	}
	if id, ok := o.inflightID(key); ok {
		return id, nil
	}
	if id, ok := o.lookupCache(ctx, key, hash); ok {
		return id, nil
	}

	o.mu.Lock()
	if id, ok := o.inflight[key]; ok {
		o.mu.Unlock()
		return id, nil
	}
	sess := o.deps.Sessions.Create(key, hash)
	r := &run{id: sess.ID, key: key}
	o.deps.Bus.Open(sess.ID)
	o.publish(sess, "queued", "")
	o.inflight[key] = sess.ID
	o.runs[sess.ID] = r
	o.wg.Add(1)
	o.mu.Unlock()

	o.logger.Info("build queued", logfields.SessionID(sess.ID), logfields.BuildKey(key))

	go o.execute(r, hash, input, o.Settings())
	return sess.ID, nil
}

func (o *Orchestrator) inflightID(key string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, ok := o.inflight[key]
	return id, ok
}

// lookupCache resolves a cache hit to a READY session. A hit whose session
// record is gone is restored from the stored artifact; a hit without an
// artifact is dropped and treated as a miss.
func (o *Orchestrator) lookupCache(ctx context.Context, key, hash string) (string, bool) {
	id, hit, err := o.deps.Cache.Get(ctx, key, hash)
	if err != nil {
		o.logger.Warn("cache lookup failed", logfields.BuildKey(key), logfields.Error(err))
		hit = false
	}
	o.recorder.IncCacheLookup(hit)
	if !hit {
		return "", false
	}

	_, loadErr := o.deps.Artifacts.Load(ctx, id)
	sess, known := o.deps.Sessions.Get(id)
	switch {
	case loadErr != nil:
	case known && sess.Phase == session.PhaseReady:
		o.recorder.IncBuildOutcome(metrics.BuildOutcomeCached)
		return id, true
	case !known:
		o.restore(id, key, hash)
		o.recorder.IncBuildOutcome(metrics.BuildOutcomeCached)
		return id, true
	}

	o.logger.Info("dropping cache entry without artifact", logfields.BuildKey(key), logfields.SessionID(id))
	if err := o.deps.Cache.Delete(ctx, key); err != nil {
		o.logger.Warn("cache delete failed", logfields.BuildKey(key), logfields.Error(err))
	}
	return "", false
}

func (o *Orchestrator) restore(id, key, hash string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sess, ok := o.deps.Sessions.Get(id); ok && sess.Phase == session.PhaseReady {
		return
	}
	sess := o.deps.Sessions.Restore(id, key, hash)
	o.deps.Bus.Open(id)
	if events, _ := o.deps.Bus.History(id); len(events) == 0 {
		o.publish(sess, sess.Step, "")
	}
	o.logger.Info("session restored from cache", logfields.SessionID(id), logfields.BuildKey(key))
}

// GetState returns a snapshot of the session.
func (o *Orchestrator) GetState(id string) (session.Session, error) {
	sess, ok := o.deps.Sessions.Get(id)
	if !ok {
		return session.Session{}, ErrNotFound.WithContext("session_id", id)
	}
	return sess, nil
}

// Cancel moves a running build to ERROR. Results of calls still in flight
// are discarded when they return. Cancel fails with a conflict for
// terminal sessions and for builds already committing their artifact.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	r, ok := o.runs[id]
	o.mu.Unlock()
	if !ok {
		if _, exists := o.deps.Sessions.Get(id); exists {
			return session.ErrTerminal.WithContext("session_id", id)
		}
		return ErrNotFound.WithContext("session_id", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.committing {
		return ErrCommitting.WithContext("session_id", id)
	}
	failure := classify(CancellationRequested, "", nil)
	sess, err := o.deps.Sessions.Update(id, func(s *session.Session, now time.Time) error {
		return s.Fail(failure, now)
	})
	if err != nil {
		return err
	}
	r.cancelled = true
	o.publishTerminal(sess)

	o.mu.Lock()
	if o.inflight[r.key] == id {
		delete(o.inflight, r.key)
	}
	o.mu.Unlock()
	o.recorder.IncBuildOutcome(metrics.BuildOutcomeCanceled)
	o.logger.Info("build cancelled", logfields.SessionID(id), logfields.BuildKey(r.key))
	return nil
}

// GetArtifact returns the bundle of a READY session, ErrNotReady while the
// build runs and ErrNotFound for unknown or failed sessions.
func (o *Orchestrator) GetArtifact(ctx context.Context, id string) (artifact.Bundle, error) {
	sess, ok := o.deps.Sessions.Get(id)
	if !ok || sess.Phase == session.PhaseError {
		return artifact.Bundle{}, ErrNotFound.WithContext("session_id", id)
	}
	if sess.Phase != session.PhaseReady {
		return artifact.Bundle{}, ErrNotReady.WithContext("session_id", id).WithContext("phase", string(sess.Phase))
	}
	b, err := o.deps.Artifacts.Load(ctx, id)
	if err != nil {
		if errors.HasCategory(err, errors.CategoryNotFound) {
			return artifact.Bundle{}, ErrNotFound.WithContext("session_id", id)
		}
		return artifact.Bundle{}, err
	}
	return b, nil
}

// Subscribe streams the session's progress events from the first one.
func (o *Orchestrator) Subscribe(ctx context.Context, id string) (<-chan progress.Event, error) {
	return o.deps.Bus.Subscribe(ctx, id)
}

// Active returns the number of builds between allocation and a terminal phase.
func (o *Orchestrator) Active() int { return int(o.active.Load()) }

// Shutdown stops accepting work, cancels running builds and waits for their
// goroutines until ctx ends.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for builds: %w", ctx.Err())
	}
}

// publish emits a non-terminal progress event reflecting sess.
func (o *Orchestrator) publish(sess session.Session, step, detail string) {
	ev := progress.Event{Phase: sess.Phase, Step: step, Detail: detail, Progress: sess.Progress}
	if sess.Phase.Terminal() {
		o.publishTerminal(sess)
		return
	}
	if _, err := o.deps.Bus.Publish(context.Background(), sess.ID, ev); err != nil {
		o.logger.Warn("progress publish failed", logfields.SessionID(sess.ID), logfields.Error(err))
	}
}

// publishTerminal emits the READY or ERROR event that closes the stream.
func (o *Orchestrator) publishTerminal(sess session.Session) {
	ev := progress.Event{
		Phase:      sess.Phase,
		Step:       sess.Step,
		Progress:   sess.Progress,
		Degraded:   sess.Degraded,
		Violations: sess.Violations,
		Failure:    sess.Failure,
	}
	if _, err := o.deps.Bus.Publish(context.Background(), sess.ID, ev); err != nil {
		o.logger.Warn("progress publish failed", logfields.SessionID(sess.ID), logfields.Error(err))
	}
}
