package daemon

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/build"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/cache"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/config"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/eventstore"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/fetch"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/generate"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/logfields"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/metrics"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/progress"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/quality"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/session"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/stage"
)

// StackOptions override the collaborators Assemble would otherwise create.
type StackOptions struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	Registry   *prom.Registry
	HTTPClient *http.Client
}

// Stack is an orchestrator together with the resources it owns.
type Stack struct {
	Orchestrator *build.Orchestrator
	Registry     *prom.Registry

	logger  *slog.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Assemble builds the orchestrator described by cfg: cache backend, artifact
// store, progress bus with its durable and mirrored sinks, fetcher,
// generator and stage table.
func Assemble(ctx context.Context, cfg *config.Config, opts StackOptions) (st *Stack, err error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Registry == nil {
		opts.Registry = prom.NewRegistry()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	st = &Stack{Registry: opts.Registry, logger: opts.Logger}
	defer func() {
		if err != nil {
			_ = st.Close()
		}
	}()

	c, err := st.newCache(ctx, cfg.Cache, opts.Clock)
	if err != nil {
		return nil, err
	}

	store, err := artifact.NewFSStore(cfg.Artifacts.Dir)
	if err != nil {
		return nil, err
	}
	if err := store.PurgeStaging(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		opts.Logger.Warn("Failed to purge artifact staging", logfields.Error(err))
	}

	busOpts := []progress.Option{progress.WithClock(opts.Clock), progress.WithLogger(opts.Logger)}
	orchOpts := []build.Option{}
	if path := cfg.Progress.EventStore; path != "" {
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, errors.WrapError(err, errors.CategoryEventStore, "create event store directory").
					WithContext("path", path).Build()
			}
		}
		es, err := eventstore.NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		st.onClose("eventstore", es.Close)
		sink := progress.NewStoreSink(es)
		busOpts = append(busOpts, progress.WithSinks(sink), progress.WithHistory(sink))
		orchOpts = append(orchOpts, build.WithHistoryPurger(sink))
	}
	if url := cfg.Progress.NATSURL; url != "" {
		sink, err := progress.NewNATSSink(url, cfg.Progress.SubjectPrefix, opts.Logger)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryEventStore, "connect progress mirror").
				WithContext("url", url).Build()
		}
		st.onClose("nats", sink.Close)
		busOpts = append(busOpts, progress.WithSinks(sink))
	}

	fetcher, err := fetch.New(cfg.Fetch, opts.HTTPClient)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "create fetcher").Build()
	}
	gen, err := generate.New(cfg.Generate, cfg.Generate.Stylesheet, opts.HTTPClient)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "create generator").Build()
	}

	table := stage.DefaultTable(quality.Options{
		RequiredCDN:         cfg.Quality.RequiredCDN,
		MaxInlineStyleRatio: cfg.Quality.MaxInlineStyleRatio,
	}, cfg.Build.IsCritical)

	orchOpts = append(orchOpts,
		build.WithClock(opts.Clock),
		build.WithLogger(opts.Logger),
		build.WithRecorder(metrics.NewPrometheusRecorder(opts.Registry)),
		build.WithSettings(build.SettingsFromConfig(cfg)),
	)
	o, err := build.New(build.Deps{
		Sessions:  session.NewStore(opts.Clock),
		Cache:     c,
		Artifacts: store,
		Bus:       progress.NewBus(busOpts...),
		Fetcher:   fetcher,
		Generator: gen,
		Stages:    table,
	}, orchOpts...)
	if err != nil {
		return nil, err
	}
	st.Orchestrator = o

	opts.Logger.Info("Build stack assembled",
		slog.String("cache", string(cfg.Cache.Backend)),
		slog.String("fetch", string(cfg.Fetch.Mode)),
		slog.String("generate", string(cfg.Generate.Mode)),
		slog.Any("stages", table.Names()))
	return st, nil
}

func (st *Stack) newCache(ctx context.Context, cfg config.CacheConfig, clock clockwork.Clock) (cache.Cache, error) {
	if cfg.Backend != config.CacheRedis {
		return cache.NewMemoryCache(cfg.Capacity, clock), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.WrapError(err, errors.CategoryCache, "connect to redis").
			WithContext("addr", cfg.Redis.Addr).Build()
	}
	st.onClose("redis", rdb.Close)
	return cache.NewRedisCache(rdb, cfg.Redis.Prefix, cfg.Capacity, clock), nil
}

func (st *Stack) onClose(name string, fn func() error) {
	st.closers = append(st.closers, namedCloser{name: name, close: fn})
}

// Shutdown cancels running builds, waits for them until ctx ends and then
// releases the stack's resources.
func (st *Stack) Shutdown(ctx context.Context) error {
	var errs []error
	if st.Orchestrator != nil {
		if err := st.Orchestrator.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := st.Close(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

// Close releases resources in reverse order of acquisition.
func (st *Stack) Close() error {
	var errs []error
	for i := len(st.closers) - 1; i >= 0; i-- {
		c := st.closers[i]
		if err := c.close(); err != nil {
			st.logger.Warn("Failed to close resource", logfields.Component(c.name), logfields.Error(err))
			errs = append(errs, err)
		}
	}
	st.closers = nil
	return stderrors.Join(errs...)
}
