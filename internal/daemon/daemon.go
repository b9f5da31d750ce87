// Package daemon runs landingd as a long-lived service: the HTTP API over an
// assembled build stack, the janitor schedule and configuration hot reload.
package daemon

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/api"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/build"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/config"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/logfields"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/metrics"
)

// Status represents the current state of the daemon
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// Options configure a Daemon.
type Options struct {
	// ConfigPath enables hot reload of the file when set.
	ConfigPath     string
	ReloadDebounce time.Duration
	Logger         *slog.Logger
	Clock          clockwork.Clock
}

// Daemon represents the main daemon service
type Daemon struct {
	cfg       atomic.Pointer[config.Config]
	threshold atomic.Int64
	status    atomic.Value // Status
	opts      Options
	logger    *slog.Logger

	stack     *Stack
	server    *api.Server
	scheduler *Scheduler
	watcher   *ConfigWatcher

	mu   sync.Mutex
	addr net.Addr
}

// New assembles the build stack and the API server described by cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Daemon{opts: opts, logger: opts.Logger.With(logfields.Component("daemon"))}
	d.cfg.Store(cfg)
	d.threshold.Store(cfg.Artifacts.InlineThreshold)
	d.status.Store(StatusStopped)

	stack, err := Assemble(ctx, cfg, StackOptions{Logger: opts.Logger, Clock: opts.Clock})
	if err != nil {
		return nil, err
	}
	d.stack = stack

	d.server = api.NewServer(cfg.Server, stack.Orchestrator,
		api.WithLogger(opts.Logger.With(logfields.Component("api"))),
		api.WithMetricsHandler(metrics.HTTPHandler(stack.Registry)),
		api.WithInlineThreshold(d.InlineThreshold),
	)

	d.scheduler, err = NewScheduler(opts.Clock, opts.Logger)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}

	if opts.ConfigPath != "" {
		d.watcher, err = NewConfigWatcher(opts.ConfigPath, d, opts.ReloadDebounce, opts.Logger)
		if err != nil {
			_ = d.scheduler.Stop()
			_ = stack.Close()
			return nil, err
		}
	}
	return d, nil
}

// Orchestrator returns the daemon's orchestrator.
func (d *Daemon) Orchestrator() *build.Orchestrator { return d.stack.Orchestrator }

// Config returns the configuration currently in effect.
func (d *Daemon) Config() *config.Config { return d.cfg.Load() }

// InlineThreshold is the current artifact inline threshold in bytes.
func (d *Daemon) InlineThreshold() int64 { return d.threshold.Load() }

// Status returns the lifecycle state.
func (d *Daemon) Status() Status { return d.status.Load().(Status) }

// Addr returns the listening address once Run has bound it.
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Run serves until ctx is cancelled or the listener fails, then shuts every
// component down. A clean stop returns nil.
func (d *Daemon) Run(ctx context.Context) error {
	d.status.Store(StatusStarting)
	cfg := d.Config()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		d.status.Store(StatusStopped)
		_ = d.stack.Close()
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}
	d.mu.Lock()
	d.addr = ln.Addr()
	d.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	if _, err := d.scheduler.ScheduleJanitor(gctx, d.stack.Orchestrator, cfg.Janitor.Interval, cfg.Janitor.Retention); err != nil {
		_ = ln.Close()
		_ = d.stack.Close()
		return err
	}
	d.scheduler.Start()
	if d.watcher != nil {
		if err := d.watcher.Start(gctx); err != nil {
			d.logger.Warn("Config hot reload disabled", logfields.Error(err))
			d.watcher = nil
		}
	}

	g.Go(func() error {
		err := d.server.Serve(ln)
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return d.shutdown()
	})

	d.status.Store(StatusRunning)
	d.logger.Info("landingd listening", slog.String("addr", ln.Addr().String()))
	err = g.Wait()
	d.status.Store(StatusStopped)
	return err
}

func (d *Daemon) shutdown() error {
	d.status.Store(StatusStopping)
	timeout := d.Config().Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.scheduler.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := d.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := d.stack.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	d.logger.Info("landingd stopped")
	return stderrors.Join(errs...)
}

// Reload applies the settings that are safe to change while running:
// artifacts.inline_threshold, build.max_attempts and build.best_policy.
// Other differences are logged and take effect on restart.
func (d *Daemon) Reload(next *config.Config) error {
	if next == nil {
		return fmt.Errorf("configuration is required")
	}
	prev := d.Config()
	if next.Version != prev.Version {
		return fmt.Errorf("configuration version change requires daemon restart")
	}

	d.threshold.Store(next.Artifacts.InlineThreshold)
	d.stack.Orchestrator.Configure(func(s *build.Settings) {
		s.MaxAttempts = next.Build.MaxAttempts
		s.BestPolicy = next.Build.BestPolicy
	})

	for _, field := range restartOnly(prev, next) {
		d.logger.Warn("Configuration change requires restart", slog.String("field", field))
	}

	live := *prev
	live.Artifacts.InlineThreshold = next.Artifacts.InlineThreshold
	live.Build.MaxAttempts = next.Build.MaxAttempts
	live.Build.BestPolicy = next.Build.BestPolicy
	d.cfg.Store(&live)

	d.logger.Info("Configuration applied",
		slog.Int64("inline_threshold", next.Artifacts.InlineThreshold),
		slog.Int("max_attempts", next.Build.MaxAttempts),
		slog.String("best_policy", string(next.Build.BestPolicy)))
	return nil
}

// restartOnly names the sections that changed but are not hot reloadable.
func restartOnly(prev, next *config.Config) []string {
	var out []string
	if prev.Server != next.Server {
		out = append(out, "server")
	}
	if prev.Cache.Backend != next.Cache.Backend || prev.Cache.Redis != next.Cache.Redis || prev.Cache.Capacity != next.Cache.Capacity {
		out = append(out, "cache")
	}
	if prev.Artifacts.Dir != next.Artifacts.Dir {
		out = append(out, "artifacts.dir")
	}
	if prev.Progress != next.Progress {
		out = append(out, "progress")
	}
	if prev.Fetch != next.Fetch {
		out = append(out, "fetch")
	}
	if prev.Generate != next.Generate {
		out = append(out, "generate")
	}
	if prev.Quality != next.Quality {
		out = append(out, "quality")
	}
	if prev.Janitor != next.Janitor {
		out = append(out, "janitor")
	}
	return out
}
