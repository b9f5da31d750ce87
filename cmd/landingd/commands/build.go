package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/daemon"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/logfields"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/progress"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/session"
)

// BuildCmd implements the 'build' command: one build against the configured
// stack, with progress printed as it happens.
type BuildCmd struct {
	Key     string        `arg:"" help:"Key of the place to build"`
	Input   string        `short:"i" help:"JSON file with input fields that override fetched data" type:"existingfile"`
	Output  string        `short:"o" help:"Directory the page and its files are written to" default:"./out"`
	Timeout time.Duration `help:"Give up after this long" default:"5m"`

	out io.Writer `kong:"-"`
}

func (b *BuildCmd) Run(root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	input, err := readInput(b.Input)
	if err != nil {
		return err
	}
	out := b.out
	if out == nil {
		out = os.Stdout
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, b.Timeout)
	defer cancelTimeout()

	st, err := daemon.Assemble(ctx, cfg, daemon.StackOptions{Logger: slog.Default()})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer done()
		_ = st.Shutdown(shutdownCtx)
	}()
	o := st.Orchestrator

	id, err := o.StartBuild(ctx, b.Key, input)
	if err != nil {
		return err
	}
	events, err := o.Subscribe(ctx, id)
	if err != nil {
		return err
	}

	var last progress.Event
	for e := range events {
		printEvent(out, e)
		last = e
	}
	if !last.Terminal() {
		_ = o.Cancel(id)
		return errors.RuntimeError("build interrupted").
			WithContext("session_id", id).
			WithCause(ctx.Err()).
			Build()
	}
	if last.Phase == session.PhaseError {
		return failureError(id, last.Failure)
	}

	bundle, err := o.GetArtifact(ctx, id)
	if err != nil {
		return err
	}
	if err := writeBundle(b.Output, bundle, cfg.Artifacts.InlineThreshold); err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %s\n", filepath.Join(b.Output, artifact.PrimaryPath))
	if last.Degraded {
		fmt.Fprintf(out, "Degraded: %d unresolved violation(s)\n", len(last.Violations))
		for _, v := range last.Violations {
			fmt.Fprintf(out, "  %s [%s] %s\n", v.Code, v.Severity, v.Hint)
		}
	}
	slog.Info("Build finished", logfields.SessionID(id), logfields.BuildKey(b.Key), logfields.Degraded(last.Degraded))
	return nil
}

func printEvent(w io.Writer, e progress.Event) {
	line := fmt.Sprintf("%-13s %3.0f%%  %s", e.Phase, e.Progress*100, e.Step)
	if e.Detail != "" {
		line += " (" + e.Detail + ")"
	}
	fmt.Fprintln(w, line)
}

func readInput(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ValidationError("input file not readable").WithCause(err).WithContext("path", path).Build()
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, errors.ValidationError("input file is not a JSON object").WithCause(err).WithContext("path", path).Build()
	}
	return input, nil
}

// failureError turns a recorded build failure into a classified error so the
// CLI adapter can pick the exit code.
func failureError(id string, f *session.Failure) error {
	if f == nil {
		return errors.InternalError("build failed without a recorded failure").WithContext("session_id", id).Build()
	}
	var b *errors.ErrorBuilder
	switch f.Kind {
	case session.FailureFetch:
		b = errors.FetchError(f.Message)
	case session.FailureStageGeneration:
		b = errors.GenerationError(f.Message)
	case session.FailureCancelled:
		b = errors.RuntimeError(f.Message)
	default:
		b = errors.BuildError(f.Message)
	}
	if f.Retryable {
		b = b.Retryable()
	} else {
		b = b.WithRetry(errors.RetryNever)
	}
	b = b.WithContext("session_id", id).WithContext("kind", string(f.Kind))
	if f.Stage != "" {
		b = b.WithContext("stage", f.Stage)
	}
	return b.Build()
}

// writeBundle writes the rendered primary document and every other file of
// the bundle under dir. Files above threshold stay linked by relative path.
func writeBundle(dir string, b artifact.Bundle, threshold int64) error {
	page, err := artifact.Inliner{Threshold: threshold}.Render(b)
	if err != nil {
		return err
	}
	write := func(rel string, content []byte) error {
		if err := artifact.ValidPath(rel); err != nil {
			return err
		}
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return errors.WrapError(err, errors.CategoryStorage, "create output directory").WithContext("path", p).Build()
		}
		if err := os.WriteFile(p, content, 0o644); err != nil {
			return errors.WrapError(err, errors.CategoryStorage, "write output file").WithContext("path", p).Build()
		}
		return nil
	}

	if err := write(artifact.PrimaryPath, page); err != nil {
		return err
	}
	for _, rel := range b.Files.Paths() {
		if rel == artifact.PrimaryPath {
			continue
		}
		if err := write(rel, b.Files[rel].Content); err != nil {
			return err
		}
	}
	return nil
}
