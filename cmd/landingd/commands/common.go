// Package commands implements the landingd command line.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/config"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/version"
)

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"landingd.yaml" env:"LANDINGD_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve ServeCmd `cmd:"" help:"Run the build API server"`
	Build BuildCmd `cmd:"" help:"Build one landing page and write it to a directory"`
	Init  InitCmd  `cmd:"" help:"Initialize a new configuration file"`

	loaded *config.Config `kong:"-"`
	stderr io.Writer      `kong:"-"`
}

// NewParser builds the kong parser for cli.
func NewParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	base := []kong.Option{
		kong.Name("landingd"),
		kong.Description("Landing page build orchestrator."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	}
	return kong.New(cli, append(base, opts...)...)
}

// AfterApply runs after flag parsing; setup logging once. The configuration
// file, when readable, decides format and level; --verbose forces debug.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	format := config.LogFormatText
	if cfg, err := config.Load(c.Config); err == nil {
		c.loaded = cfg
		format = cfg.Logging.Format
		level = slogLevel(cfg.Logging.Level)
	}
	if c.Verbose {
		level = slog.LevelDebug
	}

	w := c.stderr
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// LoadConfig returns the configuration read during AfterApply, or reads it now.
func (c *CLI) LoadConfig() (*config.Config, error) {
	if c.loaded != nil {
		return c.loaded, nil
	}
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	c.loaded = cfg
	return cfg, nil
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
