package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/daemon"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr    string `help:"Listen address (overrides server.addr)"`
	NoWatch bool   `name:"no-watch" help:"Do not reload the configuration file when it changes"`
}

func (s *ServeCmd) Run(root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if s.Addr != "" {
		cfg.Server.Addr = s.Addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := daemon.Options{Logger: slog.Default()}
	if !s.NoWatch {
		opts.ConfigPath = root.Config
	}
	d, err := daemon.New(ctx, cfg, opts)
	if err != nil {
		return err
	}

	slog.Info("Starting landingd", slog.String("addr", cfg.Server.Addr))
	return d.Run(ctx)
}
