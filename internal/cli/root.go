// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the gymsync developer command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/app"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/config"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/identity"
)

type options struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "gymsync",
		Short: "Offline-first gym tracker storage and sync",
		Long: `gymsync drives the gym tracker's local database and its sync engine
from the command line, and runs the sync backend.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger, err = newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(opts.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: ./gymsync.yaml)")

	root.AddCommand(
		newMigrateCommand(opts),
		newStatusCommand(opts),
		newPushCommand(opts),
		newPullCommand(opts),
		newServeCommand(opts),
		newTokenCommand(opts),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
}

func (o *options) openApp(ctx context.Context) (*app.App, error) {
	return app.Open(ctx, app.Options{
		DBPath:      o.cfg.DBPath,
		CachePath:   o.cfg.CachePath,
		ServerURL:   o.cfg.ServerURL,
		HTTPTimeout: o.cfg.HTTPTimeout,
		Logger:      o.logger,
	})
}

// session parses the configured access token.
func (o *options) session() (*identity.Session, error) {
	if o.cfg.AccessToken == "" {
		return nil, fmt.Errorf("access_token is not configured (set GYMSYNC_ACCESS_TOKEN)")
	}
	return identity.FromToken(o.cfg.AccessToken)
}
