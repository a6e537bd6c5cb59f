// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/server"
)

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the local database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := localdb.Open(ctx, opts.cfg.DBPath, &localdb.Options{Logger: opts.logger})
			if err != nil {
				return err
			}
			defer store.Close()
			version, err := localdb.SchemaVersion(ctx, store.DB())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", opts.cfg.DBPath, version)
			return nil
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show unsynced rows and last sync times",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session, err := opts.session()
			if err != nil {
				return err
			}
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			counts, err := a.Local.DirtyCounts(ctx, session.User.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user: %s\n", session.User.ID)
			tables := make([]string, 0, len(counts))
			for t := range counts {
				tables = append(tables, t)
			}
			sort.Strings(tables)
			for _, t := range tables {
				fmt.Fprintf(out, "  %-16s %d unsynced\n", t, counts[t])
			}
			for _, last := range []struct {
				label string
				get   func(context.Context) (time.Time, bool, error)
			}{
				{"last push", a.Cache.LastPush},
				{"last pull", a.Cache.LastPull},
			} {
				at, ok, err := last.get(ctx)
				switch {
				case err != nil:
					return err
				case ok:
					fmt.Fprintf(out, "%s: %s\n", last.label, localdb.FormatTime(at))
				default:
					fmt.Fprintf(out, "%s: never\n", last.label)
				}
			}
			return nil
		},
	}
}

func newPushCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push every unsynced local row to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session, err := opts.session()
			if err != nil {
				return err
			}
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			a.Identity.Set(session)
			if err := a.Syncer.PushChanges(ctx, session.User.ID); err != nil {
				return err
			}
			counts, err := a.Local.DirtyCounts(ctx, session.User.ID)
			if err != nil {
				return err
			}
			left := 0
			for _, n := range counts {
				left += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "push finished, %d rows still unsynced\n", left)
			return nil
		},
	}
}

func newPullCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Sign in with the configured token and pull the account's data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session, err := opts.session()
			if err != nil {
				return err
			}
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			active, err := a.SignIn(ctx, session)
			if err != nil {
				return err
			}
			workouts, err := a.Local.ListWorkouts(ctx, session.User.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d workouts on device\n", len(workouts))
			if active != nil {
				fmt.Fprintf(out, "resumed session %s (%s), %d sets logged\n", active.ID, active.WorkoutName, len(active.Logs))
			}
			return nil
		},
	}
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.cfg.ValidateServer(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sc := opts.cfg.Server
			components, err := server.SetupServer(ctx, &server.ServerConfig{
				DatabaseURL:    sc.DatabaseURL,
				JWTSecret:      sc.JWTSecret,
				BlobDir:        sc.BlobDir,
				TokenTTL:       sc.TokenTTL,
				MaxUploadBytes: sc.MaxUploadBytes,
				DevSignIn:      sc.DevSignIn,
				LogRequests:    sc.LogRequests,
				Logger:         opts.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to setup server: %w", err)
			}
			defer components.Close()

			httpServer := &http.Server{
				Addr:         sc.Listen,
				Handler:      components.Handler,
				ReadTimeout:  2 * time.Minute,
				WriteTimeout: 2 * time.Minute,
				IdleTimeout:  60 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				components.Logger.Info("Starting sync server", "addr", httpServer.Addr, "dev_sign_in", sc.DevSignIn)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			components.Logger.Info("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			components.Logger.Info("Server exited")
			return nil
		},
	}
}

func newTokenCommand(opts *options) *cobra.Command {
	var (
		email       string
		unconfirmed bool
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an access token signed with server.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret is not configured")
			}
			if ttl <= 0 {
				ttl = opts.cfg.Server.TokenTTL
			}
			var confirmedAt *time.Time
			if !unconfirmed {
				now := time.Now()
				confirmedAt = &now
			}
			tok, err := server.NewJWTAuth(opts.cfg.Server.JWTSecret).GenerateToken(args[0], email, confirmedAt, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().BoolVar(&unconfirmed, "unconfirmed", false, "omit email_confirmed_at")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default server.token_ttl)")
	return cmd
}
