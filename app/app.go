// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package app wires the local store, the session cache, the sync engine and
// the workout tracker into one client and drives the account lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/identity"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/kvcache"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/media"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/metrics"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/remote"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/syncer"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/tracker"
)

// Options configures Open. Remote and Storage replace the HTTP clients built
// from ServerURL.
type Options struct {
	DBPath      string
	CachePath   string
	ServerURL   string
	HTTPTimeout time.Duration

	Remote  remote.Store
	Storage media.Storage
	Source  media.Source
	Metrics *metrics.Collectors

	Clock  func() time.Time
	Logger *slog.Logger
}

// App is the client side of the gym tracker.
type App struct {
	Local    *localdb.Store
	KV       *kvcache.Store
	Cache    *kvcache.SessionCache
	Identity *identity.Holder
	Syncer   *syncer.Syncer
	Tracker  *tracker.Tracker

	logger *slog.Logger
}

// Open opens both databases, migrating the relational one, and wires the
// sync engine so every local mutation schedules a push. A migration failure
// is returned and nothing stays open.
func Open(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	local, err := localdb.Open(ctx, opts.DBPath, &localdb.Options{Logger: logger, Clock: clock})
	if err != nil {
		return nil, err
	}
	kv, err := kvcache.Open(ctx, opts.CachePath)
	if err != nil {
		_ = local.Close()
		return nil, err
	}
	cache := kvcache.NewSessionCache(kv)
	holder := identity.NewHolder()

	rem := opts.Remote
	if rem == nil {
		rem = remote.NewHTTPStore(opts.ServerURL, holder.Token, opts.HTTPTimeout)
	}
	storage := opts.Storage
	if storage == nil {
		storage = media.NewHTTPStorage(opts.ServerURL, holder.Token, 0)
	}
	mediaOpts := []media.Option{media.WithLogger(logger)}
	if opts.Source != nil {
		mediaOpts = append(mediaOpts, media.WithSource(opts.Source))
	}

	syncConfig := syncer.DefaultConfig()
	syncConfig.Clock = clock
	if opts.Metrics != nil {
		syncConfig.Metrics = opts.Metrics
		mediaOpts = append(mediaOpts, media.WithRecorder(opts.Metrics))
	}

	sy, err := syncer.New(syncer.Deps{
		Local:    local,
		Remote:   rem,
		Media:    media.NewExternalizer(storage, mediaOpts...),
		Identity: holder,
		Cache:    cache,
	}, syncConfig, logger)
	if err != nil {
		_ = kv.Close()
		_ = local.Close()
		return nil, err
	}
	local.OnChange(sy.Trigger)

	return &App{
		Local:    local,
		KV:       kv,
		Cache:    cache,
		Identity: holder,
		Syncer:   sy,
		Tracker:  tracker.New(local, cache, &tracker.Options{Logger: logger, Clock: clock}),
		logger:   logger,
	}, nil
}

// Close stops background passes and closes both databases.
func (a *App) Close() error {
	a.Syncer.Close()
	return errors.Join(a.KV.Close(), a.Local.Close())
}

// UserID returns the signed-in user, empty when signed out.
func (a *App) UserID(ctx context.Context) string {
	s, _ := a.Identity.Session(ctx)
	if s == nil {
		return ""
	}
	return s.User.ID
}

// SignIn adopts session, pulls the account's data and restores an
// interrupted workout. Accounts with an unconfirmed email are refused and
// leave the app signed out. A failed pull is logged; the local data stays
// usable and the next sign-in pulls again.
func (a *App) SignIn(ctx context.Context, session *identity.Session) (*tracker.ActiveSession, error) {
	if session == nil || session.User.ID == "" {
		return nil, identity.ErrNoSession
	}
	if !session.User.Confirmed() {
		a.Identity.Clear()
		a.logger.Info("Sign-in refused: email not confirmed", "user_id", session.User.ID)
		return nil, identity.ErrEmailNotConfirmed
	}
	a.Identity.Set(session)
	userID := session.User.ID
	a.logger.Info("Signed in", "user_id", userID)

	if err := a.Syncer.PullData(ctx, userID); err != nil {
		a.logger.Error("Initial pull failed", "user_id", userID, "error", err)
	}

	active, err := a.Tracker.Hydrate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore active session: %w", err)
	}
	return active, nil
}

// SignInWithToken signs in with an access token issued by the backend.
func (a *App) SignInWithToken(ctx context.Context, token string) (*tracker.ActiveSession, error) {
	session, err := identity.FromToken(token)
	if err != nil {
		return nil, err
	}
	return a.SignIn(ctx, session)
}

// SignOut pushes what is still dirty, then wipes every local row and cached
// setting so the next account starts clean. Data that could not be pushed is
// lost; the error of the final push is only logged.
func (a *App) SignOut(ctx context.Context) error {
	if userID := a.UserID(ctx); userID != "" {
		if err := a.Syncer.Flush(ctx, userID); err != nil {
			a.logger.Warn("Final push before sign-out did not finish", "user_id", userID, "error", err)
		}
		if counts, err := a.Local.DirtyCounts(ctx, userID); err == nil {
			for table, n := range counts {
				if n > 0 {
					a.logger.Warn("Discarding unsynced rows on sign-out", "table", table, "rows", n)
				}
			}
		}
	}

	a.Tracker.Reset()
	var errs []error
	if err := a.Cache.PurgeSettings(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to purge settings: %w", err))
	}
	if err := a.Local.PurgeAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to purge local data: %w", err))
	}
	a.Identity.Clear()
	a.logger.Info("Signed out")
	return errors.Join(errs...)
}
