// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package syncer pushes dirty local rows to the remote store and pulls the
// user's remote rows back into the local database.
//
// Passes are row-level and idempotent: a row that fails to push stays dirty
// and is retried by the next pass, and pulled rows are merged with remote
// winning. At most one pass runs per user at a time; triggers that arrive
// while a pass is in flight collapse into a single trailing re-run.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/identity"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/kvcache"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/media"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/remote"
)

// ConflictPolicy is the policy the remote applies to pushed rows.
var ConflictPolicy remote.ConflictPolicy = remote.RowLastWriteWins

// Config holds syncer settings.
type Config struct {
	Tables         []localdb.SyncTable // parents first
	PassTimeout    time.Duration       // bound for one triggered pass
	Clock          func() time.Time
	Metrics        PassMetricsRecorder
	LogPassTimings bool
}

// DefaultConfig returns a configuration syncing every local table.
func DefaultConfig() *Config {
	return &Config{
		Tables:      localdb.SyncTables,
		PassTimeout: 2 * time.Minute,
		Clock:       time.Now,
	}
}

// Deps are the collaborators of a Syncer. Media and Cache are optional.
type Deps struct {
	Local    *localdb.Store
	Remote   remote.Store
	Media    *media.Externalizer
	Identity identity.Provider
	Cache    *kvcache.SessionCache
}

// Syncer runs push and pull passes for signed-in users.
type Syncer struct {
	local    *localdb.Store
	remote   remote.Store
	media    *media.Externalizer
	identity identity.Provider
	cache    *kvcache.SessionCache
	config   *Config
	clock    func() time.Time
	logger   *slog.Logger

	passMu sync.Mutex // one push or pull pass at a time
	pulls  singleflight.Group

	// Pause switches (atomic)
	pushPaused int32
	pullPaused int32

	loopMu sync.Mutex
	loops  map[string]*pushLoop
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type pushLoop struct {
	rerun bool
	done  chan struct{}
}

// New creates a Syncer. A nil config means DefaultConfig and a nil logger
// means slog.Default.
func New(deps Deps, config *Config, logger *slog.Logger) (*Syncer, error) {
	if deps.Local == nil {
		return nil, errors.New("local store cannot be nil")
	}
	if deps.Remote == nil {
		return nil, errors.New("remote store cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if len(config.Tables) == 0 {
		config.Tables = localdb.SyncTables
	}
	if config.PassTimeout <= 0 {
		config.PassTimeout = 2 * time.Minute
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		local:    deps.Local,
		remote:   deps.Remote,
		media:    deps.Media,
		identity: deps.Identity,
		cache:    deps.Cache,
		config:   config,
		clock:    config.Clock,
		logger:   logger,
		loops:    make(map[string]*pushLoop),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// PausePush suspends push passes; PushChanges returns nil while paused.
func (s *Syncer) PausePush() { atomic.StoreInt32(&s.pushPaused, 1) }

// ResumePush resumes push passes.
func (s *Syncer) ResumePush() { atomic.StoreInt32(&s.pushPaused, 0) }

// PausePull suspends pull passes.
func (s *Syncer) PausePull() { atomic.StoreInt32(&s.pullPaused, 1) }

// ResumePull resumes pull passes.
func (s *Syncer) ResumePull() { atomic.StoreInt32(&s.pullPaused, 0) }

// authorized checks that the signed-in user is exactly userID. Mismatches
// are logged and reported as false; nothing is returned to the caller.
func (s *Syncer) authorized(ctx context.Context, op, userID string) bool {
	ok, current, err := identity.Matches(ctx, s.identity, userID)
	switch {
	case err != nil:
		s.logger.Warn("Sync skipped: cannot read session", "op", op, "user_id", userID, "error", err)
		return false
	case ok:
		return true
	case current == "":
		s.logger.Debug("Sync skipped: no active session", "op", op, "user_id", userID)
		return false
	default:
		s.logger.Warn("Sync skipped: session belongs to another user",
			"op", op, "user_id", userID, "session_user_id", current)
		return false
	}
}

// Trigger schedules a push for userID and returns immediately. If a pass for
// the user is already running, one more pass runs after it finishes no
// matter how many triggers arrive in between. Errors are logged only.
func (s *Syncer) Trigger(userID string) {
	if userID == "" {
		return
	}
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if l, ok := s.loops[userID]; ok {
		l.rerun = true
		return
	}
	l := &pushLoop{done: make(chan struct{})}
	s.loops[userID] = l
	s.wg.Add(1)
	go s.runLoop(userID, l)
}

func (s *Syncer) runLoop(userID string, l *pushLoop) {
	defer s.wg.Done()
	for {
		ctx, cancel := context.WithTimeout(s.ctx, s.config.PassTimeout)
		if err := s.PushChanges(ctx, userID); err != nil {
			s.logger.Error("Background push failed", "user_id", userID, "error", err)
		}
		cancel()

		s.loopMu.Lock()
		if l.rerun && s.ctx.Err() == nil {
			l.rerun = false
			s.loopMu.Unlock()
			continue
		}
		delete(s.loops, userID)
		close(l.done)
		s.loopMu.Unlock()
		return
	}
}

// Flush triggers a push for userID and waits until the user's pass loop,
// including any trailing re-run, is idle.
func (s *Syncer) Flush(ctx context.Context, userID string) error {
	s.Trigger(userID)
	return s.wait(ctx, userID)
}

func (s *Syncer) wait(ctx context.Context, userID string) error {
	s.loopMu.Lock()
	l := s.loops[userID]
	s.loopMu.Unlock()
	if l == nil {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight background passes and waits for them to stop.
func (s *Syncer) Close() {
	s.loopMu.Lock()
	s.cancel()
	s.loopMu.Unlock()
	s.wg.Wait()
}
