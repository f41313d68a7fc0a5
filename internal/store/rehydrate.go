package store

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/farkleio/tablecore/internal/domain"
)

// Store pairs the in-memory World with a PersistenceAdapter and exposes
// the operations callers use to keep the two in sync: plain access to
// World, PersistStore, and RehydrateStoreFromAdapter.
type Store struct {
	World *World
	Adapter PersistenceAdapter

	rehydrateGroup singleflight.Group // dedups concurrent Load() calls
}

// New wires a Store over an existing World and adapter.
func New(world *World, adapter PersistenceAdapter) *Store {
	return &Store{World: world, Adapter: adapter}
}

// PersistStore is idempotent: callers may invoke it after every
// mutation without the core relying on any ordering guarantee beyond
// "eventually durable".
func (s *Store) PersistStore(ctx context.Context) error {
	return s.Adapter.Save(ctx, s.World.Snapshot())
}

// RehydrateOpts controls RehydrateStoreFromAdapter.
type RehydrateOpts struct {
	Force bool
}

// RehydrateStoreFromAdapter reloads from persistence, merging anything
// missing from the in-memory World. reason is a free-form diagnostic
// string (e.g. "sessionStandard:sess-1:attempt_2") logged but not
// otherwise interpreted. Concurrent calls are deduplicated via
// singleflight so N callers racing a cold session trigger one Load().
func (s *Store) RehydrateStoreFromAdapter(ctx context.Context, reason string, opts RehydrateOpts) error {
	_, err, _ := s.rehydrateGroup.Do("rehydrate", func() (interface{}, error) {
		slog.Debug("rehydrating store from adapter", "reason", reason, "force", opts.Force)
		snap, err := s.Adapter.Load(ctx)
		if err != nil {
			slog.Warn("rehydrate failed", "reason", reason, "error", err)
			return nil, err
		}
		s.World.MergeMissing(snap)
		return nil, nil
	})
	return err
}

// RetryProfile is a named (attempts, baseDelay) backoff tuple. The set
// of profiles is closed — see the Profile* vars below.
type RetryProfile struct {
	Name string
	Attempts int
	BaseDelay time.Duration
}

var (
	ProfileSessionStandard = RetryProfile{Name: "sessionStandard", Attempts: 6, BaseDelay: 150 * time.Millisecond}
	ProfileSessionFast = RetryProfile{Name: "sessionFast", Attempts: 4, BaseDelay: 120 * time.Millisecond}
	ProfileSessionRefreshAuth = RetryProfile{Name: "sessionRefreshAuth", Attempts: 7, BaseDelay: 200 * time.Millisecond}
	ProfileAuthRecovery = RetryProfile{Name: "authRecovery", Attempts: 5, BaseDelay: 160 * time.Millisecond}
	ProfileSessionLeave = RetryProfile{Name: "sessionLeave", Attempts: 3, BaseDelay: 100 * time.Millisecond}
)

// sleep is a package-level var so tests can stub out the backoff delay.
var sleep = time.Sleep

// RehydrateSessionWithRetry performs at most profile.Attempts lookups: if
// the session is absent it sleeps baseDelay*attemptIndex (linear) then
// invokes RehydrateStoreFromAdapter with a force reload. Blank
// sessionID short-circuits to nil without touching the adapter.
func (s *Store) RehydrateSessionWithRetry(ctx context.Context, sessionID, reasonPrefix string, profile RetryProfile) *domain.Session {
	if sessionID == "" {
		return nil
	}
	for attempt := 1; attempt <= profile.Attempts; attempt++ {
		if sess := s.World.GetSession(sessionID); sess != nil {
			return sess
		}
		sleep(profile.BaseDelay * time.Duration(attempt))
		reason := reasonPrefix + ":" + sessionID + ":attempt_" + strconv.Itoa(attempt)
		if err := s.RehydrateStoreFromAdapter(ctx, reason, RehydrateOpts{Force: true}); err != nil {
			slog.Warn("session rehydrate attempt failed", "session_id", sessionID, "attempt", attempt, "error", err)
		}
	}
	return s.World.GetSession(sessionID)
}

// RehydrateSessionParticipantWithRetry has the same backoff shape as
// RehydrateSessionWithRetry but also resolves the participant within
// the session, returning both or nil,nil on blank inputs.
func (s *Store) RehydrateSessionParticipantWithRetry(ctx context.Context, sessionID, playerID, reasonPrefix string, profile RetryProfile) (*domain.Session, *domain.Participant) {
	if sessionID == "" || playerID == "" {
		return nil, nil
	}
	for attempt := 1; attempt <= profile.Attempts; attempt++ {
		if sess := s.World.GetSession(sessionID); sess != nil {
			if p, ok := sess.Participants[playerID]; ok {
				return sess, p
			}
		}
		sleep(profile.BaseDelay * time.Duration(attempt))
		reason := reasonPrefix + ":" + sessionID + ":" + playerID + ":attempt_" + strconv.Itoa(attempt)
		if err := s.RehydrateStoreFromAdapter(ctx, reason, RehydrateOpts{Force: true}); err != nil {
			slog.Warn("participant rehydrate attempt failed", "session_id", sessionID, "player_id", playerID, "attempt", attempt, "error", err)
		}
	}
	sess := s.World.GetSession(sessionID)
	if sess == nil {
		return nil, nil
	}
	return sess, sess.Participants[playerID]
}
