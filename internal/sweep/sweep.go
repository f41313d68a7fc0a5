// Package sweep runs two background reconcilers: per-turn timeout
// enforcement and session idle expiry. Both follow the same
// ticker-driven background-worker idiom: a goroutine selected over
// ctx.Done(), never mutating session state without the World's
// single-writer lock and never broadcasting or persisting while still
// holding it.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/farkleio/tablecore/internal/action"
	"github.com/farkleio/tablecore/internal/botengine"
	"github.com/farkleio/tablecore/internal/config"
	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/membership"
	"github.com/farkleio/tablecore/internal/sessionctl"
	"github.com/farkleio/tablecore/internal/store"
	"github.com/farkleio/tablecore/internal/turn"
	"github.com/farkleio/tablecore/internal/wire"
)

// TurnSweeper enforces per-turn timeouts: it emits turn_timeout_warning
// inside the configured warning window, then — once TurnExpiresAt has
// elapsed — either runs the active bot's turn or force-advances a human
// turn, broadcasting turn_auto_advanced alongside the usual turn_end /
// turn_start pair.
type TurnSweeper struct {
	Store *store.Store
	Sockets membership.SocketOrchestrator
	Bots botengine.Engine
	Roller action.DiceRoller
	Cfg config.SessionConfig

	warnedTurn map[string]int // sessionID -> turnNumber already warned
}

// NewTurnSweeper wires a TurnSweeper.
func NewTurnSweeper(st *store.Store, sockets membership.SocketOrchestrator, bots botengine.Engine, roller action.DiceRoller, cfg config.SessionConfig) *TurnSweeper {
	return &TurnSweeper{Store: st, Sockets: sockets, Bots: bots, Roller: roller, Cfg: cfg, warnedTurn: make(map[string]int)}
}

// Run blocks, sweeping every interval until ctx is canceled.
func (s *TurnSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("turn sweeper started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			s.tick(time.Now())
		case <-ctx.Done():
			slog.Info("turn sweeper shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (s *TurnSweeper) tick(now time.Time) {
	candidates := s.Store.World.ListSessions(func(sess *domain.Session) bool {
		return sess.IsAlive(now) && sess.TurnState.TurnExpiresAt != nil
	})
	for _, candidate := range candidates {
		ts := candidate.TurnState
		switch {
		case now.After(*ts.TurnExpiresAt) || now.Equal(*ts.TurnExpiresAt):
			s.expireTurn(candidate.SessionID, now)
			delete(s.warnedTurn, candidate.SessionID)
		case s.Cfg.TurnWarningWindow > 0 && ts.TurnExpiresAt.Sub(now) <= s.Cfg.TurnWarningWindow:
			if s.warnedTurn[candidate.SessionID] != ts.TurnNumber {
				s.warnedTurn[candidate.SessionID] = ts.TurnNumber
				s.Sockets.BroadcastEnvelope(candidate.SessionID, map[string]interface{}{
					"type": "turn_timeout_warning",
					"sessionId": candidate.SessionID,
					"playerId": ts.ActiveTurnPlayerID,
					"turnExpiresAt": ts.TurnExpiresAt,
					"timestamp": now,
				})
			}
		}
	}
}

func (s *TurnSweeper) expireTurn(sessionID string, now time.Time) {
	var turnEnd, turnStart map[string]interface{}
	var activePlayer string
	var runErr error

	err := s.Store.World.WithSession(sessionID, func(live *domain.Session) error {
		ts := &live.TurnState
		if ts.TurnExpiresAt == nil || now.Before(*ts.TurnExpiresAt) {
			return nil // already resolved by a client action between scan and lock
		}
		activePlayer = ts.ActiveTurnPlayerID
		if activePlayer == "" {
			turn.EnsureSessionTurnState(live, now)
			return nil
		}
		if p, ok := live.Participants[activePlayer]; ok && p.IsBot && s.Bots != nil {
			turnEnd, turnStart, runErr = s.Bots.RunTurn(live, activePlayer, now)
		} else {
			turnEnd, turnStart, runErr = turn.AdvanceSessionTurn(live, activePlayer, now)
		}
		turn.EnsureSessionTurnState(live, now)
		live.LastActivityAt = now
		return nil
	})
	if err != nil || runErr != nil {
		slog.Warn("turn sweep: advance failed", "session_id", sessionID, "error", err, "run_error", runErr)
		return
	}
	if activePlayer == "" {
		return
	}

	s.Sockets.BroadcastEnvelope(sessionID, map[string]interface{}{
		"type": "turn_auto_advanced",
		"sessionId": sessionID,
		"playerId": activePlayer,
		"reason": "timeout",
		"timestamp": now,
	})
	if turnEnd != nil {
		s.Sockets.BroadcastEnvelope(sessionID, turnEnd)
	}
	if turnStart != nil {
		s.Sockets.BroadcastEnvelope(sessionID, turnStart)
	}
	if sess := s.Store.World.GetSession(sessionID); sess != nil {
		s.Sockets.BroadcastSessionState(sess)
	}
	s.persistBestEffort("turn_timeout:" + sessionID)
}

func (s *TurnSweeper) persistBestEffort(reason string) {
	if s.Store.Adapter == nil {
		return
	}
	if err := s.Store.PersistStore(context.Background()); err != nil {
		slog.Warn("persist after turn sweep failed", "reason", reason, "error", err)
	}
}

// IdleSweeper expires sessions whose ExpiresAt has elapsed. Public rooms
// are reset in place (ResetPublicRoomForIdle) rather than deleted, so the
// matchmaking inventory floor is maintained; private rooms are deleted
// outright via World.DeleteSession, always called outside WithSession
// per the store package's deadlock rule (a session cannot delete itself
// from inside its own writer closure).
type IdleSweeper struct {
	Store *store.Store
	Sockets membership.SocketOrchestrator
	Sessions *sessionctl.Service
	Membership *membership.Service
}

// NewIdleSweeper wires an IdleSweeper.
func NewIdleSweeper(st *store.Store, sockets membership.SocketOrchestrator, sessions *sessionctl.Service, mem *membership.Service) *IdleSweeper {
	return &IdleSweeper{Store: st, Sockets: sockets, Sessions: sessions, Membership: mem}
}

// Run blocks, sweeping every interval until ctx is canceled.
func (s *IdleSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("idle sweeper started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			s.tick(time.Now())
		case <-ctx.Done():
			slog.Info("idle sweeper shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (s *IdleSweeper) tick(now time.Time) {
	expired := s.Store.World.ListSessions(func(sess *domain.Session) bool {
		return !sess.IsAlive(now)
	})
	for _, sess := range expired {
		if sess.IsPublic() {
			err := s.Store.World.WithSession(sess.SessionID, func(live *domain.Session) error {
				if live.IsAlive(now) {
					return nil // revived by a heartbeat/join between scan and lock
				}
				s.Sessions.ResetPublicRoomForIdle(live, now)
				return nil
			})
			if err != nil && err != store.ErrNoSuchSession {
				slog.Warn("idle sweep: reset public room failed", "session_id", sess.SessionID, "error", err)
			}
			s.Sockets.BroadcastEnvelope(sess.SessionID, map[string]interface{}{
				"type": "session_expired",
				"sessionId": sess.SessionID,
				"timestamp": now,
			})
			continue
		}

		stillExpired := true
		_ = s.Store.World.WithSession(sess.SessionID, func(live *domain.Session) error {
			stillExpired = !live.IsAlive(now)
			return nil
		})
		if !stillExpired {
			continue
		}
		for playerID := range sess.Participants {
			s.Sockets.CloseSessionPlayerSockets(sess.SessionID, playerID, wire.CloseSessionExpired, "session_expired")
		}
		s.Store.World.DeleteSession(sess.SessionID)
	}
	s.persistBestEffort("idle_sweep")
}

func (s *IdleSweeper) persistBestEffort(reason string) {
	if s.Store.Adapter == nil {
		return
	}
	if err := s.Store.PersistStore(context.Background()); err != nil {
		slog.Warn("persist after idle sweep failed", "reason", reason, "error", err)
	}
}
