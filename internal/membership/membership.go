// Package membership implements the sole participant-deletion path and
// moderation actions (kick/ban) over a session's participants.
package membership

import (
	"log/slog"
	"time"

	"github.com/farkleio/tablecore/internal/action"
	"github.com/farkleio/tablecore/internal/apperr"
	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/store"
	"github.com/farkleio/tablecore/internal/turn"
	"github.com/farkleio/tablecore/internal/wire"
)

// SocketOrchestrator is the capability membership depends on to reach
// live sockets, satisfied by internal/socket: a small interface wired
// at construction rather than an import of the socket package itself.
type SocketOrchestrator interface {
	CloseSessionPlayerSockets(sessionID, playerID string, code wire.CloseCode, reason string)
	BroadcastSessionState(session *domain.Session)
	BroadcastEnvelope(sessionID string, envelope map[string]interface{})
}

// RoomLifecycle is the capability membership depends on for public-room
// bookkeeping, satisfied by internal/sessionctl.
type RoomLifecycle interface {
	ResetPublicRoomForIdle(session *domain.Session, now time.Time)
	ReconcilePublicRoomInventory(session *domain.Session) bool
}

// Service implements participant removal and moderation over a World
// and its collaborators.
type Service struct {
	World *store.World
	Sockets SocketOrchestrator
	Rooms RoomLifecycle
	Roller action.DiceRoller
}

// New wires a membership Service.
func New(world *store.World, sockets SocketOrchestrator, rooms RoomLifecycle, roller action.DiceRoller) *Service {
	return &Service{World: world, Sockets: sockets, Rooms: rooms, Roller: roller}
}

// RemoveOpts carries the audit/diagnostic context for a removal.
type RemoveOpts struct {
	Source string
	SocketReason string
}

// RemoveParticipantFromSession is the sole deletion path.
// Calling it twice for the same (sessionID, playerID) is observably
// equivalent to calling it once — the second call is a no-op returning
// nil.
func (s *Service) RemoveParticipantFromSession(sessionID, playerID string, opts RemoveOpts, now time.Time) error {
	return s.World.WithSession(sessionID, func(session *domain.Session) error {
		if _, ok := session.Participants[playerID]; !ok {
			return nil
		}

		delete(session.Participants, playerID)
		delete(session.ChatConductState.Players, playerID)

		if playerID == session.OwnerPlayerID {
			s.ensureSessionOwnerLocked(session)
		}

		if s.Sockets != nil {
			s.Sockets.CloseSessionPlayerSockets(sessionID, playerID, wire.CloseNormal, opts.SocketReason)
		}

		turn.EnsureSessionTurnState(session, now)

		if session.HumanCount() == 0 {
			if !session.IsPublic() {
				s.expireSessionLocked(session, now)
			} else if s.Rooms != nil {
				s.Rooms.ResetPublicRoomForIdle(session, now)
				if s.Sockets != nil {
					s.Sockets.BroadcastSessionState(session)
				}
			}
		} else {
			forfeited := s.attemptSingleHumanForfeit(session, now)
			if s.Sockets != nil {
				if !forfeited {
					s.Sockets.BroadcastEnvelope(sessionID, turn.BuildTurnStartMessage(session, now))
				}
				s.Sockets.BroadcastSessionState(session)
			}
		}

		if s.Rooms != nil && s.Rooms.ReconcilePublicRoomInventory(session) {
			slog.Debug("public room inventory changed", "session_id", sessionID, "room_kind", session.RoomKind)
		}
		return nil
	})
}

// expireSessionLocked marks session expired in place. The session entry
// itself is removed from World by the idle sweep, not here — World's
// methods take the world lock and would deadlock if called from inside
// WithSession's callback, which already holds it.
func (s *Service) expireSessionLocked(session *domain.Session, now time.Time) {
	session.ExpiresAt = now
	session.SessionComplete = true
	completed := now
	session.CompletedAt = &completed
}

// attemptSingleHumanForfeit ends the round for the one remaining human
// when they are mid-turn and alone with bots, letting the session
// conclude rather than stall waiting on a participant who has no one
// left to play against. Returns whether a forfeit was applied.
func (s *Service) attemptSingleHumanForfeit(session *domain.Session, now time.Time) bool {
	if session.HumanCount() != 1 {
		return false
	}
	var lone *domain.Participant
	for _, p := range session.Participants {
		if !p.IsBot {
			lone = p
			break
		}
	}
	if lone == nil || lone.IsComplete || !lone.IsSeated {
		return false
	}
	if session.TurnState.ActiveTurnPlayerID != lone.PlayerID {
		return false
	}

	lone.IsComplete = true
	completed := now
	lone.CompletedAt = &completed
	turn.EnsureSessionTurnState(session, now)
	return true
}

// EnsureSessionOwner promotes the earliest-joined seated non-bot to
// owner, or clears OwnerPlayerID if none remain. Exported so admin
// operations that mutate membership outside RemoveParticipantFromSession
// can call the same reconciliation.
func (s *Service) EnsureSessionOwner(sessionID string) error {
	return s.World.WithSession(sessionID, func(session *domain.Session) error {
		s.ensureSessionOwnerLocked(session)
		return nil
	})
}

func (s *Service) ensureSessionOwnerLocked(session *domain.Session) {
	var earliest *domain.Participant
	for _, p := range session.Participants {
		if p.IsBot || !p.IsSeated {
			continue
		}
		if earliest == nil || p.JoinedAt.Before(earliest.JoinedAt) {
			earliest = p
		}
	}
	if earliest != nil {
		session.OwnerPlayerID = earliest.PlayerID
	} else {
		session.OwnerPlayerID = ""
	}
}

// ModerateOpts carries the kick/ban request.
type ModerateOpts struct {
	RequesterPlayerID string
	TargetPlayerID string
	Action string // "kick" or "ban"
	Reason string
	RequesterIsAdmin bool
}

// Moderate authorizes and applies a kick or ban. Callers
// must resolve RequesterIsAdmin (role >= operator) before calling; room
// ownership is checked here.
func (s *Service) Moderate(sessionID string, opts ModerateOpts, now time.Time) error {
	if opts.RequesterPlayerID == opts.TargetPlayerID {
		return apperr.ErrCannotModerateSelf
	}

	var authzErr error
	err := s.World.WithSession(sessionID, func(session *domain.Session) error {
		if session.OwnerPlayerID != opts.RequesterPlayerID && !opts.RequesterIsAdmin {
			authzErr = apperr.ErrNotRoomOwner
			return nil
		}
		if opts.Action == "ban" {
			session.RoomBans[opts.TargetPlayerID] = &domain.BanRecord{
				TargetPlayerID: opts.TargetPlayerID,
				BannedBy: opts.RequesterPlayerID,
				Reason: opts.Reason,
				CreatedAt: now,
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if authzErr != nil {
		return authzErr
	}

	source := "moderation_kick"
	if opts.Action == "ban" {
		source = "moderation_ban"
	}
	return s.RemoveParticipantFromSession(sessionID, opts.TargetPlayerID, RemoveOpts{
		Source: source,
		SocketReason: source,
	}, now)
}

// ParticipantAction is one of the four seat transitions
// POST /sessions/:id/participants/:pid/state accepts.
type ParticipantAction string

const (
	ParticipantActionSit ParticipantAction = "sit"
	ParticipantActionStand ParticipantAction = "stand"
	ParticipantActionReady ParticipantAction = "ready"
	ParticipantActionUnready ParticipantAction = "unready"
)

// SetParticipantState applies a seat/readiness transition for one
// participant. Standing clears readiness too, since IsReady implies
// IsSeated; the turn reconciler then re-derives turnFlowReady from the
// updated seating.
func (s *Service) SetParticipantState(sessionID, playerID string, action ParticipantAction, now time.Time) (*domain.Participant, error) {
	var result *domain.Participant
	var domainErr error

	err := s.World.WithSession(sessionID, func(session *domain.Session) error {
		p, ok := session.Participants[playerID]
		if !ok {
			domainErr = apperr.ErrUnknownPlayer
			return nil
		}

		switch action {
		case ParticipantActionSit:
			p.IsSeated = true
		case ParticipantActionStand:
			p.IsSeated = false
			p.IsReady = false
		case ParticipantActionReady:
			if !p.IsSeated {
				domainErr = apperr.ErrInvalidAction
				return nil
			}
			p.IsReady = true
		case ParticipantActionUnready:
			p.IsReady = false
		default:
			domainErr = apperr.ErrInvalidAction
			return nil
		}

		turn.EnsureSessionTurnState(session, now)
		session.LastActivityAt = now
		result = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, domainErr
}
