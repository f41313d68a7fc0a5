// Package sessionctl implements the session control service: room
// listing, session creation and joining, heartbeats, next-game
// queueing, and auth refresh, all over the standard
// rehydrate-then-re-authorize pattern.
package sessionctl

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farkleio/tablecore/internal/apperr"
	"github.com/farkleio/tablecore/internal/authtoken"
	"github.com/farkleio/tablecore/internal/botengine"
	"github.com/farkleio/tablecore/internal/config"
	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/store"
	"github.com/farkleio/tablecore/internal/turn"
)

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O/1/I

// Service implements the session control service over a store.Store.
type Service struct {
	Store *store.Store
	Cfg config.SessionConfig
	Bots botengine.Engine
}

// New wires a sessionctl Service.
func New(st *store.Store, cfg config.SessionConfig, bots botengine.Engine) *Service {
	return &Service{Store: st, Cfg: cfg, Bots: bots}
}

// RoomSummary is one entry of listRooms' payload.
type RoomSummary struct {
	SessionID string `json:"sessionId"`
	RoomCode string `json:"roomCode"`
	HumanCount int `json:"humanCount"`
	ActiveHumanCount int `json:"activeHumanCount"`
	GameDifficulty string `json:"gameDifficulty"`
}

// ListRooms returns public, non-complete sessions sorted by (room kind
// priority asc, activeHumanCount desc, humanCount desc, lastActivityAt
// desc), limited to rawLimit clamped to [1, MaxListRoomsLimit].
func (s *Service) ListRooms(rawLimit int, now time.Time) ([]RoomSummary, time.Time) {
	limit := rawLimit
	if limit <= 0 {
		limit = s.Cfg.DefaultListRoomsLimit
	}
	if limit > s.Cfg.MaxListRoomsLimit {
		limit = s.Cfg.MaxListRoomsLimit
	}
	if limit < 1 {
		limit = 1
	}

	const heartbeatWindow = 15 * time.Second
	sessions := s.Store.World.ListSessions(func(sess *domain.Session) bool {
		return sess.IsPublic() && !sess.SessionComplete
	})

	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		pa, pb := roomPriority(a.RoomKind), roomPriority(b.RoomKind)
		if pa != pb {
			return pa < pb
		}
		aActive, bActive := a.ActiveHumanCount(now, heartbeatWindow), b.ActiveHumanCount(now, heartbeatWindow)
		if aActive != bActive {
			return aActive > bActive
		}
		if a.HumanCount() != b.HumanCount() {
			return a.HumanCount() > b.HumanCount()
		}
		return a.LastActivityAt.After(b.LastActivityAt)
	})

	if len(sessions) > limit {
		sessions = sessions[:limit]
	}

	out := make([]RoomSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, RoomSummary{
			SessionID: sess.SessionID,
			RoomCode: sess.RoomCode,
			HumanCount: sess.HumanCount(),
			ActiveHumanCount: sess.ActiveHumanCount(now, heartbeatWindow),
			GameDifficulty: string(sess.GameDifficulty),
		})
	}
	return out, now
}

func roomPriority(kind domain.RoomKind) int {
	switch kind {
	case domain.RoomKindPublicDefault:
		return 0
	case domain.RoomKindPublicOverflow:
		return 1
	default:
		return 2
	}
}

// CreateSessionRequest is the normalized createSession body.
type CreateSessionRequest struct {
	PlayerID string
	RoomCode string
	DisplayName string
	BotCount int
	GameDifficulty string
	DemoMode bool
	DemoAutoRun bool
	DemoSpeedMode bool
	GameConfig *domain.GameConfig
}

// CreateSession validates playerId, honors a requested roomCode or
// generates one, seeds the owner participant and optional bots, issues
// auth tokens, and persists.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest, now time.Time) (*domain.Session, authtoken.Bundle, error) {
	if strings.TrimSpace(req.PlayerID) == "" {
		return nil, authtoken.Bundle{}, apperr.ErrInvalidPlayerID
	}

	roomCode := strings.ToUpper(strings.TrimSpace(req.RoomCode))
	if roomCode != "" {
		if s.Store.World.IsRoomCodeTaken(roomCode) {
			return nil, authtoken.Bundle{}, apperr.ErrRoomCodeTaken
		}
	} else {
		generated, err := s.allocateRoomCode()
		if err != nil {
			return nil, authtoken.Bundle{}, fmt.Errorf("allocate room code: %w", err)
		}
		roomCode = generated
	}

	sessionID := uuid.NewString()
	sess := domain.NewSession(sessionID, roomCode, domain.RoomKindPrivate, now)
	sess.OwnerPlayerID = req.PlayerID
	sess.ExpiresAt = now.Add(s.Cfg.IdleTTL)
	sess.DemoMode = req.DemoMode
	sess.DemoAutoRun = req.DemoAutoRun
	sess.DemoSpeedMode = req.DemoSpeedMode
	if req.GameDifficulty != "" {
		sess.GameDifficulty = domain.GameDifficulty(req.GameDifficulty)
	}
	if req.GameConfig != nil {
		sess.GameConfig = *req.GameConfig
	} else {
		sess.GameConfig = domain.GameConfig{WinningScore: 10_000, StartingDice: 6, MaxHumanPlayers: s.Cfg.MaxMultiplayerHumanPlayers}
	}

	sess.Participants[req.PlayerID] = &domain.Participant{
		PlayerID: req.PlayerID,
		DisplayName: normalizeDisplayName(req.DisplayName, req.PlayerID),
		IsSeated: false,
		RemainingDice: sess.GameConfig.StartingDice,
		JoinedAt: now,
		LastHeartbeatAt: now,
	}
	seedBots(sess, req.BotCount, now)

	turn.EnsureSessionTurnState(sess, now)

	if err := s.Store.World.CreateSession(sess); err != nil {
		return nil, authtoken.Bundle{}, err
	}

	bundle := authtoken.Issue(s.Store.World, sessionID, req.PlayerID, now)
	s.persistBestEffort(ctx, "createSession")
	return s.Store.World.GetSession(sessionID), bundle, nil
}

func normalizeDisplayName(raw, fallbackPlayerID string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return fallbackPlayerID
	}
	if len(name) > 40 {
		name = name[:40]
	}
	return name
}

func seedBots(sess *domain.Session, count int, now time.Time) {
	for i := 0; i < count; i++ {
		botID := fmt.Sprintf("bot-%s-%d", sess.SessionID, i)
		sess.Participants[botID] = &domain.Participant{
			PlayerID: botID,
			DisplayName: fmt.Sprintf("Bot %d", i+1),
			IsBot: true,
			IsSeated: true,
			IsReady: true,
			RemainingDice: sess.GameConfig.StartingDice,
			JoinedAt: now,
			LastHeartbeatAt: now,
			BotProfile: &domain.BotProfile{Name: fmt.Sprintf("Bot %d", i+1), RiskTolerance: 0.5, ReactionDelay: 600},
		}
	}
}

func (s *Service) allocateRoomCode() (string, error) {
	length := s.Cfg.RoomCodeLength
	if length <= 0 {
		length = 4
	}
	for attempt := 0; attempt < s.Cfg.RoomCodeAllocAttempts; attempt++ {
		code, err := randomRoomCode(length)
		if err != nil {
			return "", err
		}
		if !s.Store.World.IsRoomCodeTaken(code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("room code allocation exhausted after %d attempts", s.Cfg.RoomCodeAllocAttempts)
}

func randomRoomCode(length int) (string, error) {
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeAlphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// JoinTarget identifies the session to join, by ID or room code.
type JoinTarget struct {
	SessionID string
	RoomCode string
}

// JoinRequest is the normalized joinSessionByTarget body.
type JoinRequest struct {
	PlayerID string
	DisplayName string
	BlockedPlayerIDs []string
	BotCount int
}

// JoinSessionByTarget implements joinSessionByTarget.
func (s *Service) JoinSessionByTarget(ctx context.Context, target JoinTarget, req JoinRequest, now time.Time) (*domain.Session, authtoken.Bundle, error) {
	if strings.TrimSpace(req.PlayerID) == "" {
		return nil, authtoken.Bundle{}, apperr.ErrInvalidPlayerID
	}

	sessionID := target.SessionID
	if sessionID == "" && target.RoomCode != "" {
		if found := s.Store.World.GetSessionByRoomCode(strings.ToUpper(target.RoomCode)); found != nil {
			sessionID = found.SessionID
		}
	}
	if sessionID == "" {
		return nil, authtoken.Bundle{}, apperr.ErrUnknownSession
	}

	sess := s.Store.World.GetSession(sessionID)
	if sess == nil {
		sess = s.Store.RehydrateSessionWithRetry(ctx, sessionID, "joinSessionByTarget", store.ProfileSessionStandard)
	}
	if sess == nil {
		return nil, authtoken.Bundle{}, apperr.ErrUnknownSession
	}
	if !sess.IsAlive(now) {
		return nil, authtoken.Bundle{}, apperr.ErrSessionExpired
	}
	if _, banned := sess.RoomBans[req.PlayerID]; banned {
		return nil, authtoken.Bundle{}, apperr.ErrRoomBanned
	}

	var joinErr error
	err := s.Store.World.WithSession(sessionID, func(live *domain.Session) error {
		existing, isExisting := live.Participants[req.PlayerID]
		if !isExisting && live.HumanCount() >= s.Cfg.MaxMultiplayerHumanPlayers {
			joinErr = apperr.ErrRoomFull
			return nil
		}
		blocked := make(map[string]struct{}, len(req.BlockedPlayerIDs))
		for _, id := range req.BlockedPlayerIDs {
			blocked[id] = struct{}{}
		}
		if isExisting {
			existing.DisplayName = normalizeDisplayName(req.DisplayName, existing.DisplayName)
			existing.LastHeartbeatAt = now
			existing.BlockedPlayerIDs = blocked
		} else {
			live.Participants[req.PlayerID] = &domain.Participant{
				PlayerID: req.PlayerID,
				DisplayName: normalizeDisplayName(req.DisplayName, req.PlayerID),
				RemainingDice: live.GameConfig.StartingDice,
				JoinedAt: now,
				LastHeartbeatAt: now,
				BlockedPlayerIDs: blocked,
			}
		}
		seedBots(live, req.BotCount, now)
		live.LastActivityAt = now
		turn.EnsureSessionTurnState(live, now)
		return nil
	})
	if err != nil {
		return nil, authtoken.Bundle{}, err
	}
	if joinErr != nil {
		return nil, authtoken.Bundle{}, joinErr
	}

	bundle := authtoken.Issue(s.Store.World, sessionID, req.PlayerID, now)
	s.persistBestEffort(ctx, "joinSessionByTarget")
	return s.Store.World.GetSession(sessionID), bundle, nil
}

// authorize implements the rehydrate-then-re-authorize pattern shared by
// heartbeat/queueParticipantForNextGame/refreshSessionAuth: if Verify
// fails with token_not_found or session_token_mismatch, rehydrate once
// and retry before final rejection.
func (s *Service) authorize(ctx context.Context, sessionID, playerID, rawToken string, now time.Time) error {
	_, err := authtoken.Verify(s.Store.World, rawToken, sessionID, playerID, now)
	if err == nil {
		return nil
	}
	if err != apperr.ErrTokenNotFound && err != apperr.ErrSessionTokenMismatch {
		return err
	}
	if rerr := s.Store.RehydrateStoreFromAdapter(ctx, "authRecovery:"+sessionID+":"+playerID, store.RehydrateOpts{Force: true}); rerr != nil {
		return err
	}
	_, err = authtoken.Verify(s.Store.World, rawToken, sessionID, playerID, now)
	return err
}

// Heartbeat implements heartbeat.
func (s *Service) Heartbeat(ctx context.Context, sessionID, playerID, rawToken string, now time.Time) (*domain.Session, error) {
	sess, _ := s.Store.RehydrateSessionParticipantWithRetry(ctx, sessionID, playerID, "heartbeat", store.ProfileSessionFast)
	if sess == nil {
		return nil, apperr.ErrUnknownSession
	}
	if err := s.authorize(ctx, sessionID, playerID, rawToken, now); err != nil {
		return nil, err
	}
	err := s.Store.World.WithSession(sessionID, func(live *domain.Session) error {
		p, ok := live.Participants[playerID]
		if !ok {
			return apperr.ErrUnknownPlayer
		}
		p.LastHeartbeatAt = now
		live.LastActivityAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.persistBestEffort(ctx, "heartbeat")
	return s.Store.World.GetSession(sessionID), nil
}

// QueueParticipantForNextGame requires the current round to have
// completed and the participant to be seated.
func (s *Service) QueueParticipantForNextGame(ctx context.Context, sessionID, playerID, rawToken string, now time.Time) (bool, *domain.Session, error) {
	sess, _ := s.Store.RehydrateSessionParticipantWithRetry(ctx, sessionID, playerID, "queueParticipantForNextGame", store.ProfileSessionStandard)
	if sess == nil {
		return false, nil, apperr.ErrUnknownSession
	}
	if err := s.authorize(ctx, sessionID, playerID, rawToken, now); err != nil {
		return false, nil, err
	}

	var queued bool
	var domainErr error
	err := s.Store.World.WithSession(sessionID, func(live *domain.Session) error {
		p, ok := live.Participants[playerID]
		if !ok {
			domainErr = apperr.ErrUnknownPlayer
			return nil
		}
		if !p.IsSeated {
			domainErr = apperr.ErrNotSeated
			return nil
		}
		if live.TurnState.Phase != domain.PhaseReadyToEnd && !allParticipantsComplete(live) {
			domainErr = apperr.ErrRoundInProgress
			return nil
		}
		p.QueuedForNextGame = true
		p.LastHeartbeatAt = now
		live.LastActivityAt = now
		queued = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	s.persistBestEffort(ctx, "queueParticipantForNextGame")
	return queued, s.Store.World.GetSession(sessionID), domainErr
}

func allParticipantsComplete(sess *domain.Session) bool {
	for _, p := range sess.Participants {
		if !p.IsBot && p.IsSeated && !p.IsComplete {
			return false
		}
	}
	return true
}

// RefreshSessionAuth implements refreshSessionAuth.
func (s *Service) RefreshSessionAuth(ctx context.Context, sessionID, playerID string, now time.Time) (*domain.Session, authtoken.Bundle, error) {
	sess, participant := s.Store.RehydrateSessionParticipantWithRetry(ctx, sessionID, playerID, "sessionRefreshAuth", store.ProfileSessionRefreshAuth)
	if sess == nil || participant == nil {
		return nil, authtoken.Bundle{}, apperr.ErrUnknownSession
	}
	if !sess.IsAlive(now) {
		return nil, authtoken.Bundle{}, apperr.ErrSessionExpired
	}

	if err := s.Store.World.WithSession(sessionID, func(live *domain.Session) error {
		if p, ok := live.Participants[playerID]; ok {
			p.LastHeartbeatAt = now
		}
		live.LastActivityAt = now
		return nil
	}); err != nil {
		return nil, authtoken.Bundle{}, err
	}

	bundle := authtoken.Issue(s.Store.World, sessionID, playerID, now)
	s.persistBestEffort(ctx, "refreshSessionAuth")
	return s.Store.World.GetSession(sessionID), bundle, nil
}

// ResetPublicRoomForIdle implements the membership.RoomLifecycle
// capability: clears participants/turn state on an idle-emptied public
// room so the next listRooms sees a fresh, joinable table. Must not
// create or delete any OTHER session — it runs inside the caller's
// World.WithSession lock, which a CreateSession/DeleteSession call would
// deadlock against.
func (s *Service) ResetPublicRoomForIdle(session *domain.Session, now time.Time) {
	session.Participants = make(map[string]*domain.Participant)
	session.ChatConductState.Players = make(map[string]*domain.PlayerConductState)
	session.TurnState = domain.TurnState{Phase: domain.PhaseAwaitRoll, Round: 1, TurnNumber: 1, UpdatedAt: now}
	session.ExpiresAt = now.Add(s.Cfg.IdleTTL)
	session.LastActivityAt = now
}

// ReconcilePublicRoomInventory implements the membership.RoomLifecycle
// capability. Per the single-writer-per-session rule it may only touch
// the session handed to it (no cross-session creation from inside
// another session's lock); maintaining the public-room count floor is
// the idle-sweep's job, run outside any WithSession call.
//
// What it can do within that constraint is keep this one session's
// roomKind honest relative to its own capacity: a public_default room
// that fills up is demoted to public_overflow so listRooms (which sorts
// public_default ahead of public_overflow) stops funneling new joiners
// at it, and an overflow room that frees back up is promoted back to
// public_default. Reports whether roomKind changed.
func (s *Service) ReconcilePublicRoomInventory(session *domain.Session) bool {
	if !session.IsPublic() {
		return false
	}
	full := session.HumanCount() >= s.Cfg.MaxMultiplayerHumanPlayers
	switch {
	case full && session.RoomKind == domain.RoomKindPublicDefault:
		session.RoomKind = domain.RoomKindPublicOverflow
	case !full && session.RoomKind == domain.RoomKindPublicOverflow:
		session.RoomKind = domain.RoomKindPublicDefault
	default:
		return false
	}
	return true
}

func (s *Service) persistBestEffort(ctx context.Context, reason string) {
	if s.Store.Adapter == nil {
		return
	}
	if err := s.Store.PersistStore(ctx); err != nil {
		slog.Warn("persist after mutation failed", "reason", reason, "error", err)
	}
}
