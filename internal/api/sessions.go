package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/farkleio/tablecore/internal/apperr"
	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/membership"
	"github.com/farkleio/tablecore/internal/sessionctl"
)

// SessionHandler registers the session-lifecycle HTTP endpoints:
// listing rooms, creating and joining sessions, heartbeats, queueing
// the next game, and refreshing auth.
type SessionHandler struct {
	Sessions *sessionctl.Service
	Membership *membership.Service
}

// NewSessionHandler wires a SessionHandler.
func NewSessionHandler(sessions *sessionctl.Service, mem *membership.Service) *SessionHandler {
	return &SessionHandler{Sessions: sessions, Membership: mem}
}

// RegisterRoutes registers every session-plane route.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/rooms", h.ListRooms)
	r.Post("/sessions", h.CreateSession)
	r.Post("/sessions/{id}/join", h.Join)
	r.Post("/sessions/{id}/leave", h.Leave)
	r.Post("/sessions/{id}/heartbeat", h.Heartbeat)
	r.Post("/sessions/{id}/participants/{pid}/state", h.SetParticipantState)
	r.Post("/sessions/{id}/moderate", h.Moderate)
	r.Post("/sessions/{id}/demo-controls", h.DemoControls)
	r.Post("/sessions/{id}/queue-next", h.QueueNext)
	r.Post("/sessions/{id}/refresh-auth", h.RefreshAuth)
}

func nowFunc() time.Time { return time.Now() }

// ListRooms implements GET /rooms.
func (h *SessionHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rooms, timestamp := h.Sessions.ListRooms(limit, nowFunc())
	JSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms, "timestamp": timestamp})
}

type createSessionBody struct {
	PlayerID string `json:"playerId"`
	RoomCode string `json:"roomCode"`
	DisplayName string `json:"displayName"`
	BotCount int `json:"botCount"`
	GameDifficulty string `json:"gameDifficulty"`
	DemoMode bool `json:"demoMode"`
	DemoAutoRun bool `json:"demoAutoRun"`
	DemoSpeedMode bool `json:"demoSpeedMode"`
	GameConfig *domain.GameConfig `json:"gameConfig"`
}

// CreateSession implements POST /sessions.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionBody
	if err := decodeJSON(r, &body); err != nil {
		Error(w, http.StatusBadRequest, err)
		return
	}

	sess, bundle, err := h.Sessions.CreateSession(r.Context(), sessionctl.CreateSessionRequest{
		PlayerID: body.PlayerID,
		RoomCode: body.RoomCode,
		DisplayName: body.DisplayName,
		BotCount: body.BotCount,
		GameDifficulty: body.GameDifficulty,
		DemoMode: body.DemoMode,
		DemoAutoRun: body.DemoAutoRun,
		DemoSpeedMode: body.DemoSpeedMode,
		GameConfig: body.GameConfig,
	}, nowFunc())
	if err != nil {
		Error(w, statusFor(err), err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"session": sess, "auth": bundle})
}

type joinBody struct {
	PlayerID string `json:"playerId"`
	DisplayName string `json:"displayName"`
	BlockedPlayerIDs []string `json:"blockedPlayerIds"`
	BotCount int `json:"botCount"`
	RoomCode string `json:"roomCode"`
}

// Join implements POST /sessions/:id/join.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	var body joinBody
	if err := decodeJSON(r, &body); err != nil {
		Error(w, http.StatusBadRequest, err)
		return
	}

	sess, bundle, err := h.Sessions.JoinSessionByTarget(r.Context(),
		sessionctl.JoinTarget{SessionID: chi.URLParam(r, "id"), RoomCode: body.RoomCode},
		sessionctl.JoinRequest{
			PlayerID: body.PlayerID,
			DisplayName: body.DisplayName,
			BlockedPlayerIDs: body.BlockedPlayerIDs,
			BotCount: body.BotCount,
		}, nowFunc())
	if err != nil {
		Error(w, statusFor(err), err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"session": sess, "auth": bundle})
}

type playerIDBody struct {
	PlayerID string `json:"playerId"`
}

// Leave implements POST /sessions/:id/leave. Always 200 — unknown
// (sessionId, playerId) pairs are a no-op, not an error.
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var body playerIDBody
	if err := decodeJSON(r, &body); err != nil {
		Error(w, http.StatusBadRequest, err)
		return
	}
	_ = h.Membership.RemoveParticipantFromSession(chi.URLParam(r, "id"), body.PlayerID, membership.RemoveOpts{
		Source: "leave_session",
		SocketReason: "left_session",
	}, nowFunc())
	JSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// Heartbeat implements POST /sessions/:id/heartbeat. The access token is
// carried in the X-Session-Token header as implicit bearer auth,
// alongside the required playerId body field.
func (h *SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var body playerIDBody
	if err := decodeJSON(r, &body); err != nil {
		Error(w, http.StatusBadRequest, err)
		return
	}
	sess, err := h.Sessions.Heartbeat(r.Context(), chi.URLParam(r, "id"), body.PlayerID, r.Header.Get("X-Session-Token"), nowFunc())
	if err != nil {
		Error(w, statusFor(err), err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"ok": true, "session": sess})
}

type participantStateBody struct {
	Action string `json:"action"`
}

// SetParticipantState implements POST /sessions/:id/participants/:pid/state.
func (h *SessionHandler) SetParticipantState(w http.ResponseWriter, r *http.Request) {
	var body participantStateBody
	if err := decodeJSON(r, &body); err != nil {
		Error(w, http.StatusBadRequest, err)
		return
	}
	participant, err := h.Membership.SetParticipantState(chi.URLParam(r, "id"), chi.URLParam(r, "pid"),
		membership.ParticipantAction(body.Action), nowFunc())
	if err != nil {
		Error(w, statusFor(err), err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"participant": participant})
}

type moderateBody struct {
	RequesterPlayerID string `json:"requesterPlayerId"`
	TargetPlayerID string `json:"targetPlayerId"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// Moderate implements POST /sessions/:id/moderate.
func (h *SessionHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	var body moderateBody
	if err := decodeJSON(r, &body); err != nil {
		Error(w, http.StatusBadRequest, err)
		return
	}
	sessionID := chi.URLParam(r, "id")
	err := h.Membership.Moderate(sessionID, membership.ModerateOpts{
		RequesterPlayerID: body.RequesterPlayerID,
		TargetPlayerID: body.TargetPlayerID,
		Action: body.Action,
		Reason: body.Reason,
	}, nowFunc())
	if err != nil {
		Error(w, statusFor(err), err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"moderated": body.TargetPlayerID, "action": body.Action})
}

type demoControlsBody struct {
	PlayerID string `json:"playerId"`
	Action string `json:"action"`
}

// DemoControls implements POST /sessions/:id/demo-controls.
func (h *SessionHandler) DemoControls(w http.ResponseWriter, r *http.Request) {
	var body demoControlsBody
	if err := decodeJSON(r, &body); err != nil {
		Error(w, http.StatusBadRequest, err)
		return
	}
	sessionID := chi.URLParam(r, "id")
	result, err := h.Sessions.ApplyDemoControls(sessionID, body.PlayerID, sessionctl.DemoAction(body.Action), nowFunc())
	if err != nil {
		Error(w, statusFor(err), err)
		return
	}
	sess := h.Sessions.Store.World.GetSession(sessionID)
	JSON(w, http.StatusOK, map[string]interface{}{"controls": result, "session": sess})
}

// QueueNext implements POST /sessions/:id/queue-next. round_in_progress
// and not_seated are reported as a 200 with queued:false rather than as
// an error status.
func (h *SessionHandler) QueueNext(w http.ResponseWriter, r *http.Request) {
	var body playerIDBody
	if err := decodeJSON(r, &body); err != nil {
		Error(w, http.StatusBadRequest, err)
		return
	}
	sessionID := chi.URLParam(r, "id")
	queued, sess, err := h.Sessions.QueueParticipantForNextGame(r.Context(), sessionID, body.PlayerID, r.Header.Get("X-Session-Token"), nowFunc())
	if err != nil {
		switch {
		case err == apperr.ErrRoundInProgress, err == apperr.ErrNotSeated:
			JSON(w, http.StatusOK, map[string]interface{}{"queuedForNextGame": false, "reason": apperr.Reason(err), "session": sess})
		default:
			Error(w, statusFor(err), err)
		}
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"queuedForNextGame": queued, "session": sess})
}

// RefreshAuth implements POST /sessions/:id/refresh-auth.
func (h *SessionHandler) RefreshAuth(w http.ResponseWriter, r *http.Request) {
	var body playerIDBody
	if err := decodeJSON(r, &body); err != nil {
		Error(w, http.StatusBadRequest, err)
		return
	}
	sess, bundle, err := h.Sessions.RefreshSessionAuth(r.Context(), chi.URLParam(r, "id"), body.PlayerID, nowFunc())
	if err != nil {
		Error(w, statusFor(err), err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"session": sess, "auth": bundle})
}
