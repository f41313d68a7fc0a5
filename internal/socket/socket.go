// Package socket implements the WebSocket orchestrator: authentication
// on upgrade, inbound message routing through the three-stage conduct
// pipeline, and session fanout. The register/unregister shape and the
// one-goroutine-per-connection read pump are generalized from a
// one-socket-per-user client registry to a session-fanout registry
// keyed by sessionID.
package socket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/farkleio/tablecore/internal/action"
	"github.com/farkleio/tablecore/internal/apperr"
	"github.com/farkleio/tablecore/internal/authtoken"
	"github.com/farkleio/tablecore/internal/botengine"
	"github.com/farkleio/tablecore/internal/conduct"
	"github.com/farkleio/tablecore/internal/config"
	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/membership"
	"github.com/farkleio/tablecore/internal/store"
	"github.com/farkleio/tablecore/internal/turn"
	"github.com/farkleio/tablecore/internal/wire"
)

// socketConn is the subset of *wire.Conn the orchestrator depends on,
// narrowed so tests can substitute a fake without a real TCP/Pipe conn.
type socketConn interface {
	WriteText(payload []byte) error
	WriteClose(code wire.CloseCode, reason string) error
	Close() error
}

// Client is one registered, authenticated connection.
type Client struct {
	Conn socketConn
	SessionID string
	PlayerID string

	mu sync.Mutex
	tokenExpiryTimer *time.Timer
	closed bool
	registered bool
}

func (c *Client) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// Orchestrator owns wsSessionClients (sessionId -> set<Client>) and
// wsClientMeta (client -> its registration).
type Orchestrator struct {
	Store *store.Store
	Membership *membership.Service
	Roller action.DiceRoller
	Conduct conduct.Registry
	Bots botengine.Engine
	Cfg config.SocketConfig

	mu sync.RWMutex
	sessionClients map[string]map[*Client]struct{}
	clientMeta map[*Client]struct{}
}

// New wires an Orchestrator. bots may be nil, in which case a bot that
// becomes active simply waits for the turn-timeout sweep to drive it.
func New(st *store.Store, mem *membership.Service, roller action.DiceRoller, registry conduct.Registry, bots botengine.Engine, cfg config.SocketConfig) *Orchestrator {
	return &Orchestrator{
		Store: st,
		Membership: mem,
		Roller: roller,
		Conduct: registry,
		Bots: bots,
		Cfg: cfg,
		sessionClients: make(map[string]map[*Client]struct{}),
		clientMeta: make(map[*Client]struct{}),
	}
}

// AuthenticateSocketUpgrade extracts session/playerId/token from the
// upgrade URL's query string and resolves and authorizes them. On
// success it returns the live session's clone and the verified token.
func (o *Orchestrator) AuthenticateSocketUpgrade(ctx context.Context, rawQuery string, now time.Time) (*domain.Session, *domain.AuthToken, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, nil, apperr.ErrUnauthorized
	}
	sessionID := values.Get("session")
	playerID := values.Get("playerId")
	token := values.Get("token")
	if sessionID == "" || playerID == "" || token == "" {
		return nil, nil, apperr.ErrUnauthorized
	}

	sess := o.Store.World.GetSession(sessionID)
	if sess == nil {
		sess = o.Store.RehydrateSessionWithRetry(ctx, sessionID, "socketUpgrade", store.ProfileSessionStandard)
	}
	if sess == nil {
		return nil, nil, apperr.ErrUnknownSession
	}
	if !sess.IsAlive(now) && now.Sub(sess.ExpiresAt) > o.Cfg.UpgradeGraceWindow {
		return nil, nil, apperr.ErrSessionExpired
	}
	if _, banned := sess.RoomBans[playerID]; banned {
		return nil, nil, apperr.ErrRoomBanned
	}

	tok, verr := authtoken.Verify(o.Store.World, token, sessionID, playerID, now)
	if verr != nil {
		if rerr := o.Store.RehydrateStoreFromAdapter(ctx, "authRecovery:"+sessionID+":"+playerID, store.RehydrateOpts{Force: true}); rerr != nil {
			slog.Warn("socket upgrade auth rehydrate failed", "session_id", sessionID, "player_id", playerID, "error", rerr)
		}
		tok, verr = authtoken.Verify(o.Store.World, token, sessionID, playerID, now)
		if verr != nil {
			return nil, nil, apperr.ErrUnauthorized
		}
	}

	if !sess.IsAlive(now) {
		_ = o.Store.World.WithSession(sessionID, func(live *domain.Session) error {
			if p, ok := live.Participants[playerID]; ok {
				p.LastHeartbeatAt = now
			}
			live.ExpiresAt = now.Add(o.Cfg.UpgradeGraceWindow)
			return nil
		})
		o.persistBestEffort(ctx, "socketUpgrade revive")
		sess = o.Store.World.GetSession(sessionID)
	}

	return sess, tok, nil
}

// RegisterClient installs a new Client into the registry and arms its
// one-shot token-expiry timer.
func (o *Orchestrator) RegisterClient(conn socketConn, sessionID, playerID string, accessExpiresAt, now time.Time) *Client {
	c := &Client{Conn: conn, SessionID: sessionID, PlayerID: playerID, registered: true}

	o.mu.Lock()
	if o.sessionClients[sessionID] == nil {
		o.sessionClients[sessionID] = make(map[*Client]struct{})
	}
	o.sessionClients[sessionID][c] = struct{}{}
	o.clientMeta[c] = struct{}{}
	o.mu.Unlock()

	delay := accessExpiresAt.Sub(now)
	if delay < 0 {
		delay = 0
	}
	c.tokenExpiryTimer = time.AfterFunc(delay, func() { o.expireClient(c) })

	return c
}

func (o *Orchestrator) expireClient(c *Client) {
	_ = c.Conn.WriteText(mustJSON(map[string]interface{}{"type": "error", "reason": apperr.Reason(apperr.ErrSessionExpired)}))
	o.safeCloseSocket(c, wire.CloseUnauthorized, "token_expired")
}

// UnregisterClient removes c from the registry, stops its timer, and
// reconciles the session's turn loop. lastHeartbeatAt is deliberately
// left untouched, and the participant stays in the session.
func (o *Orchestrator) UnregisterClient(c *Client, now time.Time) {
	o.mu.Lock()
	if set, ok := o.sessionClients[c.SessionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(o.sessionClients, c.SessionID)
		}
	}
	delete(o.clientMeta, c)
	o.mu.Unlock()

	c.mu.Lock()
	if c.tokenExpiryTimer != nil {
		c.tokenExpiryTimer.Stop()
	}
	c.mu.Unlock()

	_ = o.Store.World.WithSession(c.SessionID, func(live *domain.Session) error {
		turn.EnsureSessionTurnState(live, now)
		return nil
	})
}

// safeCloseSocket sends a close frame and closes the underlying
// connection; it never panics on an already-closed Client.
func (o *Orchestrator) safeCloseSocket(c *Client, code wire.CloseCode, reason string) {
	if !c.markClosed() {
		return
	}
	_ = c.Conn.WriteClose(code, reason)
	_ = c.Conn.Close()
}

// inboundMessageTypes is the closed schema of recognized message types
// for client->server routing.
var inboundMessageTypes = map[string]struct{}{
	"chaos_attack": {},
	"particle:emit": {},
	"game_update": {},
	"player_notification": {},
	"room_channel": {},
	"turn_end": {},
	"turn_action": {},
}

// HandleInboundMessage parses and routes one client->server JSON
// message.
func (o *Orchestrator) HandleInboundMessage(c *Client, raw []byte, now time.Time) {
	var envelope map[string]interface{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		o.sendError(c, apperr.ErrInvalidPayload)
		return
	}
	msgType, _ := envelope["type"].(string)
	if _, ok := inboundMessageTypes[msgType]; !ok {
		o.sendError(c, apperr.ErrUnsupportedMessageType)
		return
	}

	switch msgType {
	case "turn_action":
		o.handleTurnAction(c, envelope, now)
	case "turn_end":
		o.handleTurnEnd(c, now)
	default:
		o.handleRealtimeMessage(c, msgType, envelope, now)
	}
}

func (o *Orchestrator) handleTurnAction(c *Client, envelope map[string]interface{}, now time.Time) {
	payload := action.Payload{}
	if v, ok := envelope["action"].(string); ok {
		payload.Action = v
	}
	if v, ok := envelope["rollServerId"].(string); ok {
		payload.RollServerID = v
	}
	if v, ok := envelope["points"].(float64); ok {
		payload.Points = int(v)
	}
	if v, ok := envelope["diceCount"].(float64); ok {
		payload.DiceCount = int(v)
	}
	if ids, ok := envelope["selectedDiceIds"].([]interface{}); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok {
				payload.SelectedDiceIDs = append(payload.SelectedDiceIDs, s)
			}
		}
	}

	var result *action.Result
	err := o.Store.World.WithSession(c.SessionID, func(sess *domain.Session) error {
		result = action.ProcessTurnAction(sess, c.PlayerID, payload, o.Roller, now)
		if result.OK && result.ShouldPersist {
			sess.LastActivityAt = now
		}
		if result.OK && result.WinnerResolved {
			o.BroadcastSessionState(sess)
		}
		return nil
	})
	if err != nil {
		o.sendError(c, err)
		return
	}
	if !result.OK {
		o.sendReason(c, result.Reason)
		return
	}
	if result.Message != nil && result.ShouldBroadcastState {
		o.BroadcastEnvelope(c.SessionID, result.Message)
	} else if result.Message != nil {
		o.SendToSessionPlayer(c.SessionID, c.PlayerID, result.Message)
	}
	if result.ShouldPersist {
		o.persistBestEffort(context.Background(), "turn_action")
	}
}

func (o *Orchestrator) handleTurnEnd(c *Client, now time.Time) {
	var turnEnd, turnStart map[string]interface{}
	var domainErr error
	err := o.Store.World.WithSession(c.SessionID, func(sess *domain.Session) error {
		turnEnd, turnStart, domainErr = turn.AdvanceSessionTurn(sess, c.PlayerID, now)
		return nil
	})
	if err != nil {
		o.sendError(c, err)
		return
	}
	if domainErr != nil {
		o.sendError(c, domainErr)
		return
	}
	if turnEnd != nil {
		o.BroadcastEnvelope(c.SessionID, turnEnd)
	}
	if turnStart != nil {
		o.BroadcastEnvelope(c.SessionID, turnStart)
	}
	o.persistBestEffort(context.Background(), "turn_end")
	o.maybeScheduleBotTurn(c.SessionID)
}

// maybeScheduleBotTurn runs the active participant's turn, after its
// botengine.ReactionDelay, if it is a bot — then recurses so a run of
// consecutive bot turns plays itself out without a human message. A nil
// Bots leaves a bot's turn to the turn-timeout sweep instead.
func (o *Orchestrator) maybeScheduleBotTurn(sessionID string) {
	if o.Bots == nil {
		return
	}
	sess := o.Store.World.GetSession(sessionID)
	if sess == nil || sess.SessionComplete {
		return
	}
	active := sess.TurnState.ActiveTurnPlayerID
	p, ok := sess.Participants[active]
	if !ok || !p.IsBot {
		return
	}
	delay := botengine.ReactionDelay(sess, active)
	time.AfterFunc(delay, func() { o.runBotTurn(sessionID, active) })
}

func (o *Orchestrator) runBotTurn(sessionID, playerID string) {
	var turnEnd, turnStart map[string]interface{}
	var runErr error
	err := o.Store.World.WithSession(sessionID, func(live *domain.Session) error {
		if live.TurnState.ActiveTurnPlayerID != playerID {
			return nil // a human action or the timeout sweep already moved the turn on
		}
		turnEnd, turnStart, runErr = o.Bots.RunTurn(live, playerID, time.Now())
		return nil
	})
	if err != nil || runErr != nil {
		slog.Warn("bot turn failed", "session_id", sessionID, "player_id", playerID, "error", err, "run_error", runErr)
		return
	}
	if turnEnd != nil {
		o.BroadcastEnvelope(sessionID, turnEnd)
	}
	if turnStart != nil {
		o.BroadcastEnvelope(sessionID, turnStart)
	}
	o.persistBestEffort(context.Background(), "bot_turn")
	o.maybeScheduleBotTurn(sessionID)
}

func (o *Orchestrator) handleRealtimeMessage(c *Client, msgType string, envelope map[string]interface{}, now time.Time) {
	sess := o.Store.World.GetSession(c.SessionID)
	if sess == nil {
		o.sendError(c, apperr.ErrUnknownSession)
		return
	}

	if v := o.Conduct.Preflight(sess, c.PlayerID); v.Blocked {
		o.sendError(c, v.Reason)
		return
	}

	verdict := o.Conduct.Inbound(sess, c.PlayerID, envelope, now)
	if verdict.StateChanged {
		_ = o.Store.World.WithSession(c.SessionID, func(live *domain.Session) error {
			live.ChatConductState = sess.ChatConductState
			return nil
		})
		o.persistBestEffort(context.Background(), "conduct_state_changed")
	}
	if verdict.Blocked {
		o.sendError(c, verdict.Reason)
		if verdict.ShouldAutoBan {
			o.autoBan(c, now)
		}
		return
	}

	if targetID, ok := envelope["targetPlayerId"].(string); ok && targetID != "" {
		if dv := o.Conduct.Direct(sess, c.PlayerID, targetID); dv.Blocked {
			o.sendError(c, dv.Reason)
			return
		}
		o.SendToSessionPlayer(c.SessionID, targetID, envelope)
		return
	}

	if msgType == "room_channel" {
		o.BroadcastRoomChannelToSession(c.SessionID, envelope, c.PlayerID, sess)
		return
	}
	o.BroadcastToSession(c.SessionID, envelope, c.PlayerID)
}

func (o *Orchestrator) autoBan(c *Client, now time.Time) {
	_ = o.Store.World.WithSession(c.SessionID, func(live *domain.Session) error {
		live.RoomBans[c.PlayerID] = &domain.BanRecord{
			TargetPlayerID: c.PlayerID,
			BannedBy: "conduct_auto_ban",
			Reason: "repeated chat-conduct violations",
			CreatedAt: now,
		}
		return nil
	})
	if o.Membership != nil {
		_ = o.Membership.RemoveParticipantFromSession(c.SessionID, c.PlayerID, membership.RemoveOpts{
			Source: "conduct_auto_ban",
			SocketReason: "conduct_auto_ban",
		}, now)
	}
}

func (o *Orchestrator) sendError(c *Client, err error) {
	o.sendReason(c, apperr.Reason(err))
}

func (o *Orchestrator) sendReason(c *Client, reason string) {
	_ = c.Conn.WriteText(mustJSON(map[string]interface{}{"type": "error", "reason": reason}))
}

// BroadcastToSession sends envelope to every live, non-sender socket
// registered for sessionID. Write failures close the offending socket
// with internalError/send_failed.
func (o *Orchestrator) BroadcastToSession(sessionID string, envelope map[string]interface{}, excludePlayerID string) {
	payload := mustJSON(envelope)
	for _, c := range o.clientsFor(sessionID) {
		if c.PlayerID == excludePlayerID {
			continue
		}
		if err := c.Conn.WriteText(payload); err != nil {
			o.safeCloseSocket(c, wire.CloseInternalError, "send_failed")
		}
	}
}

// SendToSessionPlayer targets one (sessionID, playerID) tuple.
func (o *Orchestrator) SendToSessionPlayer(sessionID, playerID string, envelope map[string]interface{}) {
	payload := mustJSON(envelope)
	for _, c := range o.clientsFor(sessionID) {
		if c.PlayerID != playerID {
			continue
		}
		if err := c.Conn.WriteText(payload); err != nil {
			o.safeCloseSocket(c, wire.CloseInternalError, "send_failed")
		}
	}
}

// BroadcastRoomChannelToSession additionally skips any recipient with a
// mutual block vs. the source.
func (o *Orchestrator) BroadcastRoomChannelToSession(sessionID string, envelope map[string]interface{}, senderPlayerID string, sess *domain.Session) {
	sender := sess.Participants[senderPlayerID]
	payload := mustJSON(envelope)
	for _, c := range o.clientsFor(sessionID) {
		if c.PlayerID == senderPlayerID {
			continue
		}
		recipient := sess.Participants[c.PlayerID]
		if sender.HasBlocked(c.PlayerID) || recipient.HasBlocked(senderPlayerID) {
			continue
		}
		if err := c.Conn.WriteText(payload); err != nil {
			o.safeCloseSocket(c, wire.CloseInternalError, "send_failed")
		}
	}
}

// BroadcastEnvelope satisfies membership.SocketOrchestrator: an
// unconditional session-wide fanout with no sender to exclude.
func (o *Orchestrator) BroadcastEnvelope(sessionID string, envelope map[string]interface{}) {
	o.BroadcastToSession(sessionID, envelope, "")
}

// BroadcastSessionState satisfies membership.SocketOrchestrator.
func (o *Orchestrator) BroadcastSessionState(session *domain.Session) {
	o.BroadcastEnvelope(session.SessionID, map[string]interface{}{"type": "session_state", "session": session})
}

// CloseSessionPlayerSockets satisfies membership.SocketOrchestrator.
func (o *Orchestrator) CloseSessionPlayerSockets(sessionID, playerID string, code wire.CloseCode, reason string) {
	for _, c := range o.clientsFor(sessionID) {
		if c.PlayerID == playerID {
			o.safeCloseSocket(c, code, reason)
		}
	}
}

func (o *Orchestrator) clientsFor(sessionID string) []*Client {
	o.mu.RLock()
	defer o.mu.RUnlock()
	set := o.sessionClients[sessionID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (o *Orchestrator) persistBestEffort(ctx context.Context, reason string) {
	if o.Store.Adapter == nil {
		return
	}
	if err := o.Store.PersistStore(ctx); err != nil {
		slog.Warn("persist after socket mutation failed", "reason", reason, "error", err)
	}
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal outbound socket envelope", "error", err)
		return []byte(`{"type":"error","reason":"internal_error"}`)
	}
	return data
}
