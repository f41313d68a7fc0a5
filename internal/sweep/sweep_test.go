package sweep

import (
	"testing"
	"time"

	"github.com/farkleio/tablecore/internal/action"
	"github.com/farkleio/tablecore/internal/botengine"
	"github.com/farkleio/tablecore/internal/config"
	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/membership"
	"github.com/farkleio/tablecore/internal/sessionctl"
	"github.com/farkleio/tablecore/internal/store"
	"github.com/farkleio/tablecore/internal/store/memadapter"
	"github.com/farkleio/tablecore/internal/turn"
	"github.com/farkleio/tablecore/internal/wire"
)

// fakeSockets satisfies membership.SocketOrchestrator without any real
// network connections, recording what the sweepers tried to broadcast.
type fakeSockets struct {
	envelopes []map[string]interface{}
	states    []*domain.Session
	closed    []string
}

func (f *fakeSockets) CloseSessionPlayerSockets(sessionID, playerID string, code wire.CloseCode, reason string) {
	f.closed = append(f.closed, sessionID+":"+playerID)
}
func (f *fakeSockets) BroadcastSessionState(session *domain.Session) {
	f.states = append(f.states, session)
}
func (f *fakeSockets) BroadcastEnvelope(sessionID string, envelope map[string]interface{}) {
	f.envelopes = append(f.envelopes, envelope)
}

func newTestStore() *store.Store {
	world := store.NewWorld(0)
	return store.New(world, memadapter.New())
}

func sessionConfig() config.SessionConfig {
	return config.SessionConfig{
		TurnTimeout:       20 * time.Second,
		TurnWarningWindow: 5 * time.Second,
		IdleTTL:           30 * time.Second,
	}
}

func TestTurnSweeperTickEmitsWarningOnceInsideWindow(t *testing.T) {
	st := newTestStore()
	sockets := &fakeSockets{}
	sweeper := NewTurnSweeper(st, sockets, nil, action.NewFarkleRoller(), sessionConfig())

	now := time.Unix(30_000, 0)
	sess := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	sess.Participants["host"] = &domain.Participant{PlayerID: "host", IsSeated: true, IsReady: true, JoinedAt: now, RemainingDice: 6}
	sess.Participants["guest"] = &domain.Participant{PlayerID: "guest", IsSeated: true, IsReady: true, JoinedAt: now.Add(time.Second), RemainingDice: 6}
	sess.ExpiresAt = now.Add(time.Hour)
	turn.EnsureSessionTurnState(sess, now)
	if err := st.World.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	expiresAt := *sess.TurnState.TurnExpiresAt
	almostExpired := expiresAt.Add(-2 * time.Second)

	sweeper.tick(almostExpired)
	sweeper.tick(almostExpired.Add(time.Second))

	warnings := 0
	for _, e := range sockets.envelopes {
		if e["type"] == "turn_timeout_warning" {
			warnings++
		}
	}
	if warnings != 1 {
		t.Errorf("expected exactly one turn_timeout_warning across repeated ticks inside the window, got %d", warnings)
	}
}

func TestTurnSweeperTickAdvancesExpiredHumanTurn(t *testing.T) {
	st := newTestStore()
	sockets := &fakeSockets{}
	sweeper := NewTurnSweeper(st, sockets, nil, action.NewFarkleRoller(), sessionConfig())

	now := time.Unix(30_000, 0)
	sess := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	sess.Participants["host"] = &domain.Participant{PlayerID: "host", IsSeated: true, IsReady: true, JoinedAt: now, RemainingDice: 6}
	sess.Participants["guest"] = &domain.Participant{PlayerID: "guest", IsSeated: true, IsReady: true, JoinedAt: now.Add(time.Second), RemainingDice: 6}
	sess.ExpiresAt = now.Add(time.Hour)
	turn.EnsureSessionTurnState(sess, now)
	if err := st.World.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	firstActive := sess.TurnState.ActiveTurnPlayerID
	expiresAt := *sess.TurnState.TurnExpiresAt

	sweeper.tick(expiresAt.Add(time.Second))

	got := st.World.GetSession("sess-1")
	if got.TurnState.ActiveTurnPlayerID == firstActive {
		t.Errorf("expected the active turn player to change after timeout, still %q", firstActive)
	}

	foundAutoAdvance := false
	for _, e := range sockets.envelopes {
		if e["type"] == "turn_auto_advanced" {
			foundAutoAdvance = true
		}
	}
	if !foundAutoAdvance {
		t.Errorf("expected a turn_auto_advanced envelope after an expired human turn")
	}
	if len(sockets.states) == 0 {
		t.Errorf("expected the session state to be broadcast after the auto-advance")
	}
}

func TestTurnSweeperTickRunsExpiredBotTurn(t *testing.T) {
	st := newTestStore()
	sockets := &fakeSockets{}
	bots := botengine.NewScriptedEngine(action.NewFarkleRoller())
	sweeper := NewTurnSweeper(st, sockets, bots, action.NewFarkleRoller(), sessionConfig())

	now := time.Unix(30_000, 0)
	sess := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	sess.Participants["bot-1"] = &domain.Participant{PlayerID: "bot-1", IsSeated: true, IsBot: true, IsReady: true, JoinedAt: now, RemainingDice: 6}
	sess.Participants["human"] = &domain.Participant{PlayerID: "human", IsSeated: true, IsReady: true, JoinedAt: now.Add(time.Second), RemainingDice: 6}
	sess.ExpiresAt = now.Add(time.Hour)
	turn.EnsureSessionTurnState(sess, now)
	if err := st.World.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.TurnState.ActiveTurnPlayerID != "bot-1" {
		t.Fatalf("expected bot-1 active in the fixture, got %q", sess.TurnState.ActiveTurnPlayerID)
	}

	expiresAt := *sess.TurnState.TurnExpiresAt
	sweeper.tick(expiresAt.Add(time.Second))

	got := st.World.GetSession("sess-1")
	if got.TurnState.ActiveTurnPlayerID == "" {
		t.Errorf("expected an active turn player to remain assigned after the bot's timeout-driven turn")
	}
}

func TestTurnSweeperTickIgnoresSessionWithoutDeadline(t *testing.T) {
	st := newTestStore()
	sockets := &fakeSockets{}
	sweeper := NewTurnSweeper(st, sockets, nil, action.NewFarkleRoller(), sessionConfig())

	now := time.Unix(30_000, 0)
	sess := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	sess.ExpiresAt = now.Add(time.Hour)
	if err := st.World.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sweeper.tick(now.Add(time.Hour))

	if len(sockets.envelopes) != 0 {
		t.Errorf("expected no broadcasts for a session with no turn deadline, got %d", len(sockets.envelopes))
	}
}

func TestIdleSweeperTickResetsExpiredPublicRoom(t *testing.T) {
	st := newTestStore()
	sockets := &fakeSockets{}
	sessions := sessionctl.New(st, sessionConfig(), nil)
	mem := membership.New(st.World, sockets, sessions, action.NewFarkleRoller())
	sweeper := NewIdleSweeper(st, sockets, sessions, mem)

	now := time.Unix(40_000, 0)
	sess := domain.NewSession("sess-pub", "WXYZ", domain.RoomKindPublicDefault, now)
	sess.ExpiresAt = now.Add(-time.Minute)
	if err := st.World.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sweeper.tick(now)

	still := st.World.GetSession("sess-pub")
	if still == nil {
		t.Fatalf("expected a public room to be reset in place, not deleted")
	}
	if !still.IsAlive(now) {
		t.Errorf("expected the public room to be revived by ResetPublicRoomForIdle")
	}

	found := false
	for _, e := range sockets.envelopes {
		if e["type"] == "session_expired" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a session_expired envelope for the idle public room")
	}
}

func TestIdleSweeperTickDeletesExpiredPrivateRoom(t *testing.T) {
	st := newTestStore()
	sockets := &fakeSockets{}
	sessions := sessionctl.New(st, sessionConfig(), nil)
	mem := membership.New(st.World, sockets, sessions, action.NewFarkleRoller())
	sweeper := NewIdleSweeper(st, sockets, sessions, mem)

	now := time.Unix(40_000, 0)
	sess := domain.NewSession("sess-priv", "ABCD", domain.RoomKindPrivate, now)
	sess.Participants["host"] = &domain.Participant{PlayerID: "host", IsSeated: true, JoinedAt: now}
	sess.ExpiresAt = now.Add(-time.Minute)
	if err := st.World.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sweeper.tick(now)

	if st.World.GetSession("sess-priv") != nil {
		t.Errorf("expected the idle private room to be deleted")
	}
	if len(sockets.closed) != 1 || sockets.closed[0] != "sess-priv:host" {
		t.Errorf("expected host's socket to be closed before deletion, got %v", sockets.closed)
	}
}
