package membership

import (
	"testing"
	"time"

	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/store"
	"github.com/farkleio/tablecore/internal/wire"
)

type fakeSockets struct {
	closed      []string
	broadcasts  int
	envelopes   []map[string]interface{}
}

func (f *fakeSockets) CloseSessionPlayerSockets(sessionID, playerID string, code wire.CloseCode, reason string) {
	f.closed = append(f.closed, sessionID+":"+playerID)
}
func (f *fakeSockets) BroadcastSessionState(session *domain.Session) { f.broadcasts++ }
func (f *fakeSockets) BroadcastEnvelope(sessionID string, envelope map[string]interface{}) {
	f.envelopes = append(f.envelopes, envelope)
}

type fakeRooms struct {
	resetCalls      int
	reconcileCalls  int
}

func (f *fakeRooms) ResetPublicRoomForIdle(session *domain.Session, now time.Time) { f.resetCalls++ }
func (f *fakeRooms) ReconcilePublicRoomInventory(session *domain.Session) bool {
	f.reconcileCalls++
	return false
}

func newTestWorldWithSession(now time.Time) (*store.World, string) {
	world := store.NewWorld(0)
	sess := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	sess.OwnerPlayerID = "owner"
	sess.Participants["owner"] = &domain.Participant{PlayerID: "owner", IsSeated: true, JoinedAt: now}
	sess.Participants["guest"] = &domain.Participant{PlayerID: "guest", IsSeated: true, JoinedAt: now.Add(time.Second)}
	_ = world.CreateSession(sess)
	return world, sess.SessionID
}

func TestRemoveParticipantPromotesNewOwner(t *testing.T) {
	now := time.Unix(10_000, 0)
	world, sessionID := newTestWorldWithSession(now)
	sockets := &fakeSockets{}
	rooms := &fakeRooms{}
	svc := New(world, sockets, rooms, nil)

	if err := svc.RemoveParticipantFromSession(sessionID, "owner", RemoveOpts{SocketReason: "left"}, now); err != nil {
		t.Fatalf("RemoveParticipantFromSession: %v", err)
	}

	got := world.GetSession(sessionID)
	if got.OwnerPlayerID != "guest" {
		t.Errorf("ownerPlayerId = %q, want guest", got.OwnerPlayerID)
	}
	if _, stillThere := got.Participants["owner"]; stillThere {
		t.Errorf("expected owner participant removed")
	}
}

func TestRemoveParticipantTwiceIsIdempotent(t *testing.T) {
	now := time.Unix(10_000, 0)
	world, sessionID := newTestWorldWithSession(now)
	svc := New(world, &fakeSockets{}, &fakeRooms{}, nil)

	if err := svc.RemoveParticipantFromSession(sessionID, "guest", RemoveOpts{}, now); err != nil {
		t.Fatalf("first removal: %v", err)
	}
	if err := svc.RemoveParticipantFromSession(sessionID, "guest", RemoveOpts{}, now); err != nil {
		t.Fatalf("second removal should also succeed: %v", err)
	}
}

func TestRemoveParticipantExpiresEmptyPrivateSession(t *testing.T) {
	now := time.Unix(10_000, 0)
	world := store.NewWorld(0)
	sess := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	sess.OwnerPlayerID = "owner"
	sess.ExpiresAt = now.Add(time.Hour)
	sess.Participants["owner"] = &domain.Participant{PlayerID: "owner", IsSeated: true, JoinedAt: now}
	_ = world.CreateSession(sess)

	svc := New(world, &fakeSockets{}, &fakeRooms{}, nil)
	if err := svc.RemoveParticipantFromSession("sess-1", "owner", RemoveOpts{}, now); err != nil {
		t.Fatalf("RemoveParticipantFromSession: %v", err)
	}

	got := world.GetSession("sess-1")
	if got.IsAlive(now.Add(time.Nanosecond)) {
		t.Errorf("expected session to be expired after last human leaves a private room")
	}
}

func TestModerateRejectsSelfModeration(t *testing.T) {
	now := time.Unix(10_000, 0)
	world, sessionID := newTestWorldWithSession(now)
	svc := New(world, &fakeSockets{}, &fakeRooms{}, nil)

	err := svc.Moderate(sessionID, ModerateOpts{RequesterPlayerID: "owner", TargetPlayerID: "owner", Action: "kick"}, now)
	if err == nil || err.Error() != "cannot_moderate_self" {
		t.Fatalf("err = %v, want cannot_moderate_self", err)
	}
}

func TestModerateBanRecordsBanAndRemoves(t *testing.T) {
	now := time.Unix(10_000, 0)
	world, sessionID := newTestWorldWithSession(now)
	svc := New(world, &fakeSockets{}, &fakeRooms{}, nil)

	if err := svc.Moderate(sessionID, ModerateOpts{RequesterPlayerID: "owner", TargetPlayerID: "guest", Action: "ban"}, now); err != nil {
		t.Fatalf("Moderate: %v", err)
	}

	got := world.GetSession(sessionID)
	if _, banned := got.RoomBans["guest"]; !banned {
		t.Errorf("expected guest to be banned")
	}
	if _, stillThere := got.Participants["guest"]; stillThere {
		t.Errorf("expected guest removed after ban")
	}
}
