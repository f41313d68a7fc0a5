package conduct

import (
	"testing"
	"time"

	"github.com/farkleio/tablecore/internal/domain"
)

func newTestSession(now time.Time) *domain.Session {
	s := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	s.Participants["a"] = &domain.Participant{PlayerID: "a", IsSeated: true, JoinedAt: now}
	s.Participants["b"] = &domain.Participant{PlayerID: "b", IsSeated: true, JoinedAt: now}
	return s
}

func TestPreflightAllowsUnmutedSender(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newTestSession(now)
	r := NewReferenceRegistry()

	if v := r.Preflight(s, "a"); v.Blocked {
		t.Fatalf("expected unmuted sender allowed, got blocked: %v", v.Reason)
	}
}

func TestPreflightBlocksMutedSender(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newTestSession(now)
	mutedUntil := time.Now().Add(time.Minute)
	s.ChatConductState.Players["a"] = &domain.PlayerConductState{MutedUntil: &mutedUntil}
	r := NewReferenceRegistry()

	v := r.Preflight(s, "a")
	if !v.Blocked {
		t.Fatalf("expected muted sender blocked")
	}
}

func TestInboundRejectsEmptyText(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newTestSession(now)
	r := NewReferenceRegistry()

	v := r.Inbound(s, "a", map[string]interface{}{"text": ""}, now)
	if !v.Blocked {
		t.Fatalf("expected empty text rejected")
	}
}

func TestInboundMutesAfterStrikeThreshold(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newTestSession(now)
	r := NewReferenceRegistry()
	r.StrikesToMute = 3

	var last Verdict
	for i := 0; i < 3; i++ {
		last = r.Inbound(s, "a", map[string]interface{}{"text": "hi"}, now.Add(time.Duration(i)*time.Millisecond))
	}
	if !last.Blocked || !last.StateChanged {
		t.Fatalf("expected the 3rd rapid message to mute the sender, got %+v", last)
	}
	state := s.ChatConductState.Players["a"]
	if state == nil || !state.IsMuted(now) {
		t.Fatalf("expected conduct state to record an active mute")
	}
}

func TestInboundAutoBansAfterRepeatedViolations(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newTestSession(now)
	r := NewReferenceRegistry()
	r.StrikesToMute = 1
	r.StrikesToAutoBan = 2

	r.Inbound(s, "a", map[string]interface{}{"text": "hi"}, now)
	v := r.Inbound(s, "a", map[string]interface{}{"text": "hi"}, now.Add(time.Millisecond))
	if !v.ShouldAutoBan {
		t.Fatalf("expected second violation to trip auto-ban, got %+v", v)
	}
}

func TestDirectBlocksWhenEitherPartyHasBlocked(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newTestSession(now)
	s.Participants["b"].BlockedPlayerIDs = map[string]struct{}{"a": {}}
	r := NewReferenceRegistry()

	v := r.Direct(s, "a", "b")
	if !v.Blocked {
		t.Fatalf("expected direct message blocked by recipient's block list")
	}
}

func TestDirectAllowsUnblockedPair(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newTestSession(now)
	r := NewReferenceRegistry()

	if v := r.Direct(s, "a", "b"); v.Blocked {
		t.Fatalf("expected unblocked pair allowed, got blocked: %v", v.Reason)
	}
}
