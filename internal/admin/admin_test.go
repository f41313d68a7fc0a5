package admin

import (
	"testing"
	"time"

	"github.com/farkleio/tablecore/internal/config"
	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/membership"
	"github.com/farkleio/tablecore/internal/store"
)

func TestNormalizeAdminRole(t *testing.T) {
	cases := map[string]*domain.AdminRole{
		"owner":    rolePtr(domain.AdminRoleOwner),
		" Owner  ": rolePtr(domain.AdminRoleOwner),
		"OPERATOR": rolePtr(domain.AdminRoleOperator),
		"viewer":   rolePtr(domain.AdminRoleViewer),
		"nonsense": nil,
		"":         nil,
	}
	for input, want := range cases {
		got := NormalizeAdminRole(input)
		if (got == nil) != (want == nil) {
			t.Errorf("NormalizeAdminRole(%q) = %v, want %v", input, got, want)
			continue
		}
		if got != nil && *got != *want {
			t.Errorf("NormalizeAdminRole(%q) = %v, want %v", input, *got, *want)
		}
	}
}

func rolePtr(r domain.AdminRole) *domain.AdminRole { return &r }

func TestHasRequiredAdminRole(t *testing.T) {
	operator := domain.AdminRoleOperator
	if !HasRequiredAdminRole(&operator, domain.AdminRoleViewer) {
		t.Errorf("operator should satisfy viewer requirement")
	}
	if HasRequiredAdminRole(&operator, domain.AdminRoleOwner) {
		t.Errorf("operator should not satisfy owner requirement")
	}
	if HasRequiredAdminRole(nil, domain.AdminRoleViewer) {
		t.Errorf("nil role should satisfy nothing")
	}
}

func TestResolveAdminRoleForIdentityBootstrapTakesPrecedence(t *testing.T) {
	world := store.NewWorld(0)
	bootstrap := config.BootstrapConfig{OwnerUIDs: []string{"root-uid"}}

	resolved := ResolveAdminRoleForIdentity(world, bootstrap, "root-uid", "whatever@example.com")
	if resolved.Source != "bootstrap" || resolved.Role == nil || *resolved.Role != domain.AdminRoleOwner {
		t.Fatalf("resolved = %+v, want bootstrap owner", resolved)
	}
}

func TestResolveAdminRoleForIdentityFallsBackToAssigned(t *testing.T) {
	world := store.NewWorld(0)
	now := time.Unix(1000, 0)
	operator := domain.AdminRoleOperator
	world.UpsertPlayer(&domain.Player{UID: "u1", AdminRole: &operator, UpdatedAt: now})

	resolved := ResolveAdminRoleForIdentity(world, config.BootstrapConfig{}, "u1", "")
	if resolved.Source != "assigned" || resolved.Role == nil || *resolved.Role != domain.AdminRoleOperator {
		t.Fatalf("resolved = %+v, want assigned operator", resolved)
	}
}

func TestUpsertRoleRefusesToDemoteBootstrapOwner(t *testing.T) {
	world := store.NewWorld(0)
	bootstrap := config.BootstrapConfig{OwnerUIDs: []string{"root-uid"}}
	now := time.Unix(1000, 0)

	err := UpsertRole(world, bootstrap, "root-uid", domain.AdminRoleViewer, "someone", now)
	if err == nil || err.Error() != "bootstrap_owner_locked" {
		t.Fatalf("err = %v, want bootstrap_owner_locked", err)
	}
}

func TestUpsertRoleAssignsNonBootstrapPlayer(t *testing.T) {
	world := store.NewWorld(0)
	now := time.Unix(1000, 0)

	if err := UpsertRole(world, config.BootstrapConfig{}, "u2", domain.AdminRoleOperator, "admin-1", now); err != nil {
		t.Fatalf("UpsertRole: %v", err)
	}
	p := world.GetPlayer("u2")
	if p == nil || p.AdminRole == nil || *p.AdminRole != domain.AdminRoleOperator {
		t.Fatalf("player = %+v, want operator role", p)
	}
}

func TestExpireSessionRecordsAudit(t *testing.T) {
	world := store.NewWorld(0)
	now := time.Unix(1000, 0)
	sess := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	sess.ExpiresAt = now.Add(time.Hour)
	_ = world.CreateSession(sess)

	changed, err := ExpireSession(world, nil, "admin-1", "sess-1", now)
	if err != nil {
		t.Fatalf("ExpireSession: %v", err)
	}
	if changed {
		t.Errorf("private session expiry should never report roomInventoryChanged")
	}
	got := world.GetSession("sess-1")
	if got.IsAlive(now.Add(time.Nanosecond)) {
		t.Errorf("expected session expired")
	}
	entries := world.ListLogs(func(domain.GameLog) bool { return true }, 10)
	if len(entries) != 1 || entries[0].Payload["action"] != "expire_session" {
		t.Errorf("entries = %+v, want one expire_session audit entry", entries)
	}
}

// stubRoomLifecycle lets admin tests exercise ExpireSession's
// reconciliation wiring without depending on sessionctl.Service.
type stubRoomLifecycle struct {
	changed bool
}

func (s *stubRoomLifecycle) ResetPublicRoomForIdle(*domain.Session, time.Time) {}
func (s *stubRoomLifecycle) ReconcilePublicRoomInventory(*domain.Session) bool { return s.changed }

func TestExpireSessionReportsRoomInventoryChange(t *testing.T) {
	world := store.NewWorld(0)
	now := time.Unix(1000, 0)
	sess := domain.NewSession("sess-1", "ABCD", domain.RoomKindPublicOverflow, now)
	sess.ExpiresAt = now.Add(time.Hour)
	_ = world.CreateSession(sess)

	changed, err := ExpireSession(world, &stubRoomLifecycle{changed: true}, "admin-1", "sess-1", now)
	if err != nil {
		t.Fatalf("ExpireSession: %v", err)
	}
	if !changed {
		t.Error("expected roomInventoryChanged to reflect the reconciler's result")
	}
	entries := world.ListLogs(func(domain.GameLog) bool { return true }, 10)
	if len(entries) != 1 || entries[0].Payload["roomInventoryChanged"] != true {
		t.Errorf("entries = %+v, want roomInventoryChanged=true recorded on the audit entry", entries)
	}
}

func TestClearSessionConductPlayerAndState(t *testing.T) {
	world := store.NewWorld(0)
	now := time.Unix(1000, 0)
	sess := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	sess.ChatConductState.Players["p1"] = &domain.PlayerConductState{TotalStrikes: 3}
	sess.ChatConductState.Players["p2"] = &domain.PlayerConductState{TotalStrikes: 1}
	_ = world.CreateSession(sess)

	if err := ClearSessionConductPlayer(world, "admin-1", "sess-1", "p1", now); err != nil {
		t.Fatalf("ClearSessionConductPlayer: %v", err)
	}
	got := world.GetSession("sess-1")
	if _, ok := got.ChatConductState.Players["p1"]; ok {
		t.Errorf("expected p1 conduct record cleared")
	}
	if _, ok := got.ChatConductState.Players["p2"]; !ok {
		t.Errorf("expected p2 conduct record untouched")
	}

	if err := ClearSessionConductState(world, "admin-1", "sess-1", now); err != nil {
		t.Fatalf("ClearSessionConductState: %v", err)
	}
	got = world.GetSession("sess-1")
	if len(got.ChatConductState.Players) != 0 {
		t.Errorf("expected conduct state fully cleared, got %+v", got.ChatConductState.Players)
	}
}

func TestRemoveParticipantDelegatesToMembershipAndAudits(t *testing.T) {
	world := store.NewWorld(0)
	now := time.Unix(1000, 0)
	sess := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	sess.OwnerPlayerID = "owner"
	sess.Participants["owner"] = &domain.Participant{PlayerID: "owner", IsSeated: true, JoinedAt: now}
	sess.Participants["guest"] = &domain.Participant{PlayerID: "guest", IsSeated: true, JoinedAt: now.Add(time.Second)}
	_ = world.CreateSession(sess)

	svc := membership.New(world, nil, nil, nil)
	if err := RemoveParticipant(svc, "admin-1", "sess-1", "guest", now); err != nil {
		t.Fatalf("RemoveParticipant: %v", err)
	}
	got := world.GetSession("sess-1")
	if _, ok := got.Participants["guest"]; ok {
		t.Errorf("expected guest removed")
	}
	entries := world.ListLogs(func(e domain.GameLog) bool { return e.Payload["action"] == "remove_participant" }, 10)
	if len(entries) != 1 {
		t.Errorf("expected one remove_participant audit entry, got %d", len(entries))
	}
}

func TestListAuditClampsLimit(t *testing.T) {
	world := store.NewWorld(0)
	now := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		world.AppendLog(domain.GameLog{ID: "e", Type: domain.LogTypeAdminAction, Timestamp: now})
	}

	entries := ListAudit(world, AuditListOpts{RequestLimit: 0, DefaultLimit: 2, HardCap: 10})
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2 (default limit applied)", len(entries))
	}

	entries = ListAudit(world, AuditListOpts{RequestLimit: 1000, DefaultLimit: 2, HardCap: 3})
	if len(entries) != 3 {
		t.Errorf("len(entries) = %d, want 3 (hard cap applied)", len(entries))
	}
}
