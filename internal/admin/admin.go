// Package admin implements admin-role resolution against a bootstrap
// allowlist plus stored assignment, and the audited operator-level
// operations.
package admin

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farkleio/tablecore/internal/apperr"
	"github.com/farkleio/tablecore/internal/config"
	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/membership"
	"github.com/farkleio/tablecore/internal/store"
)

var roleLevel = map[domain.AdminRole]int{
	domain.AdminRoleViewer: 1,
	domain.AdminRoleOperator: 2,
	domain.AdminRoleOwner: 3,
}

// NormalizeAdminRole maps a case/whitespace-insensitive string to exactly
// {viewer, operator, owner}, or nil if it matches none.
func NormalizeAdminRole(raw string) *domain.AdminRole {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(domain.AdminRoleViewer):
		r := domain.AdminRoleViewer
		return &r
	case string(domain.AdminRoleOperator):
		r := domain.AdminRoleOperator
		return &r
	case string(domain.AdminRoleOwner):
		r := domain.AdminRoleOwner
		return &r
	default:
		return nil
	}
}

// HasRequiredAdminRole reports whether actual is at least as privileged as
// required, using the strict level ordering viewer < operator < owner.
func HasRequiredAdminRole(actual *domain.AdminRole, required domain.AdminRole) bool {
	if actual == nil {
		return false
	}
	return roleLevel[*actual] >= roleLevel[required]
}

// ResolvedRole is the outcome of ResolveAdminRoleForIdentity.
type ResolvedRole struct {
	Role *domain.AdminRole
	Source string // "bootstrap" | "assigned" | "none"
}

// ResolveAdminRoleForIdentity consults the bootstrap allowlists (by uid,
// then by lowercase email) before falling back to the player's stored
// AdminRole.
func ResolveAdminRoleForIdentity(world *store.World, bootstrap config.BootstrapConfig, uid, email string) ResolvedRole {
	if isBootstrapOwner(bootstrap, uid, email) {
		owner := domain.AdminRoleOwner
		return ResolvedRole{Role: &owner, Source: "bootstrap"}
	}
	p := world.GetPlayer(uid)
	if p != nil && p.AdminRole != nil {
		role := *p.AdminRole
		return ResolvedRole{Role: &role, Source: "assigned"}
	}
	return ResolvedRole{Role: nil, Source: "none"}
}

func isBootstrapOwner(bootstrap config.BootstrapConfig, uid, email string) bool {
	for _, allowedUID := range bootstrap.OwnerUIDs {
		if allowedUID == uid {
			return true
		}
	}
	lowerEmail := strings.ToLower(strings.TrimSpace(email))
	if lowerEmail == "" {
		return false
	}
	for _, allowedEmail := range bootstrap.OwnerEmails {
		if allowedEmail == lowerEmail {
			return true
		}
	}
	return false
}

// UpsertRole assigns role to targetUID, refusing to change any bootstrap
// owner away from owner.
func UpsertRole(world *store.World, bootstrap config.BootstrapConfig, targetUID string, role domain.AdminRole, updatedBy string, now time.Time) error {
	if isBootstrapOwner(bootstrap, targetUID, "") && role != domain.AdminRoleOwner {
		return apperr.ErrBootstrapOwnerLocked
	}
	return world.WithPlayer(targetUID, now, func(p *domain.Player) error {
		r := role
		p.AdminRole = &r
		p.AdminRoleUpdatedAt = &now
		p.AdminRoleUpdatedBy = updatedBy
		p.UpdatedAt = now
		return nil
	})
}

// recordAudit appends a GameLog audit entry and compacts the log.
func recordAudit(world *store.World, actorUID, targetUID, sessionID string, details map[string]interface{}, now time.Time) {
	payload := map[string]interface{}{
		"actorUid": actorUID,
		"targetUid": targetUID,
	}
	for k, v := range details {
		payload[k] = v
	}
	world.AppendLog(domain.GameLog{
		ID: uuid.NewString(),
		PlayerID: targetUID,
		SessionID: sessionID,
		Type: domain.LogTypeAdminAction,
		Timestamp: now,
		Payload: payload,
	})
	world.CompactLogStore()
}

// ExpireSession marks a session expired immediately and reconciles
// public-room inventory for it, reporting whether that reconciliation
// changed anything; callers are expected to have already checked
// HasRequiredAdminRole(actual, operator).
func ExpireSession(world *store.World, rooms membership.RoomLifecycle, actorUID, sessionID string, now time.Time) (bool, error) {
	var roomInventoryChanged bool
	err := world.WithSession(sessionID, func(s *domain.Session) error {
		s.ExpiresAt = now
		s.SessionComplete = true
		completed := now
		s.CompletedAt = &completed
		if rooms != nil {
			roomInventoryChanged = rooms.ReconcilePublicRoomInventory(s)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	recordAudit(world, actorUID, "", sessionID, map[string]interface{}{"action": "expire_session", "roomInventoryChanged": roomInventoryChanged}, now)
	return roomInventoryChanged, nil
}

// RemoveParticipant is the admin-invoked forced removal operation,
// delegating to membership.Service so it goes through the sole deletion
// path, then recording its own audit entry.
func RemoveParticipant(svc *membership.Service, actorUID, sessionID, targetPlayerID string, now time.Time) error {
	if err := svc.RemoveParticipantFromSession(sessionID, targetPlayerID, membership.RemoveOpts{
		Source: "admin_remove",
		SocketReason: "removed_by_admin",
	}, now); err != nil {
		return err
	}
	recordAudit(svc.World, actorUID, targetPlayerID, sessionID, map[string]interface{}{"action": "remove_participant"}, now)
	return nil
}

// ClearSessionConductPlayer resets one player's chat-conduct record.
func ClearSessionConductPlayer(world *store.World, actorUID, sessionID, targetPlayerID string, now time.Time) error {
	err := world.WithSession(sessionID, func(s *domain.Session) error {
		delete(s.ChatConductState.Players, targetPlayerID)
		return nil
	})
	if err != nil {
		return err
	}
	recordAudit(world, actorUID, targetPlayerID, sessionID, map[string]interface{}{"action": "clear_session_conduct_player"}, now)
	return nil
}

// ClearSessionConductState resets every player's chat-conduct record for
// the session.
func ClearSessionConductState(world *store.World, actorUID, sessionID string, now time.Time) error {
	err := world.WithSession(sessionID, func(s *domain.Session) error {
		s.ChatConductState.Players = make(map[string]*domain.PlayerConductState)
		return nil
	})
	if err != nil {
		return err
	}
	recordAudit(world, actorUID, "", sessionID, map[string]interface{}{"action": "clear_session_conduct_state"}, now)
	return nil
}

// AuditListOpts bounds an audit-log listing request.
type AuditListOpts struct {
	SessionID string // optional filter
	PlayerID string // optional filter
	RequestLimit int
	DefaultLimit int
	HardCap int
}

// ListAudit returns GameLog entries newest-first, clamped to
// [1, HardCap] with DefaultLimit applied when RequestLimit is unset.
func ListAudit(world *store.World, opts AuditListOpts) []domain.GameLog {
	limit := opts.RequestLimit
	if limit <= 0 {
		limit = opts.DefaultLimit
	}
	if limit > opts.HardCap {
		limit = opts.HardCap
	}
	if limit < 1 {
		limit = 1
	}
	return world.ListLogs(func(entry domain.GameLog) bool {
		if entry.Type != domain.LogTypeAdminAction {
			return false
		}
		if opts.SessionID != "" && entry.SessionID != opts.SessionID {
			return false
		}
		if opts.PlayerID != "" && entry.PlayerID != opts.PlayerID {
			return false
		}
		return true
	}, limit)
}
