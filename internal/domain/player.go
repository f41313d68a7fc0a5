// Package domain contains the core entities of the dice table server: the
// process-wide Store's four top-level aggregates (Player, Session,
// Participant via Session, AuthToken, GameLog) plus the value types they
// compose (TurnState, RollSnapshot, ScoreSummary, ChatConductState).
package domain

import "time"

// AdminRole is one of the three admin levels, ordered viewer < operator < owner.
type AdminRole string

const (
	AdminRoleViewer   AdminRole = "viewer"
	AdminRoleOperator AdminRole = "operator"
	AdminRoleOwner    AdminRole = "owner"
)

// Player is keyed by UID and is never explicitly destroyed; it is created on
// first admin-role assignment or first session join.
type Player struct {
	UID                string     `json:"uid"`
	DisplayName        string     `json:"displayName,omitempty"`
	Email              string     `json:"email,omitempty"`
	AvatarURL          string     `json:"avatarUrl,omitempty"`
	ProviderID         string     `json:"providerId,omitempty"`
	AdminRole          *AdminRole `json:"adminRole,omitempty"`
	AdminRoleUpdatedAt *time.Time `json:"adminRoleUpdatedAt,omitempty"`
	AdminRoleUpdatedBy string     `json:"adminRoleUpdatedBy,omitempty"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Clone returns a deep-enough copy so callers never hold a mutable alias
// into the Store's owned map.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	cp := *p
	if p.AdminRole != nil {
		role := *p.AdminRole
		cp.AdminRole = &role
	}
	if p.AdminRoleUpdatedAt != nil {
		t := *p.AdminRoleUpdatedAt
		cp.AdminRoleUpdatedAt = &t
	}
	return &cp
}
