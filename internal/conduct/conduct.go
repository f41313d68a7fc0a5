// Package conduct implements the three-stage chat-conduct filter
// pipeline: preflight (sender restrictions), inbound (content rules +
// strike accrual), and direct delivery (block-relationship checks). The
// pipeline is a capability interface so the orchestrator can be built
// against it without depending on a specific moderation policy.
package conduct

import (
	"time"

	"github.com/farkleio/tablecore/internal/apperr"
	"github.com/farkleio/tablecore/internal/domain"
)

// Verdict is the outcome of any one filter stage.
type Verdict struct {
	Blocked bool
	Reason error
	StateChanged bool
	ShouldAutoBan bool
}

// Registry is the filter pipeline capability the orchestrator depends on.
type Registry interface {
	Preflight(session *domain.Session, senderID string) Verdict
	Inbound(session *domain.Session, senderID string, payload map[string]interface{}, now time.Time) Verdict
	Direct(session *domain.Session, senderID, targetID string) Verdict
}

// ReferenceRegistry is the default Registry: mute-based sender
// restriction, a sliding-window strike counter for repeated messages,
// and the participant block list for direct delivery.
type ReferenceRegistry struct {
	StrikeWindow time.Duration
	StrikesToMute int
	MuteDuration time.Duration
	StrikesToAutoBan int
}

// NewReferenceRegistry returns a ReferenceRegistry with sane defaults:
// every message sent while 3 or more fall within 10s accrues a strike and
// mutes the sender for a minute; the 6th strike auto-bans instead.
func NewReferenceRegistry() *ReferenceRegistry {
	return &ReferenceRegistry{
		StrikeWindow: 10 * time.Second,
		StrikesToMute: 3,
		MuteDuration: time.Minute,
		StrikesToAutoBan: 6,
	}
}

// Preflight rejects senders currently muted.
func (r *ReferenceRegistry) Preflight(session *domain.Session, senderID string) Verdict {
	state := session.ChatConductState.Players[senderID]
	now := time.Now()
	if state.IsMuted(now) {
		return Verdict{Blocked: true, Reason: apperr.ErrRoomChannelSenderRestricted}
	}
	return Verdict{}
}

// Inbound validates the payload shape and accrues a strike for rapid
// repeated messages within StrikeWindow, muting or auto-banning once the
// configured thresholds are crossed.
func (r *ReferenceRegistry) Inbound(session *domain.Session, senderID string, payload map[string]interface{}, now time.Time) Verdict {
	text, ok := payload["text"].(string)
	if !ok || text == "" {
		return Verdict{Blocked: true, Reason: apperr.ErrRoomChannelInvalidMessage}
	}

	state := session.ChatConductState.ForPlayer(senderID)
	cutoff := now.Add(-r.StrikeWindow)
	kept := state.StrikeEvents[:0]
	for _, t := range state.StrikeEvents {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	state.StrikeEvents = append(kept, now)

	if len(state.StrikeEvents) < r.StrikesToMute {
		return Verdict{}
	}

	state.TotalStrikes++
	state.LastViolationAt = &now

	if state.TotalStrikes >= r.StrikesToAutoBan {
		return Verdict{Blocked: true, Reason: apperr.ErrRoomChannelMessageBlocked, StateChanged: true, ShouldAutoBan: true}
	}

	mutedUntil := now.Add(r.MuteDuration)
	state.MutedUntil = &mutedUntil
	return Verdict{Blocked: true, Reason: apperr.ErrRoomChannelMessageBlocked, StateChanged: true}
}

// Direct rejects delivery when either party has blocked the other.
func (r *ReferenceRegistry) Direct(session *domain.Session, senderID, targetID string) Verdict {
	sender := session.Participants[senderID]
	target := session.Participants[targetID]
	if sender.HasBlocked(targetID) || target.HasBlocked(senderID) {
		return Verdict{Blocked: true, Reason: apperr.ErrRoomChannelBlocked}
	}
	return Verdict{}
}
