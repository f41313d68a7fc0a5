package domain

import "time"

// BotProfile describes the scripted personality used by the bot engine
// capability (internal/botengine) when it is this participant's turn.
type BotProfile struct {
	Name           string  `json:"name"`
	RiskTolerance  float64 `json:"riskTolerance"`
	ReactionDelay  int     `json:"reactionDelayMs"`
}

// Participant is a human or bot seat within a Session.
//
// Invariants: IsReady implies IsSeated. IsComplete implies RemainingDice==0
// and CompletedAt non-nil.
type Participant struct {
	PlayerID           string             `json:"playerId"`
	DisplayName        string             `json:"displayName,omitempty"`
	AvatarURL          string             `json:"avatarUrl,omitempty"`
	ProviderID         string             `json:"providerId,omitempty"`
	IsBot              bool               `json:"isBot"`
	BotProfile         *BotProfile        `json:"botProfile,omitempty"`
	IsSeated           bool               `json:"isSeated"`
	IsReady            bool               `json:"isReady"`
	QueuedForNextGame  bool               `json:"queuedForNextGame"`
	Score              int                `json:"score"`
	RemainingDice      int                `json:"remainingDice"`
	IsComplete         bool               `json:"isComplete"`
	CompletedAt        *time.Time         `json:"completedAt,omitempty"`
	JoinedAt           time.Time          `json:"joinedAt"`
	LastHeartbeatAt    time.Time          `json:"lastHeartbeatAt"`
	TurnTimeoutRound   *int               `json:"turnTimeoutRound,omitempty"`
	TurnTimeoutCount   int                `json:"turnTimeoutCount"`
	BlockedPlayerIDs   map[string]struct{} `json:"-"`
}

// Clone deep-copies the participant, including its block set, so the turn
// reconciler and membership service never share mutable state with a
// previous snapshot handed to a caller.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	cp := *p
	if p.BotProfile != nil {
		profile := *p.BotProfile
		cp.BotProfile = &profile
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	if p.TurnTimeoutRound != nil {
		r := *p.TurnTimeoutRound
		cp.TurnTimeoutRound = &r
	}
	if p.BlockedPlayerIDs != nil {
		cp.BlockedPlayerIDs = make(map[string]struct{}, len(p.BlockedPlayerIDs))
		for id := range p.BlockedPlayerIDs {
			cp.BlockedPlayerIDs[id] = struct{}{}
		}
	}
	return &cp
}

// HasBlocked reports whether this participant has blocked otherPlayerID.
func (p *Participant) HasBlocked(otherPlayerID string) bool {
	if p == nil || p.BlockedPlayerIDs == nil {
		return false
	}
	_, ok := p.BlockedPlayerIDs[otherPlayerID]
	return ok
}

// EligibleForTurnOrder reports whether the participant qualifies for the
// turn-order filter in step 1 of ensureSessionTurnState: seated, not
// complete, not queued for the next game.
func (p *Participant) EligibleForTurnOrder() bool {
	return p.IsSeated && !p.IsComplete && !p.QueuedForNextGame
}
