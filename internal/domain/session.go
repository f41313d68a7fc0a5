package domain

import "time"

// RoomKind distinguishes private owner-moderated rooms from the public
// matchmaking inventory.
type RoomKind string

const (
	RoomKindPrivate        RoomKind = "private"
	RoomKindPublicDefault  RoomKind = "public_default"
	RoomKindPublicOverflow RoomKind = "public_overflow"
)

// GameDifficulty tunes the bot engine and scoring thresholds; the core
// does not interpret it beyond storing and forwarding it.
type GameDifficulty string

const (
	DifficultyEasy   GameDifficulty = "easy"
	DifficultyNormal GameDifficulty = "normal"
	DifficultyHard   GameDifficulty = "hard"
)

// GameConfig is an opaque bag of per-session rules (winning score, dice
// count, human-seat cap) the core persists and forwards without
// interpreting beyond MaxHumanPlayers (consulted by sessionctl joins).
type GameConfig struct {
	WinningScore    int `json:"winningScore"`
	StartingDice    int `json:"startingDice"`
	MaxHumanPlayers int `json:"maxHumanPlayers"`
}

// BanRecord is upserted by membership.Ban before the target is removed.
type BanRecord struct {
	TargetPlayerID string    `json:"targetPlayerId"`
	BannedBy       string    `json:"bannedBy"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Session is one live multiplayer room with its participants and turn state.
//
// Invariants: ExpiresAt > now iff alive. OwnerPlayerID, if set, references a
// seated non-bot participant. RoomCode is unique among alive sessions.
type Session struct {
	SessionID        string                  `json:"sessionId"`
	RoomCode         string                  `json:"roomCode"`
	RoomKind         RoomKind                `json:"roomKind"`
	OwnerPlayerID    string                  `json:"ownerPlayerId,omitempty"`
	GameDifficulty   GameDifficulty          `json:"gameDifficulty"`
	GameConfig       GameConfig              `json:"gameConfig"`
	DemoMode         bool                    `json:"demoMode"`
	DemoAutoRun      bool                    `json:"demoAutoRun"`
	DemoSpeedMode    bool                    `json:"demoSpeedMode"`
	CreatedAt        time.Time               `json:"createdAt"`
	GameStartedAt    *time.Time              `json:"gameStartedAt,omitempty"`
	LastActivityAt   time.Time               `json:"lastActivityAt"`
	ExpiresAt        time.Time               `json:"expiresAt"`
	NextGameStartsAt *time.Time              `json:"nextGameStartsAt,omitempty"`
	SessionComplete  bool                    `json:"sessionComplete"`
	CompletedAt      *time.Time              `json:"completedAt,omitempty"`
	Participants     map[string]*Participant `json:"participants"`
	TurnState        TurnState               `json:"turnState"`
	ChatConductState ChatConductState        `json:"chatConductState"`
	RoomBans         map[string]*BanRecord   `json:"roomBans"`
}

// NewSession constructs a session with every aggregate initialized so
// callers never have to nil-check the maps before first write.
func NewSession(sessionID, roomCode string, kind RoomKind, now time.Time) *Session {
	return &Session{
		SessionID:        sessionID,
		RoomCode:         roomCode,
		RoomKind:         kind,
		GameDifficulty:   DifficultyNormal,
		CreatedAt:        now,
		LastActivityAt:   now,
		Participants:     make(map[string]*Participant),
		TurnState:        TurnState{Phase: PhaseAwaitRoll, Round: 1, TurnNumber: 1, UpdatedAt: now},
		ChatConductState: ChatConductState{Players: make(map[string]*PlayerConductState)},
		RoomBans:         make(map[string]*BanRecord),
	}
}

// IsAlive reports whether the session has not yet idle-expired.
func (s *Session) IsAlive(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// IsPublic reports whether the session belongs to the public matchmaking
// inventory, as opposed to a private owner-moderated room.
func (s *Session) IsPublic() bool {
	return s.RoomKind == RoomKindPublicDefault || s.RoomKind == RoomKindPublicOverflow
}

// Clone deep-copies the session, including every participant and the turn
// state, for safe handoff outside the session writer.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Participants = make(map[string]*Participant, len(s.Participants))
	for id, p := range s.Participants {
		cp.Participants[id] = p.Clone()
	}
	cp.TurnState = *s.TurnState.Clone()
	cp.ChatConductState = s.ChatConductState.Clone()
	cp.RoomBans = make(map[string]*BanRecord, len(s.RoomBans))
	for id, b := range s.RoomBans {
		rec := *b
		cp.RoomBans[id] = &rec
	}
	if s.GameStartedAt != nil {
		t := *s.GameStartedAt
		cp.GameStartedAt = &t
	}
	if s.NextGameStartsAt != nil {
		t := *s.NextGameStartsAt
		cp.NextGameStartsAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// SeatedHumanCount counts non-bot participants currently seated.
func (s *Session) SeatedHumanCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.IsSeated && !p.IsBot {
			n++
		}
	}
	return n
}

// ActiveHumanCount counts non-bot participants with a recent heartbeat.
// Used only for listRooms sorting; the staleness window is owned by
// sessionctl, not the entity itself.
func (s *Session) ActiveHumanCount(now time.Time, heartbeatWindow time.Duration) int {
	n := 0
	for _, p := range s.Participants {
		if !p.IsBot && now.Sub(p.LastHeartbeatAt) <= heartbeatWindow {
			n++
		}
	}
	return n
}

// HumanCount counts every non-bot participant regardless of seating.
func (s *Session) HumanCount() int {
	n := 0
	for _, p := range s.Participants {
		if !p.IsBot {
			n++
		}
	}
	return n
}
