// Package store owns the process-wide canonical state: Players,
// Sessions (with their owned Participants and TurnState), AuthTokens,
// and the GameLog. It realizes a single logical writer per session via
// a world-wide mutex — simpler than a mailbox-per-session and
// sufficient since no suspension point is permitted mid-transition
// through the turn phase machine anyway.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/farkleio/tablecore/internal/domain"
)

// World is the in-memory aggregate. All reads outside the writer return
// Clone()d copies; callers never get a mutable alias into these maps.
type World struct {
	mu sync.RWMutex
	players map[string]*domain.Player
	sessions map[string]*domain.Session
	roomCodeIndex map[string]string // roomCode -> sessionID, every resident session (expired ones too) until DeleteSession
	tokens map[string]*domain.AuthToken
	logs []domain.GameLog
	logCap int
}

// NewWorld constructs an empty World. logCap bounds the in-memory log
// slice; compaction policy beyond that cap is intentionally opaque.
func NewWorld(logCap int) *World {
	if logCap <= 0 {
		logCap = 10_000
	}
	return &World{
		players: make(map[string]*domain.Player),
		sessions: make(map[string]*domain.Session),
		roomCodeIndex: make(map[string]string),
		tokens: make(map[string]*domain.AuthToken),
		logCap: logCap,
	}
}

// GetSession returns a clone of the session, or nil if absent.
func (w *World) GetSession(sessionID string) *domain.Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sessions[sessionID]
	if !ok {
		return nil
	}
	return s.Clone()
}

// GetSessionByRoomCode resolves a resident session (alive or not) by its
// room code.
func (w *World) GetSessionByRoomCode(roomCode string) *domain.Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	sessionID, ok := w.roomCodeIndex[roomCode]
	if !ok {
		return nil
	}
	s, ok := w.sessions[sessionID]
	if !ok {
		return nil
	}
	return s.Clone()
}

// WithSession runs fn with exclusive access to the live (non-cloned)
// session, serializing it with respect to every other World mutation.
func (w *World) WithSession(sessionID string, fn func(*domain.Session) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[sessionID]
	if !ok {
		return ErrNoSuchSession
	}
	return fn(s)
}

// CreateSession inserts a brand new session, enforcing room-code
// uniqueness among all resident sessions, expired ones included.
func (w *World) CreateSession(s *domain.Session) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, taken := w.roomCodeIndex[s.RoomCode]; taken {
		return ErrRoomCodeTaken
	}
	w.sessions[s.SessionID] = s
	w.roomCodeIndex[s.RoomCode] = s.SessionID
	return nil
}

// DeleteSession atomically removes a session and every entity it owns:
// its participants and chat conduct state (both embedded in the session
// value) and any auth tokens bound to it. Sockets are closed by the
// orchestrator as a side effect at a layer above World.
func (w *World) DeleteSession(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[sessionID]
	if !ok {
		return
	}
	delete(w.roomCodeIndex, s.RoomCode)
	delete(w.sessions, sessionID)
	for hash, tok := range w.tokens {
		if tok.SessionID == sessionID {
			delete(w.tokens, hash)
		}
	}
}

// IsRoomCodeTaken reports whether roomCode is currently bound to a
// resident session, expired or not.
func (w *World) IsRoomCodeTaken(roomCode string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.roomCodeIndex[roomCode]
	return ok
}

// ListSessions returns clones of every session matching predicate, read
// under the world lock and released before the caller does any I/O.
func (w *World) ListSessions(predicate func(*domain.Session) bool) []*domain.Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*domain.Session, 0, len(w.sessions))
	for _, s := range w.sessions {
		if predicate == nil || predicate(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// GetPlayer returns a clone of the player record, or nil.
func (w *World) GetPlayer(uid string) *domain.Player {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.players[uid]
	if !ok {
		return nil
	}
	return p.Clone()
}

// UpsertPlayer creates or overwrites a player record.
func (w *World) UpsertPlayer(p *domain.Player) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.players[p.UID] = p
}

// WithPlayer runs fn with exclusive access to the live player record,
// creating it first if absent — a player record is created lazily on
// first admin-role assignment or first session join.
func (w *World) WithPlayer(uid string, now time.Time, fn func(*domain.Player) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.players[uid]
	if !ok {
		p = &domain.Player{UID: uid, UpdatedAt: now}
		w.players[uid] = p
	}
	return fn(p)
}

// PutToken stores an auth token keyed by its hash.
func (w *World) PutToken(tok *domain.AuthToken) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tokens[tok.TokenHash] = tok
}

// GetToken looks up a token by hash.
func (w *World) GetToken(tokenHash string) *domain.AuthToken {
	w.mu.RLock()
	defer w.mu.RUnlock()
	tok, ok := w.tokens[tokenHash]
	if !ok {
		return nil
	}
	cp := *tok
	return &cp
}

// RevokeToken marks a token revoked at now, if present.
func (w *World) RevokeToken(tokenHash string, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if tok, ok := w.tokens[tokenHash]; ok {
		revoked := now
		tok.RevokedAt = &revoked
	}
}

// AppendLog appends a GameLog entry, trimming from the front once logCap
// is exceeded; CompactLogStore is the hook for a fuller compaction pass.
func (w *World) AppendLog(entry domain.GameLog) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logs = append(w.logs, entry)
	if len(w.logs) > w.logCap {
		w.logs = w.logs[len(w.logs)-w.logCap:]
	}
}

// CompactLogStore is the opaque compaction hook. The reference policy
// simply re-applies the cap; a real deployment might archive to cold
// storage here instead.
func (w *World) CompactLogStore() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.logs) > w.logCap {
		w.logs = w.logs[len(w.logs)-w.logCap:]
	}
}

// ListLogs returns up to limit GameLog entries (newest first) matching
// predicate. Per-endpoint bounds are enforced by the caller, not here.
func (w *World) ListLogs(predicate func(domain.GameLog) bool, limit int) []domain.GameLog {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]domain.GameLog, 0, limit)
	for i := len(w.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if predicate == nil || predicate(w.logs[i]) {
			out = append(out, w.logs[i])
		}
	}
	return out
}
