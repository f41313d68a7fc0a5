package store

import (
	"context"

	"github.com/farkleio/tablecore/internal/domain"
)

// Snapshot is the serializable projection of World that a
// PersistenceAdapter saves and loads — the core never inspects the
// adapter's own on-disk shape, only this in-memory projection.
type Snapshot struct {
	Players []*domain.Player
	Sessions []*domain.Session
	Tokens []*domain.AuthToken
	Logs []domain.GameLog
}

// PersistenceAdapter is the external collaborator getStore/persistStore
// delegate to. The core depends only on this interface;
// internal/store/memadapter, sqliteadapter, and pgadapter are reference
// implementations, not part of the core's contract.
type PersistenceAdapter interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Snapshot captures the current World for persistStore().
func (w *World) Snapshot() *Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap := &Snapshot{
		Players: make([]*domain.Player, 0, len(w.players)),
		Sessions: make([]*domain.Session, 0, len(w.sessions)),
		Tokens: make([]*domain.AuthToken, 0, len(w.tokens)),
		Logs: append([]domain.GameLog(nil), w.logs...),
	}
	for _, p := range w.players {
		snap.Players = append(snap.Players, p.Clone())
	}
	for _, s := range w.sessions {
		snap.Sessions = append(snap.Sessions, s.Clone())
	}
	for _, t := range w.tokens {
		cp := *t
		snap.Tokens = append(snap.Tokens, &cp)
	}
	return snap
}

// MergeMissing adds every entity present in snap but absent from World.
// It never overwrites a live in-memory entity — the single writer per
// session is presumed fresher than a persisted copy; rehydration exists
// to recover cold state, not to clobber hot state. The one exception is
// the game log: when snap holds more log entries than World, World's log
// slice is replaced wholesale by snap's.
func (w *World) MergeMissing(snap *Snapshot) {
	if snap == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range snap.Players {
		if _, ok := w.players[p.UID]; !ok {
			w.players[p.UID] = p
		}
	}
	for _, s := range snap.Sessions {
		if _, ok := w.sessions[s.SessionID]; !ok {
			w.sessions[s.SessionID] = s
			w.roomCodeIndex[s.RoomCode] = s.SessionID
		}
	}
	for _, t := range snap.Tokens {
		if _, ok := w.tokens[t.TokenHash]; !ok {
			w.tokens[t.TokenHash] = t
		}
	}
	if len(snap.Logs) > len(w.logs) {
		w.logs = snap.Logs
	}
}
