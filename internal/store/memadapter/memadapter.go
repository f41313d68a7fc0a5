// Package memadapter is the simplest store.PersistenceAdapter: an
// in-process snapshot holder. It is the default for local development
// and the adapter the sessionctl, socket and sweep tests use — the "opaque
// key-value store" reduced to its smallest honest implementation.
package memadapter

import (
	"context"
	"sync"

	"github.com/farkleio/tablecore/internal/store"
)

// Adapter holds the last saved snapshot in memory, guarded by a mutex.
type Adapter struct {
	mu   sync.Mutex
	snap *store.Snapshot
}

// New returns an empty Adapter.
func New() *Adapter {
	return &Adapter{snap: &store.Snapshot{}}
}

// Load returns the last saved snapshot, or an empty one if Save was
// never called.
func (a *Adapter) Load(ctx context.Context) (*store.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snap == nil {
		return &store.Snapshot{}, nil
	}
	return a.snap, nil
}

// Save replaces the held snapshot.
func (a *Adapter) Save(ctx context.Context, snap *store.Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snap = snap
	return nil
}
