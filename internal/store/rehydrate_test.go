package store

import (
	"context"
	"testing"
	"time"

	"github.com/farkleio/tablecore/internal/domain"
)

type fakeAdapter struct {
	loadFn func(ctx context.Context) (*Snapshot, error)
	saveFn func(ctx context.Context, snap *Snapshot) error
}

func (f *fakeAdapter) Load(ctx context.Context) (*Snapshot, error) { return f.loadFn(ctx) }
func (f *fakeAdapter) Save(ctx context.Context, snap *Snapshot) error {
	if f.saveFn == nil {
		return nil
	}
	return f.saveFn(ctx, snap)
}

func TestRehydrateSessionWithRetryBlankShortCircuits(t *testing.T) {
	adapter := &fakeAdapter{loadFn: func(ctx context.Context) (*Snapshot, error) {
		t.Fatal("adapter must not be called for a blank session id")
		return nil, nil
	}}
	s := New(NewWorld(0), adapter)
	if got := s.RehydrateSessionWithRetry(context.Background(), "", "sessionStandard", ProfileSessionStandard); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestRehydrateSessionWithRetryFindsSessionAfterAttempts(t *testing.T) {
	restore := stubSleep()
	defer restore()

	now := time.Unix(10_000, 0)
	target := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	target.ExpiresAt = now.Add(30 * time.Second)

	calls := 0
	adapter := &fakeAdapter{loadFn: func(ctx context.Context) (*Snapshot, error) {
		calls++
		if calls < 3 {
			return &Snapshot{}, nil
		}
		return &Snapshot{Sessions: []*domain.Session{target}}, nil
	}}

	s := New(NewWorld(0), adapter)
	got := s.RehydrateSessionWithRetry(context.Background(), "sess-1", "sessionStandard", ProfileSessionFast)
	if got == nil {
		t.Fatal("expected session to be found after retries")
	}
	if got.SessionID != "sess-1" {
		t.Errorf("got session %q, want sess-1", got.SessionID)
	}
	if calls != 3 {
		t.Errorf("expected 3 adapter calls, got %d", calls)
	}
}

func TestRehydrateSessionWithRetryExhaustsAndReturnsNil(t *testing.T) {
	restore := stubSleep()
	defer restore()

	calls := 0
	adapter := &fakeAdapter{loadFn: func(ctx context.Context) (*Snapshot, error) {
		calls++
		return &Snapshot{}, nil
	}}
	s := New(NewWorld(0), adapter)
	got := s.RehydrateSessionWithRetry(context.Background(), "missing", "sessionLeave", ProfileSessionLeave)
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if calls != ProfileSessionLeave.Attempts {
		t.Errorf("expected %d adapter calls, got %d", ProfileSessionLeave.Attempts, calls)
	}
}

func TestPersistStoreRoundTripsThroughAdapter(t *testing.T) {
	now := time.Unix(10_000, 0)
	world := NewWorld(0)
	sess := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	sess.ExpiresAt = now.Add(time.Minute)
	if err := world.CreateSession(sess); err != nil {
		t.Fatal(err)
	}

	var saved *Snapshot
	adapter := &fakeAdapter{
		saveFn: func(ctx context.Context, snap *Snapshot) error { saved = snap; return nil },
		loadFn: func(ctx context.Context) (*Snapshot, error) { return saved, nil },
	}
	s := New(world, adapter)
	if err := s.PersistStore(context.Background()); err != nil {
		t.Fatal(err)
	}

	reloaded := NewWorld(0)
	s2 := New(reloaded, adapter)
	if err := s2.RehydrateStoreFromAdapter(context.Background(), "test", RehydrateOpts{Force: true}); err != nil {
		t.Fatal(err)
	}
	got := reloaded.GetSession("sess-1")
	if got == nil || got.RoomCode != "ABCD" {
		t.Fatalf("expected rehydrated session with room code ABCD, got %+v", got)
	}
}

func stubSleep() func() {
	original := sleep
	sleep = func(time.Duration) {}
	return func() { sleep = original }
}
