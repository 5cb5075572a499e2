package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/storage/kv"
	"github.com/yndnr/onboard-go/internal/storage/snapshot"
)

// hookStore wraps a real snapshot store with failure injection and a
// hook that runs before each write.
type hookStore struct {
	*snapshot.Store

	mu          sync.Mutex
	writes      int
	err         error
	beforeWrite func(call int)
}

func newHookStore(t *testing.T, opts ...kv.MemoryOption) *hookStore {
	t.Helper()
	backend := kv.NewMemory(opts...)
	t.Cleanup(func() { backend.Close() })
	return &hookStore{Store: snapshot.New(backend)}
}

func (s *hookStore) Write(ctx context.Context, sessionID string, data any) (*domain.SessionSnapshot, error) {
	s.mu.Lock()
	s.writes++
	call, err, hook := s.writes, s.err, s.beforeWrite
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}
	return s.Store.Write(ctx, sessionID, data)
}

func (s *hookStore) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *hookStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type fakeRemote struct {
	mu    sync.Mutex
	err   error
	saved map[string]json.RawMessage
	calls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{saved: make(map[string]json.RawMessage)}
}

func (r *fakeRemote) SaveSnapshot(_ context.Context, sessionID string, data json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	r.saved[sessionID] = append(json.RawMessage(nil), data...)
	return nil
}

func (r *fakeRemote) get(sessionID string) (json.RawMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.saved[sessionID]
	return v, ok
}

func (r *fakeRemote) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// readData returns the stored data for sessionID or fails the test.
func readData(t *testing.T, store SnapshotStore, sessionID string) json.RawMessage {
	t.Helper()
	snap, found, err := store.Read(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !found {
		t.Fatalf("snapshot for %q not found", sessionID)
	}
	return snap.Data
}

// waitFor polls cond until it holds or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
