package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/storage/kv"
	"github.com/yndnr/onboard-go/pkg/crypto/adaptive"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC)

func newTestStore(t *testing.T, opts ...Option) (*Store, *kv.Memory) {
	t.Helper()
	backend := kv.NewMemory()
	t.Cleanup(func() { backend.Close() })
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(backend, opts...), backend
}

func TestStore_WriteStoresKeyAndFormat(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Write(ctx, "test-session-123", map[string]any{"messages": []any{}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	raw, err := backend.Get(ctx, "onboarding_session_test-session-123")
	if err != nil {
		t.Fatalf("backend.Get() error = %v", err)
	}

	var stored struct {
		Data    map[string]any `json:"data"`
		SavedAt string         `json:"savedAt"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("stored value is not JSON: %v", err)
	}
	msgs, ok := stored.Data["messages"].([]any)
	if !ok || len(msgs) != 0 {
		t.Errorf("data.messages = %v, want empty array", stored.Data["messages"])
	}
	if _, err := time.Parse(time.RFC3339, stored.SavedAt); err != nil {
		t.Errorf("savedAt %q is not ISO-8601: %v", stored.SavedAt, err)
	}
	if stored.SavedAt != "2026-03-04T05:06:07.890Z" {
		t.Errorf("savedAt = %q", stored.SavedAt)
	}
}

func TestStore_ReadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	payloads := []string{
		`{"messages":[]}`,
		`{"parentInfo":{"firstName":"Ada"},"currentStep":"childInfo"}`,
		`[1,2,3]`,
		`"plain"`,
		`null`,
	}
	for _, p := range payloads {
		t.Run(p, func(t *testing.T) {
			if _, err := store.Write(ctx, "s1", json.RawMessage(p)); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			snap, found, err := store.Read(ctx, "s1")
			if err != nil || !found {
				t.Fatalf("Read() = found %v, err %v", found, err)
			}
			if !snap.DataEqual(json.RawMessage(p)) {
				t.Errorf("Data = %s, want %s", snap.Data, p)
			}
			if snap.SessionID != "s1" {
				t.Errorf("SessionID = %q", snap.SessionID)
			}
			if !snap.SavedAt.Equal(fixedNow) {
				t.Errorf("SavedAt = %v, want %v", snap.SavedAt, fixedNow)
			}
		})
	}
}

func TestStore_ReadMissing(t *testing.T) {
	store, _ := newTestStore(t)

	snap, found, err := store.Read(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if found || snap != nil {
		t.Errorf("Read() = %v, %v; want absent", snap, found)
	}
}

func TestStore_ReadCorruptedIsAbsent(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	store, backend := newTestStore(t, WithLogger(logger))
	ctx := context.Background()

	tests := []struct {
		name  string
		value string
	}{
		{"not json", "{{{"},
		{"missing savedAt", `{"data":{}}`},
		{"bad savedAt", `{"data":{},"savedAt":"yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs.Reset()
			if err := backend.Set(ctx, domain.SnapshotKey("s1"), []byte(tt.value)); err != nil {
				t.Fatal(err)
			}
			_, found, err := store.Read(ctx, "s1")
			if err != nil {
				t.Fatalf("Read() error = %v, want nil", err)
			}
			if found {
				t.Error("Read() found corrupted snapshot")
			}
			if !bytes.Contains(logs.Bytes(), []byte("corrupted snapshot")) {
				t.Errorf("expected warning, got %q", logs.String())
			}
		})
	}
}

func TestStore_ClearThenRead(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		prior any
	}{
		{"empty", nil},
		{"object", map[string]any{"a": 1}},
		{"raw", json.RawMessage(`{"nested":{"deep":[true]}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.prior != nil {
				if _, err := store.Write(ctx, "s1", tt.prior); err != nil {
					t.Fatal(err)
				}
			}
			if err := store.Clear(ctx, "s1"); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			if _, found, _ := store.Read(ctx, "s1"); found {
				t.Error("snapshot still present after Clear")
			}
		})
	}

	// Idempotent.
	if err := store.Clear(ctx, "s1"); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

func TestStore_WriteErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("serialization", func(t *testing.T) {
		store, _ := newTestStore(t)
		for _, bad := range []any{
			map[string]any{"f": func() {}},
			math.NaN(),
			json.RawMessage(`{"open":`),
		} {
			_, err := store.Write(ctx, "s1", bad)
			if !errors.Is(err, domain.ErrSerializationFailure) {
				t.Errorf("Write(%T) error = %v, want serialization failure", bad, err)
			}
		}
	})

	t.Run("quota", func(t *testing.T) {
		backend := kv.NewMemory(kv.WithQuota(16))
		defer backend.Close()
		store := New(backend)

		_, err := store.Write(ctx, "s1", map[string]string{"note": "more than sixteen bytes"})
		if !errors.Is(err, domain.ErrStorageQuotaExceeded) {
			t.Fatalf("Write() error = %v, want quota exceeded", err)
		}
		if !bytes.Contains([]byte(err.Error()), []byte("quota")) {
			t.Errorf("error %q does not mention quota", err)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		backend := kv.NewMemory()
		store := New(backend)
		backend.Close()

		_, err := store.Write(ctx, "s1", map[string]int{"a": 1})
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			t.Errorf("Write() error = %v, want unavailable", err)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		store, _ := newTestStore(t)
		_, err := store.Write(ctx, "../escape", map[string]int{})
		if !errors.Is(err, domain.ErrInvalidSessionID) {
			t.Errorf("Write() error = %v, want invalid session id", err)
		}
	})
}

func TestStore_List(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		if _, err := store.Write(ctx, id, map[string]int{}); err != nil {
			t.Fatal(err)
		}
	}
	_ = backend.Set(ctx, "unrelated", []byte("x"))

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("List() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestStore_Encrypted(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	c, err := adaptive.NewWithType(key, adaptive.CipherChaCha20)
	if err != nil {
		t.Fatal(err)
	}
	store, backend := newTestStore(t, WithCipher(c))
	ctx := context.Background()

	if _, err := store.Write(ctx, "s1", map[string]string{"ssn": "000-00-0000"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	raw, _ := backend.Get(ctx, domain.SnapshotKey("s1"))
	if bytes.Contains(raw, []byte("000-00-0000")) {
		t.Error("plaintext visible in stored value")
	}

	snap, found, err := store.Read(ctx, "s1")
	if err != nil || !found {
		t.Fatalf("Read() = %v, %v", found, err)
	}
	if !snap.DataEqual(json.RawMessage(`{"ssn":"000-00-0000"}`)) {
		t.Errorf("Data = %s", snap.Data)
	}

	// A blob sealed for another key fails authentication.
	_ = backend.Set(ctx, domain.SnapshotKey("s2"), raw)
	if _, found, err := store.Read(ctx, "s2"); found || err != nil {
		t.Errorf("Read(s2) = %v, %v; want absent", found, err)
	}
}

func TestStore_Watch(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, ok, err := store.Watch(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("Watch() = %v, %v", ok, err)
	}

	if _, err := store.Write(ctx, "s2", map[string]int{}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Write(ctx, "s1", map[string]int{}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification for s1")
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("watch channel not closed after cancel")
		}
	}
}
