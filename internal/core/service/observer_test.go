package service

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/storage/kv"
	"github.com/yndnr/onboard-go/internal/storage/snapshot"
)

func TestFieldExtractor(t *testing.T) {
	tests := []struct {
		name    string
		fields  []string
		data    string
		want    any
		wantErr bool
	}{
		{"all", nil, `{"a":1,"b":[true]}`, map[string]any{"a": 1.0, "b": []any{true}}, false},
		{"subset", []string{"a"}, `{"a":1,"b":2}`, map[string]any{"a": 1.0}, false},
		{"missing field", []string{"a", "z"}, `{"a":"x"}`, map[string]any{"a": "x"}, false},
		{"none present", []string{"z"}, `{"a":1}`, nil, false},
		{"not object", []string{"a"}, `[1,2]`, nil, true},
		{"scalar whole", nil, `"hi"`, "hi", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FieldExtractor(tt.fields...)(json.RawMessage(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func nextChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatal("changes channel closed")
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no change emitted")
	}
	return Change{}
}

func expectQuiet(t *testing.T, ch <-chan Change, d time.Duration) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("unexpected emission %+v", c)
	case <-time.After(d):
	}
}

func startObserver(t *testing.T, o *Observer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func TestObserver_WatchDriven(t *testing.T) {
	backend := kv.NewMemory()
	defer backend.Close()
	store := snapshot.New(backend)
	ctx := context.Background()

	o := NewObserver(store, "s1", FieldExtractor("childInfo"))
	startObserver(t, o)

	// First observation of an absent snapshot.
	if c := nextChange(t, o.Changes()); c.Found || c.Value != nil {
		t.Fatalf("initial change = %+v, want absent", c)
	}

	store.Write(ctx, "s1", map[string]any{"childInfo": map[string]any{"name": "Sam"}})
	c := nextChange(t, o.Changes())
	want := map[string]any{"childInfo": map[string]any{"name": "Sam"}}
	if !c.Found || !reflect.DeepEqual(c.Value, want) {
		t.Errorf("change = %+v", c)
	}
	if c.SavedAt.IsZero() {
		t.Error("SavedAt not set")
	}

	// Unrelated fields change: extracted value is the same.
	store.Write(ctx, "s1", map[string]any{"childInfo": map[string]any{"name": "Sam"}, "insurance": map[string]any{}})
	expectQuiet(t, o.Changes(), 150*time.Millisecond)

	// Other sessions are ignored.
	store.Write(ctx, "s2", map[string]any{"childInfo": "other"})
	expectQuiet(t, o.Changes(), 150*time.Millisecond)

	store.Clear(ctx, "s1")
	if c := nextChange(t, o.Changes()); c.Found || c.Value != nil {
		t.Errorf("change after clear = %+v", c)
	}
}

func TestObserver_AppearingSnapshotWithoutFieldsIsQuiet(t *testing.T) {
	backend := kv.NewMemory()
	defer backend.Close()
	store := snapshot.New(backend)
	ctx := context.Background()

	o := NewObserver(store, "s1", FieldExtractor("childInfo"))
	startObserver(t, o)

	if c := nextChange(t, o.Changes()); c.Found {
		t.Fatalf("initial change = %+v, want absent", c)
	}

	// The extracted subset is still nil, so nothing is emitted.
	store.Write(ctx, "s1", map[string]any{"parentInfo": map[string]any{"name": "Ana"}})
	expectQuiet(t, o.Changes(), 150*time.Millisecond)

	store.Write(ctx, "s1", map[string]any{"childInfo": "Sam"})
	if c := nextChange(t, o.Changes()); !c.Found || !reflect.DeepEqual(c.Value, map[string]any{"childInfo": "Sam"}) {
		t.Errorf("change = %+v", c)
	}
}

// pollOnly hides the Watch capability of a store.
type pollOnly struct {
	*snapshot.Store
}

func (pollOnly) Watch(context.Context, string) (<-chan struct{}, bool, error) {
	return nil, false, nil
}

func TestObserver_Polling(t *testing.T) {
	backend := kv.NewMemory()
	defer backend.Close()
	store := snapshot.New(backend)

	o := NewObserver(pollOnly{store}, "s1", nil, WithPollInterval(20*time.Millisecond))
	startObserver(t, o)
	nextChange(t, o.Changes())

	store.Write(context.Background(), "s1", map[string]int{"v": 1})
	c := nextChange(t, o.Changes())
	if !reflect.DeepEqual(c.Value, map[string]any{"v": 1.0}) {
		t.Errorf("change = %+v", c)
	}
	expectQuiet(t, o.Changes(), 100*time.Millisecond)
}

func TestObserver_Refresh(t *testing.T) {
	backend := kv.NewMemory()
	defer backend.Close()
	store := snapshot.New(backend)

	o := NewObserver(pollOnly{store}, "s1", nil)
	startObserver(t, o)
	nextChange(t, o.Changes())

	store.Write(context.Background(), "s1", map[string]int{"v": 1})
	expectQuiet(t, o.Changes(), 100*time.Millisecond)

	o.Refresh()
	if c := nextChange(t, o.Changes()); !c.Found {
		t.Errorf("change after Refresh = %+v", c)
	}

	// Refreshing an unchanged value emits nothing.
	o.Refresh()
	expectQuiet(t, o.Changes(), 100*time.Millisecond)
}

func TestObserver_RunClosesChanges(t *testing.T) {
	backend := kv.NewMemory()
	defer backend.Close()
	o := NewObserver(snapshot.New(backend), "s1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()
	nextChange(t, o.Changes())
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if _, ok := <-o.Changes(); ok {
		t.Error("Changes() not closed")
	}
}

func TestObserver_CorruptSnapshotIsAbsent(t *testing.T) {
	backend := kv.NewMemory()
	defer backend.Close()
	store := snapshot.New(backend)
	ctx := context.Background()
	store.Write(ctx, "s1", map[string]int{"v": 1})

	o := NewObserver(store, "s1", nil)
	startObserver(t, o)
	if c := nextChange(t, o.Changes()); !c.Found {
		t.Fatalf("initial change = %+v", c)
	}

	backend.Set(ctx, domain.SnapshotKey("s1"), []byte("garbage"))
	if c := nextChange(t, o.Changes()); c.Found {
		t.Errorf("corrupt snapshot reported as found: %+v", c)
	}
}
