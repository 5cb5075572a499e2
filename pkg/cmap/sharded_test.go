package cmap

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{8, 8},
		{32, 32},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			m := NewWithShards[int](tt.input)
			if len(m.shards) != tt.expected {
				t.Errorf("shard count = %d, want %d", len(m.shards), tt.expected)
			}
		})
	}
}

func TestSetGetDelete(t *testing.T) {
	m := New[int]()
	m.Set("a", 1)
	m.Set("b", 2)

	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = (%d, %v), want (1, true)", v, ok)
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}

	m.Delete("a")
	if m.Has("a") {
		t.Error("a should be deleted")
	}

	if v, ok := m.Pop("b"); !ok || v != 2 {
		t.Errorf("Pop(b) = (%d, %v)", v, ok)
	}
	if _, ok := m.Pop("b"); ok {
		t.Error("second Pop should miss")
	}
}

func TestDeleteIf(t *testing.T) {
	m := New[int]()
	m.Set("k", 5)

	if _, ok := m.DeleteIf("k", func(v int) bool { return v > 10 }); ok {
		t.Error("DeleteIf should keep value when predicate is false")
	}
	if v, ok := m.DeleteIf("k", func(v int) bool { return v == 5 }); !ok || v != 5 {
		t.Errorf("DeleteIf = (%d, %v)", v, ok)
	}
	if m.Has("k") {
		t.Error("k should be deleted")
	}
}

func TestGetOrSetConcurrent(t *testing.T) {
	m := New[int]()
	var created atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.GetOrSet("shared", func() int {
				created.Add(1)
				return 42
			})
		}()
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Errorf("create called %d times, want 1", created.Load())
	}
	if v, ok := m.GetOrSet("shared", func() int { return 0 }); !ok || v != 42 {
		t.Errorf("GetOrSet = (%d, %v), want (42, true)", v, ok)
	}
}

func TestRangeAndKeys(t *testing.T) {
	m := New[int]()
	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}

	keys := m.Keys()
	sort.Strings(keys)
	if len(keys) != 10 || keys[0] != "k0" {
		t.Errorf("Keys() = %v", keys)
	}

	seen := 0
	m.Range(func(string, int) bool {
		seen++
		return seen < 3
	})
	if seen != 3 {
		t.Errorf("Range stopped after %d, want 3", seen)
	}
}

func TestShardFor_StableAcrossMaps(t *testing.T) {
	a := NewWithShards[int](32)
	b := NewWithShards[int](32)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("onb-%d", i)
		a.Set(key, i)
		b.Set(key, i)
	}
	for i := range a.shards {
		if len(a.shards[i].items) != len(b.shards[i].items) {
			t.Fatalf("shard %d holds %d vs %d keys", i, len(a.shards[i].items), len(b.shards[i].items))
		}
	}
}
