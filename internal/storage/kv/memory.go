package kv

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yndnr/onboard-go/pkg/cmap"
)

// Memory is an in-process Backend.
type Memory struct {
	items *cmap.Map[[]byte]
	quota int64

	// mu serializes writes so size accounting stays exact.
	mu     sync.Mutex
	size   int64
	closed bool

	subsMu sync.Mutex
	subs   map[*memorySub]struct{}
}

type memorySub struct {
	prefix string
	ch     chan string
}

// MemoryOption configures a Memory backend.
type MemoryOption func(*Memory)

// WithQuota caps the total bytes (keys plus values) the backend accepts.
func WithQuota(bytes int64) MemoryOption {
	return func(m *Memory) {
		m.quota = bytes
	}
}

// NewMemory creates an empty in-memory backend.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		items: cmap.New[[]byte](),
		subs:  make(map[*memorySub]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set implements Backend.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return ErrInvalidKey
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	var prev int64
	if old, ok := m.items.Get(key); ok {
		prev = int64(len(key) + len(old))
	}
	next := m.size - prev + int64(len(key)+len(value))
	if m.quota > 0 && next > m.quota {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d bytes would exceed %d", ErrQuotaExceeded, next, m.quota)
	}

	m.items.Set(key, append([]byte(nil), value...))
	m.size = next
	m.mu.Unlock()

	m.publish(key)
	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	old, ok := m.items.Pop(key)
	if ok {
		m.size -= int64(len(key) + len(old))
	}
	m.mu.Unlock()

	if ok {
		m.publish(key)
	}
	return nil
}

// Scan implements Backend.
func (m *Memory) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) bool) error {
	type item struct {
		key   string
		value []byte
	}
	var matched []item
	m.items.Range(func(k string, v []byte) bool {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, item{k, v})
		}
		return true
	})

	for _, it := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(it.key, append([]byte(nil), it.value...)) {
			break
		}
	}
	return nil
}

// Size implements Backend.
func (m *Memory) Size(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size, nil
}

// Watch implements Watcher.
func (m *Memory) Watch(ctx context.Context, prefix string) (<-chan string, error) {
	sub := &memorySub{prefix: prefix, ch: make(chan string, 64)}

	m.subsMu.Lock()
	if m.subs == nil {
		m.subsMu.Unlock()
		return nil, ErrClosed
	}
	m.subs[sub] = struct{}{}
	m.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		m.unsubscribe(sub)
	}()
	return sub.ch, nil
}

func (m *Memory) unsubscribe(sub *memorySub) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.subs[sub]; ok {
		delete(m.subs, sub)
		close(sub.ch)
	}
}

func (m *Memory) publish(key string) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for sub := range m.subs {
		if !strings.HasPrefix(key, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- key:
		default:
		}
	}
}

// Close implements Backend. Watch channels are closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for sub := range m.subs {
		close(sub.ch)
	}
	m.subs = nil
	return nil
}

var (
	_ Backend = (*Memory)(nil)
	_ Watcher = (*Memory)(nil)
)
