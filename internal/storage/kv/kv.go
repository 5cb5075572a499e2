package kv

import (
	"context"
	"errors"
)

// Common errors.
var (
	ErrKeyNotFound   = errors.New("kv: key not found")
	ErrQuotaExceeded = errors.New("kv: quota exceeded")
	ErrInvalidKey    = errors.New("kv: invalid key")
	ErrClosed        = errors.New("kv: backend closed")
)

// Backend is a flat key-value namespace.
//
// Implementations must be safe for concurrent use. Set fully replaces the
// previous value. Delete of a missing key is not an error.
type Backend interface {
	// Get returns ErrKeyNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set returns ErrQuotaExceeded (possibly wrapped) when the write is
	// rejected for capacity.
	Set(ctx context.Context, key string, value []byte) error

	Delete(ctx context.Context, key string) error

	// Scan calls fn for each key with prefix until fn returns false.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) bool) error

	// Size returns the bytes currently used, as counted against the quota.
	Size(ctx context.Context) (int64, error)

	Close() error
}

// Watcher is implemented by backends that can report changed keys.
//
// The returned channel receives the key of every set or delete under
// prefix and is closed when ctx is done or the backend closes. Delivery is
// best effort: a slow reader may miss events, so consumers re-read the
// key rather than trusting the event payload.
type Watcher interface {
	Watch(ctx context.Context, prefix string) (<-chan string, error)
}

// Engine names.
const (
	EngineMemory = "memory"
	EngineFile   = "file"
	EngineBadger = "badger"
)

// Config configures a backend.
type Config struct {
	// Engine is one of "memory", "file", "badger".
	// Default: "memory"
	Engine string

	// Dir is the storage directory for file and badger engines.
	Dir string

	// QuotaBytes caps the total stored bytes; 0 disables the quota.
	QuotaBytes int64

	// Badger-specific configuration.
	Badger BadgerConfig
}

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between value log GC runs.
	// Default: 10m
	GCInterval string

	// GCThreshold is the value log discard ratio that triggers a rewrite.
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 16MB
	CacheSize int64

	// SyncWrites fsyncs after every write.
	// Default: true
	SyncWrites bool

	// InMemory keeps all data in memory; Dir is ignored.
	InMemory bool
}

// DefaultConfig returns the default backend configuration.
func DefaultConfig() Config {
	return Config{
		Engine: EngineMemory,
		Badger: DefaultBadgerConfig(),
	}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:  "10m",
		GCThreshold: 0.5,
		CacheSize:   16 << 20, // 16MB
		SyncWrites:  true,
	}
}

// IsQuotaExceeded reports whether err is a capacity rejection.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
