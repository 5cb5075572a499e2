package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/onboard-go/internal/storage/kv"
	"github.com/yndnr/onboard-go/internal/storage/snapshot"
	"github.com/yndnr/onboard-go/pkg/crypto/adaptive"
)

// Default configuration values.
const (
	DefaultUsageCheckInterval = time.Minute
	DefaultUsageWarnRatio     = 0.9
)

// Config configures the storage engine.
type Config struct {
	// KV selects and tunes the backend.
	KV kv.Config

	// Cipher is the optional at-rest encryption cipher.
	Cipher adaptive.Cipher

	// UsageCheckInterval is how often quota usage is checked.
	// Zero disables the check.
	UsageCheckInterval time.Duration

	// UsageWarnRatio logs a warning once usage crosses this share of the quota.
	UsageWarnRatio float64

	// Logger is the structured logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig() Config {
	return Config{
		KV:                 kv.DefaultConfig(),
		UsageCheckInterval: DefaultUsageCheckInterval,
		UsageWarnRatio:     DefaultUsageWarnRatio,
		Logger:             slog.Default(),
	}
}

// Engine owns a backend and the snapshot store built on it.
type Engine struct {
	cfg     Config
	backend kv.Backend
	store   *snapshot.Store
	logger  *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New opens the configured backend.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	backend, err := kv.Open(cfg.KV, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s backend: %w", cfg.KV.Engine, err)
	}
	return NewWithBackend(backend, cfg), nil
}

// NewWithBackend wraps an existing backend. The engine takes ownership of it.
func NewWithBackend(backend kv.Backend, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := []snapshot.Option{snapshot.WithLogger(cfg.Logger)}
	if cfg.Cipher != nil {
		opts = append(opts, snapshot.WithCipher(cfg.Cipher))
	}

	e := &Engine{
		cfg:     cfg,
		backend: backend,
		store:   snapshot.New(backend, opts...),
		logger:  cfg.Logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	if cfg.UsageCheckInterval > 0 && cfg.KV.QuotaBytes > 0 {
		go e.usageLoop()
	} else {
		close(e.doneCh)
	}

	e.logger.Info("storage engine ready",
		"engine", cfg.KV.Engine,
		"quota_bytes", cfg.KV.QuotaBytes,
		"encrypted", cfg.Cipher != nil)
	return e
}

// Store returns the snapshot store.
func (e *Engine) Store() *snapshot.Store {
	return e.store
}

// Backend returns the underlying backend.
func (e *Engine) Backend() kv.Backend {
	return e.backend
}

// Usage reports bytes used and the configured quota (0 if unlimited).
func (e *Engine) Usage(ctx context.Context) (used, quota int64, err error) {
	used, err = e.backend.Size(ctx)
	return used, e.cfg.KV.QuotaBytes, err
}

// Ping checks that the backend answers.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.backend.Size(ctx)
	return err
}

// RegisterMetrics exposes backend gauges when the backend has any.
func (e *Engine) RegisterMetrics(reg prometheus.Registerer) {
	if b, ok := e.backend.(*kv.Badger); ok {
		b.RegisterMetrics(reg)
	}
}

func (e *Engine) usageLoop() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.UsageCheckInterval)
	defer ticker.Stop()

	warned := false
	for {
		select {
		case <-ticker.C:
			warned = e.checkUsage(warned)
		case <-e.stopCh:
			return
		}
	}
}

// checkUsage logs once per crossing of the warn ratio.
func (e *Engine) checkUsage(warned bool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	used, quota, err := e.Usage(ctx)
	if err != nil {
		e.logger.Error("storage usage check failed", "error", err)
		return warned
	}
	ratio := float64(used) / float64(quota)
	switch {
	case ratio >= e.cfg.UsageWarnRatio && !warned:
		e.logger.Warn("storage usage near quota",
			"used_bytes", used,
			"quota_bytes", quota,
			"ratio", ratio)
		return true
	case ratio < e.cfg.UsageWarnRatio && warned:
		e.logger.Info("storage usage back under threshold", "used_bytes", used)
		return false
	}
	return warned
}

// Close stops background work and closes the backend.
func (e *Engine) Close() error {
	e.logger.Info("shutting down storage engine")

	select {
	case <-e.stopCh:
		return nil
	default:
		close(e.stopCh)
	}
	<-e.doneCh

	if err := e.backend.Close(); err != nil {
		e.logger.Error("close backend failed", "error", err)
		return err
	}

	e.logger.Info("storage engine shutdown complete")
	return nil
}
