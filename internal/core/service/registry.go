package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/pkg/cmap"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// SavedDisplay is passed to every controller.
	SavedDisplay time.Duration

	// IdleDispose drops controllers unused for this long. Controllers
	// holding pending data or mid-save are kept. Zero disables disposal.
	IdleDispose time.Duration

	// SweepInterval is how often idle controllers are looked for.
	SweepInterval time.Duration

	// Remote is the optional remote saver handed to every controller.
	Remote RemoteSaver

	Logger  *slog.Logger
	Metrics Recorder
}

// DefaultRegistryConfig returns the default registry configuration.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		SavedDisplay:  DefaultSavedDisplay,
		IdleDispose:   30 * time.Minute,
		SweepInterval: time.Minute,
	}
}

type registryEntry struct {
	ctrl     *Controller
	lastUsed atomic.Int64
}

func (e *registryEntry) touch(now time.Time) {
	e.lastUsed.Store(now.UnixNano())
}

// Registry holds one auto-save controller per active session.
type Registry struct {
	store       SnapshotStore
	cfg         RegistryConfig
	logger      *slog.Logger
	metrics     Recorder
	controllers *cmap.Map[*registryEntry]
	now         func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRegistry creates a registry and starts its sweeper when idle
// disposal is enabled.
func NewRegistry(store SnapshotStore, cfg *RegistryConfig) *Registry {
	if cfg == nil {
		cfg = DefaultRegistryConfig()
	}
	r := &Registry{
		store:       store,
		cfg:         *cfg,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		controllers: cmap.New[*registryEntry](),
		now:         time.Now,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.metrics == nil {
		r.metrics = nopRecorder{}
	}

	if r.cfg.IdleDispose > 0 && r.cfg.SweepInterval > 0 {
		go r.sweepLoop()
	} else {
		close(r.doneCh)
	}
	return r
}

// Store returns the snapshot store shared by all controllers.
func (r *Registry) Store() SnapshotStore {
	return r.store
}

// Get returns the controller for sessionID if one exists.
func (r *Registry) Get(sessionID string) (*Controller, bool) {
	e, ok := r.controllers.Get(sessionID)
	if !ok {
		return nil, false
	}
	e.touch(r.now())
	return e.ctrl, true
}

// GetOrCreate returns the controller for sessionID, creating it on first use.
func (r *Registry) GetOrCreate(sessionID string) (*Controller, error) {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	e, loaded := r.controllers.GetOrSet(sessionID, func() *registryEntry {
		opts := []ControllerOption{
			WithSavedDisplay(r.cfg.SavedDisplay),
			WithLogger(r.logger),
			WithMetrics(r.metrics),
		}
		if r.cfg.Remote != nil {
			opts = append(opts, WithRemote(r.cfg.Remote))
		}
		return &registryEntry{ctrl: NewController(sessionID, r.store, opts...)}
	})
	e.touch(r.now())
	if !loaded {
		r.metrics.SetActiveControllers(r.controllers.Count())
		r.logger.Debug("controller created", "session_id", sessionID)
	}
	return e.ctrl, nil
}

// Dispose closes and removes the controller for sessionID.
func (r *Registry) Dispose(sessionID string) bool {
	e, ok := r.controllers.Pop(sessionID)
	if !ok {
		return false
	}
	e.ctrl.Close()
	r.metrics.SetActiveControllers(r.controllers.Count())
	return true
}

// Clear removes the session's snapshot and disposes its controller.
func (r *Registry) Clear(ctx context.Context, sessionID string) error {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return err
	}
	if e, ok := r.controllers.Get(sessionID); ok {
		err := e.ctrl.Clear(ctx)
		r.Dispose(sessionID)
		return err
	}
	return r.store.Clear(ctx, sessionID)
}

// Count returns the number of live controllers.
func (r *Registry) Count() int {
	return r.controllers.Count()
}

// FlushAll retries every pending payload and returns how many were
// flushed successfully and how many still failed.
func (r *Registry) FlushAll(ctx context.Context) (flushed, failed int) {
	for _, id := range r.controllers.Keys() {
		e, ok := r.controllers.Get(id)
		if !ok {
			continue
		}
		res := e.ctrl.Flush(ctx)
		switch {
		case res.NoOp:
		case res.Err != nil:
			failed++
			r.logger.Error("flush failed", "session_id", id, "error", res.Err)
		default:
			flushed++
		}
	}
	if flushed+failed > 0 {
		r.logger.Info("flushed pending saves", "flushed", flushed, "failed", failed)
	}
	return flushed, failed
}

// Close stops the sweeper and closes every controller without flushing.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.doneCh

	for _, id := range r.controllers.Keys() {
		r.Dispose(id)
	}
}

func (r *Registry) sweepLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.sweep(r.now()); n > 0 {
				r.logger.Debug("disposed idle controllers", "count", n)
			}
		case <-r.stopCh:
			return
		}
	}
}

// sweep disposes controllers idle since before now-IdleDispose.
func (r *Registry) sweep(now time.Time) int {
	cutoff := now.Add(-r.cfg.IdleDispose).UnixNano()
	n := 0
	for _, id := range r.controllers.Keys() {
		e, ok := r.controllers.DeleteIf(id, func(e *registryEntry) bool {
			if e.lastUsed.Load() > cutoff {
				return false
			}
			st := e.ctrl.State()
			return !st.HasPending && st.Status != domain.SaveStatusSaving
		})
		if ok {
			e.ctrl.Close()
			n++
		}
	}
	if n > 0 {
		r.metrics.SetActiveControllers(r.controllers.Count())
	}
	return n
}
