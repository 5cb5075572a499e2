package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/telemetry/metric"
)

// DefaultSavedDisplay is how long a controller reports "saved" before
// reverting to "idle".
const DefaultSavedDisplay = 2 * time.Second

// ErrControllerClosed is reported by operations on a closed controller.
var ErrControllerClosed = errors.New("autosave: controller closed")

// SnapshotStore is the local snapshot store a controller persists to.
type SnapshotStore interface {
	Write(ctx context.Context, sessionID string, data any) (*domain.SessionSnapshot, error)
	Read(ctx context.Context, sessionID string) (*domain.SessionSnapshot, bool, error)
	Clear(ctx context.Context, sessionID string) error
}

// RemoteSaver is the optional remote persistence collaborator. It owns its
// timeout and retry policy.
type RemoteSaver interface {
	SaveSnapshot(ctx context.Context, sessionID string, data json.RawMessage) error
}

// Recorder receives auto-save and observer metrics.
type Recorder interface {
	ObserveSave(outcome string, d time.Duration)
	IncRetry()
	IncObserverEmission()
	SetActiveControllers(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSave(string, time.Duration) {}
func (nopRecorder) IncRetry()                         {}
func (nopRecorder) IncObserverEmission()              {}
func (nopRecorder) SetActiveControllers(int)          {}

// ============================================================================
// State and Result
// ============================================================================

// State is a point-in-time view of a controller.
type State struct {
	SessionID string
	Status    domain.SaveStatus

	// LastSaved is zero until the first successful save.
	LastSaved time.Time

	// Err is the failure that put the controller in the error state.
	Err error

	// HasPending is true while a failed payload awaits retry.
	HasPending bool

	// Generation is the token of the most recently issued save.
	Generation uint64
}

// Result is the outcome of one Save, Retry, or Flush call.
type Result struct {
	Generation uint64
	Status     domain.SaveStatus

	// Snapshot is the locally written snapshot, nil if the local write failed.
	Snapshot *domain.SessionSnapshot

	// Err is set when the save failed.
	Err error

	// LocalErr is set when the local write failed but the remote save
	// succeeded, so the save as a whole still counts.
	LocalErr error

	// Superseded is true when a newer save was issued before this one
	// completed; no state was changed.
	Superseded bool

	// NoOp is true for a Retry or Flush with nothing pending.
	NoOp bool
}

// OK reports whether the call persisted its payload and committed state.
func (r Result) OK() bool {
	return r.Err == nil && !r.Superseded && !r.NoOp
}

// ============================================================================
// Controller
// ============================================================================

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRemote mirrors every save to r after the local write.
func WithRemote(r RemoteSaver) ControllerOption {
	return func(c *Controller) {
		c.remote = r
	}
}

// WithOnSaveSuccess registers a callback run after each committed success.
func WithOnSaveSuccess(fn func()) ControllerOption {
	return func(c *Controller) {
		c.onSuccess = fn
	}
}

// WithOnSaveError registers a callback run after each committed failure.
func WithOnSaveError(fn func(error)) ControllerOption {
	return func(c *Controller) {
		c.onError = fn
	}
}

// WithSavedDisplay sets how long "saved" is shown before "idle".
func WithSavedDisplay(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.savedDisplay = d
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) ControllerOption {
	return func(c *Controller) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithClock overrides the clock used for LastSaved when no snapshot
// timestamp is available.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller runs the auto-save state machine for one session.
//
// Status moves idle -> saving -> saved|error; saved reverts to idle after
// the display window. Every Save takes a new generation and state is only
// committed by the call holding the latest one, so a slow older save can
// never overwrite the outcome of a newer one. Persistence calls are
// serialized per controller and skipped once superseded, so the store
// also ends up holding the newest payload.
type Controller struct {
	sessionID    string
	store        SnapshotStore
	remote       RemoteSaver
	onSuccess    func()
	onError      func(error)
	savedDisplay time.Duration
	logger       *slog.Logger
	metrics      Recorder
	now          func() time.Time

	// persistMu serializes store and remote writes.
	persistMu sync.Mutex

	mu         sync.Mutex
	status     domain.SaveStatus
	lastSaved  time.Time
	err        error
	pending    any
	hasPending bool
	gen        uint64
	idleTimer  *time.Timer
	subs       map[chan State]struct{}
	closed     bool
}

// NewController creates a controller for sessionID in the idle state.
func NewController(sessionID string, store SnapshotStore, opts ...ControllerOption) *Controller {
	c := &Controller{
		sessionID:    sessionID,
		store:        store,
		savedDisplay: DefaultSavedDisplay,
		logger:       slog.Default(),
		metrics:      nopRecorder{},
		now:          time.Now,
		status:       domain.SaveStatusIdle,
		subs:         make(map[chan State]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("session_id", sessionID)
	return c
}

// SessionID returns the session the controller saves.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	return State{
		SessionID:  c.sessionID,
		Status:     c.status,
		LastSaved:  c.lastSaved,
		Err:        c.err,
		HasPending: c.hasPending,
		Generation: c.gen,
	}
}

// Save persists payload and reports the outcome. Failures are recorded in
// the controller state and the returned Result, never panicked or
// returned as a bare error.
func (c *Controller) Save(ctx context.Context, payload any) Result {
	// 1. Take a new generation and enter saving
	c.mu.Lock()
	if c.closed {
		status := c.status
		c.mu.Unlock()
		return Result{Status: status, Err: ErrControllerClosed}
	}
	c.gen++
	gen := c.gen
	c.stopIdleTimerLocked()
	c.status = domain.SaveStatusSaving
	c.err = nil
	c.pending = nil
	c.hasPending = false
	c.publishLocked()
	c.mu.Unlock()

	// 2. Persist outside the state lock
	start := time.Now()
	snap, localErr, err, superseded := c.persist(ctx, gen, payload)
	elapsed := time.Since(start)

	// 3. Commit only if still the latest generation
	c.mu.Lock()
	if superseded || gen != c.gen {
		status := c.status
		c.mu.Unlock()
		c.metrics.ObserveSave(metric.OutcomeSuperseded, elapsed)
		c.logger.Debug("save superseded", "generation", gen)
		return Result{Generation: gen, Status: status, Superseded: true}
	}

	if err != nil {
		c.status = domain.SaveStatusError
		c.err = err
		c.pending = payload
		c.hasPending = true
		c.publishLocked()
		onError := c.onError
		c.mu.Unlock()

		c.metrics.ObserveSave(metric.OutcomeError, elapsed)
		c.logger.Warn("auto-save failed",
			"generation", gen,
			"quota", domain.IsQuotaExceeded(err),
			"error", err)
		if onError != nil {
			onError(err)
		}
		return Result{Generation: gen, Status: domain.SaveStatusError, Err: err}
	}

	savedAt := c.now()
	if snap != nil {
		savedAt = snap.SavedAt
	}
	c.status = domain.SaveStatusSaved
	c.lastSaved = savedAt
	c.armIdleTimerLocked(gen)
	c.publishLocked()
	onSuccess := c.onSuccess
	c.mu.Unlock()

	outcome := metric.OutcomeSaved
	if localErr != nil {
		outcome = metric.OutcomeDegraded
		c.logger.Warn("local snapshot write failed, saved remotely",
			"generation", gen,
			"error", localErr)
	}
	c.metrics.ObserveSave(outcome, elapsed)
	c.logger.Debug("auto-save succeeded", "generation", gen, "duration", elapsed)
	if onSuccess != nil {
		onSuccess()
	}
	return Result{
		Generation: gen,
		Status:     domain.SaveStatusSaved,
		Snapshot:   snap,
		LocalErr:   localErr,
	}
}

// persist writes payload locally and then remotely.
//
// err is the failure that fails the save. localErr is a local failure
// that was tolerated because the remote copy succeeded.
func (c *Controller) persist(ctx context.Context, gen uint64, payload any) (snap *domain.SessionSnapshot, localErr, err error, superseded bool) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	if c.generation() != gen {
		return nil, nil, nil, true
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return nil, nil, domain.ErrSerializationFailure.WithCause(err), false
	}

	snap, err = c.store.Write(ctx, c.sessionID, raw)
	if err != nil {
		if c.remote == nil || !degradable(err) {
			return nil, nil, err, false
		}
		if rerr := c.remote.SaveSnapshot(ctx, c.sessionID, raw); rerr != nil {
			c.logger.Warn("remote save failed after local failure", "error", rerr)
			return nil, nil, err, false
		}
		return nil, err, nil, false
	}

	if c.remote != nil {
		if rerr := c.remote.SaveSnapshot(ctx, c.sessionID, raw); rerr != nil {
			if !errors.Is(rerr, domain.ErrRemoteSaveFailed) {
				rerr = domain.ErrRemoteSaveFailed.WithCause(rerr)
			}
			return snap, nil, rerr, false
		}
	}
	return snap, nil, nil, false
}

// degradable reports whether a local failure may be covered by the remote.
func degradable(err error) bool {
	return errors.Is(err, domain.ErrStorageQuotaExceeded) || errors.Is(err, domain.ErrStorageUnavailable)
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, errors.New("invalid JSON payload")
		}
		return v, nil
	default:
		return json.Marshal(payload)
	}
}

func (c *Controller) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Retry re-saves the pending payload. With nothing pending it changes
// nothing and returns a NoOp result.
func (c *Controller) Retry(ctx context.Context) Result {
	c.mu.Lock()
	if !c.hasPending {
		r := Result{Generation: c.gen, Status: c.status, NoOp: true}
		c.mu.Unlock()
		return r
	}
	payload := c.pending
	c.mu.Unlock()

	c.metrics.IncRetry()
	c.logger.Info("retrying pending save")
	return c.Save(ctx, payload)
}

// Flush makes a best-effort attempt to persist pending data, for use
// before the controller is discarded. It is Retry under another name so
// shutdown paths read clearly.
func (c *Controller) Flush(ctx context.Context) Result {
	return c.Retry(ctx)
}

// Clear removes the stored snapshot and resets the controller to idle.
// Any in-flight save is superseded and cannot re-create the snapshot.
func (c *Controller) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	c.stopIdleTimerLocked()
	c.status = domain.SaveStatusIdle
	c.err = nil
	c.pending = nil
	c.hasPending = false
	c.publishLocked()
	c.mu.Unlock()

	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	return c.store.Clear(ctx, c.sessionID)
}

// Subscribe returns a channel of state transitions and a cancel func.
// Slow readers lose intermediate states but always see the latest one.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
		})
	}
}

func (c *Controller) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	st := c.stateLocked()
	for ch := range c.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		// Drop the oldest entry to make room.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

func (c *Controller) armIdleTimerLocked(gen uint64) {
	c.idleTimer = time.AfterFunc(c.savedDisplay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen || c.status != domain.SaveStatusSaved || c.closed {
			return
		}
		c.status = domain.SaveStatusIdle
		c.idleTimer = nil
		c.publishLocked()
	})
}

func (c *Controller) stopIdleTimerLocked() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

// Close cancels the idle timer and ends all subscriptions. Pending data
// is not flushed; call Flush first if it should be.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.gen++
	c.stopIdleTimerLocked()
	for ch := range c.subs {
		close(ch)
	}
	c.subs = make(map[chan State]struct{})
}
