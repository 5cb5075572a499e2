package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/yndnr/onboard-go/internal/core/domain"
)

// SnapshotSource is what an Observer reads from.
type SnapshotSource interface {
	Read(ctx context.Context, sessionID string) (*domain.SessionSnapshot, bool, error)

	// Watch reports changes to the session's snapshot. ok is false when
	// change notification is not supported.
	Watch(ctx context.Context, sessionID string) (ch <-chan struct{}, ok bool, err error)
}

// Extractor derives the observed value from snapshot data.
type Extractor func(data json.RawMessage) (any, error)

// FieldExtractor selects top-level fields of an object snapshot. With no
// fields the whole decoded document is returned. Missing fields are
// omitted; if none are present the value is nil.
func FieldExtractor(fields ...string) Extractor {
	return func(data json.RawMessage) (any, error) {
		if len(fields) == 0 {
			var v any
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return v, nil
		}

		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("snapshot data is not an object: %w", err)
		}
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := obj[f]; ok {
				out[f] = v
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	}
}

// Change is one observer emission.
type Change struct {
	SessionID string
	Value     any

	// Found is false when the session has no snapshot.
	Found bool

	// SavedAt is the snapshot timestamp, zero when not found.
	SavedAt time.Time
}

// ObserverOption configures an Observer.
type ObserverOption func(*Observer)

// WithPollInterval re-reads the snapshot every d in addition to watch
// events. Zero disables polling.
func WithPollInterval(d time.Duration) ObserverOption {
	return func(o *Observer) {
		o.poll = d
	}
}

// WithObserverLogger sets the observer logger.
func WithObserverLogger(l *slog.Logger) ObserverOption {
	return func(o *Observer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserverMetrics sets the metrics recorder.
func WithObserverMetrics(r Recorder) ObserverOption {
	return func(o *Observer) {
		if r != nil {
			o.metrics = r
		}
	}
}

// Observer follows one session's snapshot and emits the extracted value
// each time it changes. Identical consecutive values are never emitted.
// There is no ordering guarantee relative to writes made in the same
// process; the observer reports what it reads when it reads it.
type Observer struct {
	source    SnapshotSource
	sessionID string
	extract   Extractor
	poll      time.Duration
	logger    *slog.Logger
	metrics   Recorder

	changes chan Change
	refresh chan struct{}

	// Owned by the Run goroutine.
	last    any
	emitted bool
}

// NewObserver creates an observer. extract nil means FieldExtractor().
func NewObserver(source SnapshotSource, sessionID string, extract Extractor, opts ...ObserverOption) *Observer {
	if extract == nil {
		extract = FieldExtractor()
	}
	o := &Observer{
		source:    source,
		sessionID: sessionID,
		extract:   extract,
		logger:    slog.Default(),
		metrics:   nopRecorder{},
		changes:   make(chan Change, 1),
		refresh:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("session_id", sessionID)
	return o
}

// Changes returns the emission channel. It is closed when Run returns.
func (o *Observer) Changes() <-chan Change {
	return o.changes
}

// Refresh requests an immediate re-read. It never blocks.
func (o *Observer) Refresh() {
	select {
	case o.refresh <- struct{}{}:
	default:
	}
}

// Run observes until ctx is done. The current value is emitted first.
func (o *Observer) Run(ctx context.Context) error {
	defer close(o.changes)

	watch, watching, err := o.source.Watch(ctx, o.sessionID)
	if err != nil {
		o.logger.Warn("snapshot watch unavailable, relying on polling", "error", err)
	}
	if !watching {
		watch = nil
	}
	if !watching && o.poll <= 0 {
		o.logger.Debug("observer has no watch or poll trigger; refresh only")
	}

	var tick <-chan time.Time
	if o.poll > 0 {
		ticker := time.NewTicker(o.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	if err := o.check(ctx); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-watch:
			if !ok {
				watch = nil
				continue
			}
		case <-tick:
		case <-o.refresh:
		}
		if err := o.check(ctx); err != nil {
			return nil
		}
	}
}

// check reads once and emits on change. It returns an error only when ctx
// ended while emitting.
func (o *Observer) check(ctx context.Context) error {
	snap, found, err := o.source.Read(ctx, o.sessionID)
	if err != nil {
		o.logger.Warn("observer read failed", "error", err)
		return nil
	}

	c := Change{SessionID: o.sessionID, Found: found}
	if found {
		v, err := o.extract(snap.Data)
		if err != nil {
			o.logger.Warn("observer extract failed", "error", err)
			return nil
		}
		c.Value = v
		c.SavedAt = snap.SavedAt
	}

	if o.emitted && reflect.DeepEqual(o.last, c.Value) {
		return nil
	}

	select {
	case o.changes <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	o.last = c.Value
	o.emitted = true
	o.metrics.IncObserverEmission()
	return nil
}
