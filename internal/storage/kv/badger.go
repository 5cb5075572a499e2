package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/pb"
	"github.com/prometheus/client_golang/prometheus"
)

// Badger implements Backend using Badger v3.
type Badger struct {
	db     *badger.DB
	cfg    BadgerConfig
	quota  int64
	logger *slog.Logger

	// quotaMu serializes quota-checked writes.
	quotaMu sync.Mutex

	// Prometheus metrics (nil until RegisterMetrics).
	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewBadger opens a Badger backend.
func NewBadger(cfg Config, logger *slog.Logger) (*Badger, error) {
	if cfg.Dir == "" && !cfg.Badger.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	bc := cfg.Badger
	opts := badger.DefaultOptions(cfg.Dir).
		WithLogger(&badgerLogger{logger: logger}).
		WithSyncWrites(bc.SyncWrites).
		WithInMemory(bc.InMemory)
	if bc.CacheSize > 0 {
		opts = opts.WithBlockCacheSize(bc.CacheSize)
	}
	if bc.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	b := &Badger{
		db:     db,
		cfg:    bc,
		quota:  cfg.QuotaBytes,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go b.gcLoop()

	logger.Info("badger backend started",
		"dir", cfg.Dir,
		"in_memory", bc.InMemory,
		"quota_bytes", cfg.QuotaBytes)

	return b, nil
}

// Get implements Backend.
func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, b.classify(err)
	}
	return value, nil
}

// Set implements Backend.
func (b *Badger) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	if b.quota > 0 {
		// The size scan runs in its own read txn; iterating inside the
		// update txn would make concurrent writers conflict.
		b.quotaMu.Lock()
		defer b.quotaMu.Unlock()

		var used int64
		err := b.db.View(func(txn *badger.Txn) error {
			var err error
			used, err = logicalSize(txn, key)
			return err
		})
		if err != nil {
			return b.classify(err)
		}
		if next := used + int64(len(key)+len(value)); next > b.quota {
			return fmt.Errorf("%w: %d bytes would exceed %d", ErrQuotaExceeded, next, b.quota)
		}
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return b.classify(err)
}

// Delete implements Backend.
func (b *Badger) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return b.classify(err)
}

// Scan implements Backend.
func (b *Badger) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) bool) error {
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(string(item.KeyCopy(nil)), value) {
				break
			}
		}
		return nil
	})
	return b.classify(err)
}

// Size implements Backend. It reports live key and value bytes; the
// preallocated value log and stale versions are not counted.
func (b *Badger) Size(_ context.Context) (int64, error) {
	var total int64
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		total, err = logicalSize(txn, "")
		return err
	})
	return total, b.classify(err)
}

// logicalSize sums key and value bytes of the latest versions visible to
// txn, leaving out skip.
func logicalSize(txn *badger.Txn, skip string) (int64, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var total int64
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		if string(item.Key()) == skip {
			continue
		}
		total += int64(len(item.Key())) + item.ValueSize()
	}
	return total, nil
}

// Watch implements Watcher using Badger's prefix subscriptions.
//
// The subscription registers asynchronously; writes made before it is
// active are not reported.
func (b *Badger) Watch(ctx context.Context, prefix string) (<-chan string, error) {
	out := make(chan string, 64)
	matches := []pb.Match{{Prefix: []byte(prefix)}}

	go func() {
		defer close(out)
		err := b.db.Subscribe(ctx, func(list *badger.KVList) error {
			for _, kv := range list.Kv {
				select {
				case out <- string(kv.Key):
				default:
				}
			}
			return nil
		}, matches)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			b.logger.Warn("badger subscription ended", "prefix", prefix, "error", err)
		}
	}()
	return out, nil
}

// Close implements Backend.
func (b *Badger) Close() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	b.logger.Info("badger backend closed")
	return nil
}

// classify maps Badger failures onto backend errors.
func (b *Badger) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrKeyNotFound):
		return err
	case errors.Is(err, badger.ErrTxnTooBig), errors.Is(err, syscall.ENOSPC):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case errors.Is(err, badger.ErrDBClosed):
		return ErrClosed
	default:
		return err
	}
}

// RegisterMetrics registers size gauges with registry and keeps them current.
func (b *Badger) RegisterMetrics(registry prometheus.Registerer) *Badger {
	b.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "onboard",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	b.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "onboard",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	registry.MustRegister(b.metricsLSMSize, b.metricsValueLogSize)

	go b.metricsLoop()
	return b
}

func (b *Badger) metricsLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lsm, vlog := b.db.Size()
			b.metricsLSMSize.Set(float64(lsm))
			b.metricsValueLogSize.Set(float64(vlog))
		case <-b.stopCh:
			return
		}
	}
}

// gcLoop runs periodic value log garbage collection.
func (b *Badger) gcLoop() {
	defer close(b.doneCh)

	if b.cfg.InMemory {
		<-b.stopCh
		return
	}

	interval, err := time.ParseDuration(b.cfg.GCInterval)
	if err != nil || interval <= 0 {
		b.logger.Warn("invalid gc_interval, using default 10m", "value", b.cfg.GCInterval)
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runs := 0
			for b.db.RunValueLogGC(b.cfg.GCThreshold) == nil {
				runs++
			}
			if runs > 0 {
				b.logger.Debug("badger value log gc", "rewrites", runs)
			}
		case <-b.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

var (
	_ Backend = (*Badger)(nil)
	_ Watcher = (*Badger)(nil)
)
