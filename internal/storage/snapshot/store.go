package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/storage/kv"
	"github.com/yndnr/onboard-go/pkg/crypto/adaptive"
)

// Store reads and writes session snapshots on a kv.Backend.
type Store struct {
	backend kv.Backend
	cipher  adaptive.Cipher
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCipher seals stored blobs with c.
func WithCipher(c adaptive.Cipher) Option {
	return func(s *Store) {
		s.cipher = c
	}
}

// WithLogger sets the logger used for corruption warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock overrides the savedAt clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store over backend.
func New(backend kv.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying backend.
func (s *Store) Backend() kv.Backend {
	return s.backend
}

// Write serializes {data, savedAt: now} under the session key.
//
// Errors: ErrInvalidSessionID, ErrSerializationFailure when data cannot
// be encoded, ErrStorageQuotaExceeded when the backend rejects the write
// for capacity, ErrStorageUnavailable otherwise.
func (s *Store) Write(ctx context.Context, sessionID string, data any) (*domain.SessionSnapshot, error) {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	raw, err := encodeData(data)
	if err != nil {
		return nil, domain.ErrSerializationFailure.WithCause(err)
	}

	snap := &domain.SessionSnapshot{
		SessionID: sessionID,
		Data:      raw,
		SavedAt:   s.now().UTC().Truncate(time.Millisecond),
	}
	blob, err := json.Marshal(snap)
	if err != nil {
		return nil, domain.ErrSerializationFailure.WithCause(err)
	}

	key := domain.SnapshotKey(sessionID)
	if s.cipher != nil {
		blob, err = s.cipher.Encrypt(blob, []byte(key))
		if err != nil {
			return nil, domain.ErrStorageUnavailable.WithCause(err)
		}
	}

	if err := s.backend.Set(ctx, key, blob); err != nil {
		if kv.IsQuotaExceeded(err) {
			return nil, domain.ErrStorageQuotaExceeded.WithCause(err)
		}
		return nil, domain.ErrStorageUnavailable.WithCause(err)
	}
	return snap, nil
}

// encodeData turns a caller payload into raw JSON.
func encodeData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, errors.New("invalid JSON payload")
		}
		return append(json.RawMessage(nil), v...), nil
	case []byte:
		if !json.Valid(v) {
			return nil, errors.New("invalid JSON payload")
		}
		return append(json.RawMessage(nil), v...), nil
	default:
		return json.Marshal(data)
	}
}

// Read returns the snapshot for sessionID.
//
// found is false when no snapshot exists or the stored value is
// corrupted. err is non-nil only for backend failures
// (ErrStorageUnavailable) or an invalid session id.
func (s *Store) Read(ctx context.Context, sessionID string) (snap *domain.SessionSnapshot, found bool, err error) {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return nil, false, err
	}

	key := domain.SnapshotKey(sessionID)
	blob, err := s.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, domain.ErrStorageUnavailable.WithCause(err)
	}

	snap, err = s.decode(key, blob)
	if err != nil {
		s.logger.Warn("discarding corrupted snapshot",
			"session_id", sessionID,
			"bytes", len(blob),
			"error", err)
		return nil, false, nil
	}
	snap.SessionID = sessionID
	return snap, true, nil
}

func (s *Store) decode(key string, blob []byte) (*domain.SessionSnapshot, error) {
	if s.cipher != nil {
		plain, err := s.cipher.Decrypt(blob, []byte(key))
		if err != nil {
			return nil, err
		}
		blob = plain
	}
	var snap domain.SessionSnapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Clear removes the snapshot. Clearing a missing snapshot is not an error.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, domain.SnapshotKey(sessionID)); err != nil {
		return domain.ErrStorageUnavailable.WithCause(err)
	}
	return nil
}

// List returns the ids of all stored sessions in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.backend.Scan(ctx, domain.SnapshotKeyPrefix, func(key string, _ []byte) bool {
		if id, ok := domain.SessionIDFromKey(key); ok {
			ids = append(ids, id)
		}
		return true
	})
	if err != nil {
		return nil, domain.ErrStorageUnavailable.WithCause(err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Watch reports changes to one session's snapshot.
//
// ok is false when the backend cannot watch; callers then fall back to
// polling. The channel closes when ctx is done.
func (s *Store) Watch(ctx context.Context, sessionID string) (ch <-chan struct{}, ok bool, err error) {
	w, isWatcher := s.backend.(kv.Watcher)
	if !isWatcher {
		return nil, false, nil
	}

	key := domain.SnapshotKey(sessionID)
	events, err := w.Watch(ctx, key)
	if err != nil {
		return nil, false, domain.ErrStorageUnavailable.WithCause(err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for changed := range events {
			if changed != key {
				continue
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, true, nil
}
