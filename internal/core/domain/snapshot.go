// Package domain defines the core domain models for onboarding session persistence.
package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Snapshot constraints.
const (
	// SnapshotKeyPrefix prefixes every persisted snapshot key.
	SnapshotKeyPrefix = "onboarding_session_"

	// MaxSessionIDLength bounds externally issued session ids.
	MaxSessionIDLength = 128

	// SavedAtLayout is the ISO-8601 layout used for savedAt (UTC, milliseconds).
	SavedAtLayout = "2006-01-02T15:04:05.000Z07:00"
)

// SessionSnapshot is the full onboarding data blob persisted for one session.
//
// Data is opaque to the persistence layer; callers own its schema.
type SessionSnapshot struct {
	// SessionID is derived from the storage key and not serialized.
	SessionID string `json:"-"`

	// Data is the caller-defined onboarding aggregate.
	Data json.RawMessage `json:"data"`

	// SavedAt is the time of the write that produced this snapshot.
	SavedAt time.Time `json:"savedAt"`
}

type snapshotWire struct {
	Data    json.RawMessage `json:"data"`
	SavedAt string          `json:"savedAt"`
}

// MarshalJSON encodes the snapshot as {"data": ..., "savedAt": ISO-8601}.
func (s SessionSnapshot) MarshalJSON() ([]byte, error) {
	data := s.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return json.Marshal(snapshotWire{
		Data:    data,
		SavedAt: s.SavedAt.UTC().Format(SavedAtLayout),
	})
}

// UnmarshalJSON decodes a stored snapshot. A missing or unparsable
// savedAt is an error so corrupted blobs are detected.
func (s *SessionSnapshot) UnmarshalJSON(b []byte) error {
	var w snapshotWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.SavedAt == "" {
		return fmt.Errorf("snapshot: savedAt missing")
	}
	savedAt, err := time.Parse(time.RFC3339Nano, w.SavedAt)
	if err != nil {
		return fmt.Errorf("snapshot: savedAt: %w", err)
	}
	s.Data = w.Data
	s.SavedAt = savedAt
	return nil
}

// Decode unmarshals the snapshot data into v.
func (s *SessionSnapshot) Decode(v any) error {
	if len(s.Data) == 0 {
		return nil
	}
	return json.Unmarshal(s.Data, v)
}

// DataEqual reports whether the snapshot data is JSON-equivalent to other.
func (s *SessionSnapshot) DataEqual(other json.RawMessage) bool {
	return JSONEqual(s.Data, other)
}

// JSONEqual reports whether two JSON documents decode to equal values.
// Invalid documents are never equal.
func JSONEqual(a, b json.RawMessage) bool {
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

// SnapshotKey returns the storage key for a session.
func SnapshotKey(sessionID string) string {
	return SnapshotKeyPrefix + sessionID
}

// SessionIDFromKey extracts the session id from a storage key.
// The second return is false if the key is not a snapshot key.
func SessionIDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, SnapshotKeyPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(key, SnapshotKeyPrefix)
	return id, id != ""
}

// ValidateSessionID checks an externally issued session id.
//
// Ids are opaque but must be usable as a key on every backend (including
// file names), so only [A-Za-z0-9._-] is accepted and a leading dot is
// rejected.
func ValidateSessionID(id string) error {
	if id == "" {
		return ErrInvalidSessionID.WithDetails("session id is required")
	}
	if len(id) > MaxSessionIDLength {
		return ErrInvalidSessionID.WithDetails(fmt.Sprintf("session id exceeds %d characters", MaxSessionIDLength))
	}
	if id[0] == '.' {
		return ErrInvalidSessionID.WithDetails("session id must not start with '.'")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return ErrInvalidSessionID.WithDetails(fmt.Sprintf("invalid character %q", r))
		}
	}
	return nil
}

// SaveStatus is the auto-save lifecycle state.
type SaveStatus string

const (
	SaveStatusIdle   SaveStatus = "idle"
	SaveStatusSaving SaveStatus = "saving"
	SaveStatusSaved  SaveStatus = "saved"
	SaveStatusError  SaveStatus = "error"
)

// String implements fmt.Stringer.
func (s SaveStatus) String() string {
	return string(s)
}
