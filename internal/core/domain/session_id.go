package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionIDPrefix prefixes server-generated session ids.
// Format: onb-{ulid_lowercase}, 30 characters total.
const SessionIDPrefix = "onb-"

// NewSessionID generates a time-ordered onboarding session id.
// Callers may also bring their own ids; see ValidateSessionID.
func NewSessionID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return SessionIDPrefix + strings.ToLower(id.String()), nil
}

// IsGeneratedSessionID reports whether id has the NewSessionID format.
func IsGeneratedSessionID(id string) bool {
	if !strings.HasPrefix(id, SessionIDPrefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(id[len(SessionIDPrefix):]))
	return err == nil
}
