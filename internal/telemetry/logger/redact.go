package logger

import (
	"log/slog"
	"regexp"
	"strings"
)

// Key fragments of credentials. Matched against the lower-cased key.
var secretKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"credential",
	"bearer",
	"authorization",
	"encryption_key",
	"redis_url",
}

// Key fragments of patient data. Matched against the lower-cased key with
// '_' and '-' removed, so "member_id" and "memberId" both hit.
var phiKeyPatterns = []string{
	"dob",
	"dateofbirth",
	"birth",
	"ssn",
	"socialsecurity",
	"diagnos",
	"medication",
	"allerg",
	"memberid",
	"groupid",
	"groupnumber",
	"policynumber",
	"email",
	"phone",
	"address",
	"firstname",
	"lastname",
	"fullname",
}

// Keys whose whole value is a snapshot payload.
var payloadKeys = map[string]bool{
	"data":    true,
	"payload": true,
	"pending": true,
	"body":    true,
}

// ssnPattern catches SSN-shaped values logged under innocuous keys.
var ssnPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive redacts a (possibly grouped) attribute.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	if IsSensitiveKey(a.Key) {
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, redactedValue)
	}

	if a.Value.Kind() == slog.KindString {
		if s := a.Value.String(); ssnPattern.MatchString(s) {
			return slog.String(a.Key, RedactString(s))
		}
	}
	return a
}

// RedactString masks SSN-shaped substrings in value.
func RedactString(value string) string {
	return ssnPattern.ReplaceAllString(value, "***-**-****")
}

// IsSensitiveKey reports whether a key names a secret, a PHI field, or a
// snapshot payload.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	if payloadKeys[lower] {
		return true
	}
	for _, p := range secretKeyPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	compact := strings.NewReplacer("_", "", "-", "", ".", "").Replace(lower)
	for _, p := range phiKeyPatterns {
		if strings.Contains(compact, p) {
			return true
		}
	}
	return false
}
