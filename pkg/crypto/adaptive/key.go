package adaptive

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidKey is returned by ParseKey for keys that are neither 64 hex
// characters nor base64 of 32 bytes.
var ErrInvalidKey = errors.New("adaptive: key must be 32 bytes, hex or base64 encoded")

// ParseKey decodes a 256-bit key from configuration.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) == 64 {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		key, err := enc.DecodeString(s)
		if err == nil && len(key) == 32 {
			return key, nil
		}
	}
	return nil, ErrInvalidKey
}
