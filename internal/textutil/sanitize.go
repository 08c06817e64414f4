package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const maxKeySlug = 40

// SanitizeToken maps value to a lowercase token of [a-z0-9_-]. Any other
// rune becomes an underscore; leading and trailing separators are dropped.
// Distinct inputs can share a token, so use FileKey when the result must
// identify value. Empty results become "unknown".
func SanitizeToken(value string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(value))
	if out := strings.Trim(mapped, "_-"); out != "" {
		return out
	}
	return "unknown"
}

// FileKey derives a filesystem name that is unique per exact value: a
// readable SanitizeToken prefix followed by the SHA-256 of value.
func FileKey(value string) string {
	slug := SanitizeToken(value)
	if len(slug) > maxKeySlug {
		slug = strings.TrimRight(slug[:maxKeySlug], "_-")
	}
	sum := sha256.Sum256([]byte(value))
	return slug + "-" + hex.EncodeToString(sum[:])
}
