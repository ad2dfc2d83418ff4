package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"os"
	"strings"
)

// HMACEnvKey is the env var name for the refresh-token digest key.
// #nosec G101 -- not a credential; it's an environment variable name.
const HMACEnvKey = "VIDTUBE_TOKEN_HMAC_KEY"

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the trimmed HMAC key bytes, enforcing a minimum length.
// A missing or blank env var returns ErrHMACKeyMissing.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	if minBytes > 0 && len(raw) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return []byte(raw), nil
}

// Digester turns refresh tokens into their stored representation.
// The zero value uses plain SHA-256.
type Digester struct {
	key []byte
}

// NewDigester returns a Digester keyed with key; an empty key selects SHA-256.
func NewDigester(key []byte) Digester {
	return Digester{key: append([]byte(nil), key...)}
}

// Keyed reports whether HMAC mode is active.
func (d Digester) Keyed() bool { return len(d.key) > 0 }

// Digest returns the hex digest of tok, or "" for an empty token.
func (d Digester) Digest(tok string) string {
	if tok == "" {
		return ""
	}
	if len(d.key) == 0 {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, d.key)
}

// Matches reports whether presented digests to stored. An empty stored digest never matches.
func (d Digester) Matches(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(d.Digest(presented))) == 1
}
