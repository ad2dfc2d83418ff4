// Package token issues and verifies signed session tokens and digests refresh
// tokens for server-side storage.
//
// Signed tokens are HS256 JWTs with sub, iat, exp, jti and iss claims. Access and
// refresh tokens use distinct secrets, so a token of one class never verifies as
// the other. Every token carries a fresh ULID jti, which keeps two tokens issued
// for the same subject in the same second distinct.
//
// Refresh-token digests:
// - HMAC-SHA256(token, key) when a key is configured (VIDTUBE_TOKEN_HMAC_KEY).
// - SHA-256(token) otherwise.
// - Stable 64-char hex output, compared in constant time.
package token
