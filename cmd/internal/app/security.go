package app

import (
	"errors"

	"vidtube/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// With VIDTUBE_REQUIRE_TOKEN_HMAC set the process refuses to start unless
// refresh-token digests can be keyed; there is no silent SHA-256 fallback.
// The key is measured in bytes because it is used as raw bytes.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	key, err := token.HMACKeyFromEnv(32)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: VIDTUBE_REQUIRE_TOKEN_HMAC=true but VIDTUBE_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: VIDTUBE_REQUIRE_TOKEN_HMAC=true but VIDTUBE_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	// The digester built from this key must actually be keyed.
	if !token.NewDigester(key).Keyed() {
		return errors.New("security policy: VIDTUBE_REQUIRE_TOKEN_HMAC=true but token digester is not keyed")
	}

	return nil
}
