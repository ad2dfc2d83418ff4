// Package credential stores and checks account secrets: password hashes and the
// single refresh token each account may hold.
//
// Refresh tokens never reach the directory in plaintext; only their digest is
// written, and every comparison runs in constant time.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidtube/cmd/account"
	"vidtube/cmd/internal/kind"
	"vidtube/cmd/security/password"
	"vidtube/cmd/security/token"
)

const dummyPassword = "dummy-password-for-timing-only"

// Store binds the password hasher and the refresh-token digester to a directory.
type Store struct {
	dir       account.Directory
	passwords password.Config
	digester  token.Digester

	writeTimeout time.Duration
	now          func() time.Time

	dummyHash string
}

// Option configures a Store.
type Option func(*Store)

// WithWriteTimeout bounds refresh-token writes (default 5s).
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Store. It hashes a dummy password once so VerifyPassword can
// spend the same work when no account exists.
func New(dir account.Directory, passwords password.Config, digester token.Digester, opts ...Option) (*Store, error) {
	if dir == nil {
		return nil, fmt.Errorf("credential: nil directory")
	}
	s := &Store{
		dir:          dir,
		passwords:    passwords,
		digester:     digester,
		writeTimeout: 5 * time.Second,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	dummyCfg := passwords
	dummyCfg.Policy.MinLength = 1
	h, err := dummyCfg.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("credential: dummy hash: %w", err)
	}
	s.dummyHash = h
	return s, nil
}

// HashPassword returns a salted hash of plain. Policy violations are kind.ErrValidation.
func (s *Store) HashPassword(plain string) (string, error) {
	const op = "credential.HashPassword"

	h, err := s.passwords.Hash(plain)
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, password.ErrPasswordTooShort):
		return "", kind.E(op, kind.ErrValidation,
			fmt.Sprintf("password must be at least %d characters", s.passwords.Policy.MinLength), err)
	case errors.Is(err, password.ErrPasswordTooLong):
		return "", kind.E(op, kind.ErrValidation,
			fmt.Sprintf("password must be at most %d characters", s.passwords.Policy.MaxLength), err)
	case errors.Is(err, password.ErrWeakPassword):
		return "", kind.E(op, kind.ErrValidation, "password is too weak", err)
	default:
		return "", kind.Internal(op, err)
	}
}

// VerifyPassword reports whether plain matches hash. It fails closed on malformed
// hashes. An empty hash verifies against the dummy and returns false.
func (s *Store) VerifyPassword(plain, hash string) bool {
	if strings.TrimSpace(hash) == "" {
		_, _ = s.passwords.Verify(s.dummyHash, plain)
		return false
	}
	ok, err := s.passwords.Verify(hash, plain)
	return err == nil && ok
}

// NeedsRehash reports whether hash should be upgraded after a successful login.
func (s *Store) NeedsRehash(hash string) bool { return s.passwords.NeedsRehash(hash) }

// SetRefreshToken stores the digest of tok for the account; "" clears it.
// This is the single-session policy: any previously stored token stops matching.
func (s *Store) SetRefreshToken(ctx context.Context, accountID, tok string) error {
	ctx, cancel := s.writeContext(ctx)
	defer cancel()
	return s.dir.SetRefreshTokenDigest(ctx, accountID, s.digester.Digest(tok), s.now())
}

// RotateRefreshToken replaces the stored token with next only while presented is
// still the stored one. Returns an account.ErrNotActive error otherwise.
func (s *Store) RotateRefreshToken(ctx context.Context, accountID, presented, next string) error {
	ctx, cancel := s.writeContext(ctx)
	defer cancel()
	return s.dir.SwapRefreshTokenDigest(ctx, accountID,
		s.digester.Digest(presented), s.digester.Digest(next), s.now())
}

// MatchesRefreshToken compares a stored digest with a presented plaintext token.
func (s *Store) MatchesRefreshToken(storedDigest, presented string) bool {
	return s.digester.Matches(storedDigest, presented)
}

// writeContext detaches the write from request cancellation and bounds it.
func (s *Store) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
}
