package token

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// MinSecretBytes is the minimum length of an HS256 signing secret.
const MinSecretBytes = 32

// IssuerConfig configures an Issuer.
type IssuerConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Issuer is written to iss and required on verification when non-empty.
	Issuer string
}

// Validate enforces secret size, distinct secrets and positive lifetimes.
func (c IssuerConfig) Validate() error {
	switch {
	case len(c.AccessSecret) < MinSecretBytes:
		return fmt.Errorf("%w: access secret shorter than %d bytes", ErrConfig, MinSecretBytes)
	case len(c.RefreshSecret) < MinSecretBytes:
		return fmt.Errorf("%w: refresh secret shorter than %d bytes", ErrConfig, MinSecretBytes)
	case bytes.Equal(c.AccessSecret, c.RefreshSecret):
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
	case c.AccessTTL <= 0 || c.RefreshTTL <= 0:
		return fmt.Errorf("%w: token lifetimes must be positive", ErrConfig)
	}
	return nil
}

// Claims is the verified content of a token.
type Claims struct {
	Subject   string
	TokenID   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issued is a freshly signed token and its expiry.
type Issued struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// Issuer signs and verifies access and refresh tokens.
type Issuer struct {
	cfg IssuerConfig
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.AccessSecret = append([]byte(nil), cfg.AccessSecret...)
	cfg.RefreshSecret = append([]byte(nil), cfg.RefreshSecret...)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	return &Issuer{cfg: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.cfg.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.cfg.RefreshTTL }

// IssueAccess signs a short-lived access token for subject.
func (i *Issuer) IssueAccess(subject string, now time.Time) (Issued, error) {
	return i.issue(subject, now, i.cfg.AccessTTL, i.cfg.AccessSecret)
}

// IssueRefresh signs a long-lived refresh token for subject.
func (i *Issuer) IssueRefresh(subject string, now time.Time) (Issued, error) {
	return i.issue(subject, now, i.cfg.RefreshTTL, i.cfg.RefreshSecret)
}

// VerifyAccess verifies tok against the access secret.
func (i *Issuer) VerifyAccess(tok string, now time.Time) (Claims, error) {
	return verify(tok, i.cfg.AccessSecret, now, i.cfg.Issuer)
}

// VerifyRefresh verifies tok against the refresh secret.
func (i *Issuer) VerifyRefresh(tok string, now time.Time) (Claims, error) {
	return verify(tok, i.cfg.RefreshSecret, now, i.cfg.Issuer)
}

func (i *Issuer) issue(subject string, now time.Time, ttl time.Duration, secret []byte) (Issued, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Issued{}, fmt.Errorf("%w: empty subject", ErrMalformed)
	}
	if now.IsZero() {
		now = time.Now()
	}
	// NumericDate has second precision; report what the token carries.
	iat := now.UTC().Truncate(time.Second)
	exp := iat.Add(ttl)
	jti := ulid.Make().String()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        jti,
		Issuer:    i.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign token: %w", err)
	}
	return Issued{Token: signed, TokenID: jti, ExpiresAt: exp}, nil
}

// Verify checks tok with secret at instant now. It touches no store.
//
// Errors: ErrInvalidSignature when the signature does not match secret,
// ErrExpired when exp has passed, ErrMalformed for anything else (unparseable,
// non-HS256 algorithm, missing subject or expiry).
func Verify(tok string, secret []byte, now time.Time) (Claims, error) {
	return verify(tok, secret, now, "")
}

var errUnexpectedAlg = errors.New("unexpected signing algorithm")

func verify(tok string, secret []byte, now time.Time, issuer string) (Claims, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return Claims{}, ErrMalformed
	}
	if now.IsZero() {
		now = time.Now()
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tok, &rc, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errUnexpectedAlg
		}
		return secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		default:
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if strings.TrimSpace(rc.Subject) == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	c := Claims{Subject: rc.Subject, TokenID: rc.ID, Issuer: rc.Issuer}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}
