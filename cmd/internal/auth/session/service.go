package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vidtube/cmd/account"
	"vidtube/cmd/internal/auth/credential"
	"vidtube/cmd/internal/kind"
	"vidtube/cmd/internal/media"
	"vidtube/cmd/security/token"
)

// Service coordinates the directory, credential store, token issuer and image store.
type Service struct {
	cfg    Config
	dir    account.Directory
	creds  *credential.Store
	tokens *token.Issuer
	images media.Store
	log    *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for non-fatal failures.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a Service. All dependencies are required.
func NewService(cfg Config, dir account.Directory, creds *credential.Store, tokens *token.Issuer, images media.Store, opts ...Option) (*Service, error) {
	if dir == nil || creds == nil || tokens == nil || images == nil {
		return nil, fmt.Errorf("session: missing dependency")
	}
	s := &Service{
		cfg:    cfg,
		dir:    dir,
		creds:  creds,
		tokens: tokens,
		images: images,
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Upload carries the staged image files of a request.
type Upload struct {
	Avatar *media.FileRef
	Cover  *media.FileRef
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username string
	Email    string
	FullName string
	Password string
	Files    Upload
}

// LoginInput identifies an account by username or email.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// TokenPair is an access token plus its refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Account account.Account
	Tokens  TokenPair
}

// Register creates an account. Username or email collisions are checked before
// any upload and again by the directory's unique indexes.
func (s *Service) Register(ctx context.Context, in RegisterInput) (account.Account, error) {
	const op = "session.Register"

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	if username == "" || email == "" || fullName == "" || strings.TrimSpace(in.Password) == "" {
		return account.Account{}, kind.Validation(op, "all fields are required")
	}
	if in.Files.Avatar == nil || strings.TrimSpace(in.Files.Avatar.Path) == "" {
		return account.Account{}, kind.Validation(op, "avatar file is required")
	}

	if err := s.ensureAvailable(ctx, op, username, email); err != nil {
		return account.Account{}, err
	}

	hash, err := s.creds.HashPassword(in.Password)
	if err != nil {
		return account.Account{}, err
	}

	avatarURL, err := s.images.Upload(ctx, in.Files.Avatar.Path)
	if err != nil || avatarURL == "" {
		return account.Account{}, kind.E(op, kind.ErrInternal, "avatar upload failed", err)
	}

	var coverURL string
	if in.Files.Cover != nil && strings.TrimSpace(in.Files.Cover.Path) != "" {
		coverURL, err = s.images.Upload(ctx, in.Files.Cover.Path)
		if err != nil {
			s.log.WarnContext(ctx, "auth.register.cover_upload_fail", slog.String("err", err.Error()))
			coverURL = ""
		}
	}

	acc, err := s.dir.Create(ctx, account.CreateInput{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		PasswordHash:  hash,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		Now:           s.now(),
	})
	if err != nil {
		return account.Account{}, mapDirectoryError(op, err)
	}
	return acc, nil
}

func (s *Service) ensureAvailable(ctx context.Context, op, username, email string) error {
	if _, err := s.dir.GetByUsername(ctx, username); err == nil {
		return kind.E(op, kind.ErrConflict, "user with email or username already exists", account.ConflictError{Op: op, Field: "username"})
	} else if !account.IsNotFound(err) {
		return kind.Internal(op, err)
	}
	if _, err := s.dir.GetByEmail(ctx, email); err == nil {
		return kind.E(op, kind.ErrConflict, "user with email or username already exists", account.ConflictError{Op: op, Field: "email"})
	} else if !account.IsNotFound(err) {
		return kind.Internal(op, err)
	}
	return nil
}

// Login verifies credentials and issues a fresh token pair. The new refresh
// token replaces whatever was stored, invalidating any earlier one.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	const op = "session.Login"

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" && email == "" {
		return LoginResult{}, kind.Validation(op, "username or email is required")
	}
	if in.Password == "" {
		return LoginResult{}, kind.Validation(op, "password is required")
	}

	acc, err := s.lookup(ctx, username, email)
	if err != nil {
		if account.IsNotFound(err) {
			s.creds.VerifyPassword(in.Password, "")
			return LoginResult{}, kind.NotFound(op, "user does not exist")
		}
		return LoginResult{}, kind.Internal(op, err)
	}

	if !s.creds.VerifyPassword(in.Password, acc.PasswordHash) {
		return LoginResult{}, kind.Unauthorized(op, "invalid user credentials")
	}
	s.upgradeHash(ctx, acc, in.Password)

	pair, err := s.issuePair(acc.ID)
	if err != nil {
		return LoginResult{}, kind.Internal(op, err)
	}
	if err := s.creds.SetRefreshToken(ctx, acc.ID, pair.RefreshToken); err != nil {
		return LoginResult{}, mapDirectoryError(op, err)
	}
	acc.RefreshTokenDigest = ""
	return LoginResult{Account: acc, Tokens: pair}, nil
}

// lookup prefers the username and falls back to the email.
func (s *Service) lookup(ctx context.Context, username, email string) (account.Account, error) {
	if username != "" {
		acc, err := s.dir.GetByUsername(ctx, username)
		if err == nil || !account.IsNotFound(err) || email == "" {
			return acc, err
		}
	}
	return s.dir.GetByEmail(ctx, email)
}

// upgradeHash replaces legacy or weaker hashes after a successful login. Best-effort.
func (s *Service) upgradeHash(ctx context.Context, acc account.Account, plain string) {
	if !s.creds.NeedsRehash(acc.PasswordHash) {
		return
	}
	h, err := s.creds.HashPassword(plain)
	if err != nil {
		return
	}
	if err := s.dir.UpdatePasswordHash(ctx, acc.ID, h, s.now()); err != nil {
		s.log.WarnContext(ctx, "auth.login.rehash_fail", slog.String("account_id", acc.ID), slog.String("err", err.Error()))
	}
}

// Refresh exchanges a current refresh token for a new pair. The presented token
// stops working as soon as the rotation is stored; of two concurrent refreshes
// with the same token exactly one succeeds.
func (s *Service) Refresh(ctx context.Context, presented string) (TokenPair, error) {
	const op = "session.Refresh"

	presented = strings.TrimSpace(presented)
	if presented == "" {
		return TokenPair{}, kind.Unauthorized(op, "unauthorized request")
	}

	claims, err := s.tokens.VerifyRefresh(presented, s.now())
	if err != nil {
		return TokenPair{}, kind.E(op, kind.ErrForbidden, "invalid refresh token", err)
	}

	acc, err := s.dir.GetByID(ctx, claims.Subject)
	if err != nil {
		if account.IsNotFound(err) {
			return TokenPair{}, kind.Forbidden(op, "invalid refresh token")
		}
		return TokenPair{}, kind.Internal(op, err)
	}
	if !s.creds.MatchesRefreshToken(acc.RefreshTokenDigest, presented) {
		return TokenPair{}, kind.Forbidden(op, "refresh token is expired or used")
	}

	pair, err := s.issuePair(acc.ID)
	if err != nil {
		return TokenPair{}, kind.Internal(op, err)
	}
	if err := s.creds.RotateRefreshToken(ctx, acc.ID, presented, pair.RefreshToken); err != nil {
		if account.IsNotActive(err) {
			return TokenPair{}, kind.E(op, kind.ErrForbidden, "refresh token is expired or used", err)
		}
		return TokenPair{}, kind.Internal(op, err)
	}
	return pair, nil
}

// Logout clears the stored refresh token. Calling it again is a no-op.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	const op = "session.Logout"

	if err := s.creds.SetRefreshToken(ctx, accountID, ""); err != nil {
		return mapDirectoryError(op, err)
	}
	return nil
}

// ChangePassword replaces the password hash after checking the old password.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	const op = "session.ChangePassword"

	if oldPassword == "" || newPassword == "" {
		return kind.Validation(op, "old and new password are required")
	}

	acc, err := s.dir.GetByID(ctx, accountID)
	if err != nil {
		return mapDirectoryError(op, err)
	}
	if !s.creds.VerifyPassword(oldPassword, acc.PasswordHash) {
		return kind.Unauthorized(op, "invalid old password")
	}

	hash, err := s.creds.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.dir.UpdatePasswordHash(ctx, acc.ID, hash, s.now()); err != nil {
		return mapDirectoryError(op, err)
	}

	if s.cfg.RevokeOnPasswordChange {
		if err := s.creds.SetRefreshToken(ctx, acc.ID, ""); err != nil {
			return mapDirectoryError(op, err)
		}
	}
	return nil
}

// Authenticate verifies an access token and loads its account.
// Every failure is kind.ErrUnauthorized except directory faults.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (account.Account, error) {
	const op = "session.Authenticate"

	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return account.Account{}, kind.Unauthorized(op, "unauthorized request")
	}
	claims, err := s.tokens.VerifyAccess(accessToken, s.now())
	if err != nil {
		return account.Account{}, kind.E(op, kind.ErrUnauthorized, "invalid access token", err)
	}
	acc, err := s.dir.GetByID(ctx, claims.Subject)
	if err != nil {
		if account.IsNotFound(err) {
			return account.Account{}, kind.Unauthorized(op, "invalid access token")
		}
		return account.Account{}, kind.Internal(op, err)
	}
	return acc, nil
}

func (s *Service) issuePair(accountID string) (TokenPair, error) {
	now := s.now()
	at, err := s.tokens.IssueAccess(accountID, now)
	if err != nil {
		return TokenPair{}, err
	}
	rt, err := s.tokens.IssueRefresh(accountID, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      at.Token,
		AccessExpiresAt:  at.ExpiresAt,
		RefreshToken:     rt.Token,
		RefreshExpiresAt: rt.ExpiresAt,
	}, nil
}

// mapDirectoryError translates typed directory errors into kinds.
func mapDirectoryError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case account.IsConflict(err):
		return kind.E(op, kind.ErrConflict, "user with email or username already exists", err)
	case account.IsNotFound(err):
		return kind.E(op, kind.ErrNotFound, "user does not exist", err)
	case account.IsInvalidInput(err):
		return kind.E(op, kind.ErrValidation, "invalid input", err)
	default:
		return kind.Internal(op, err)
	}
}
