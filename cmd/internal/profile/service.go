// Package profile serves the signed-in account's own record and the read
// models built around it: channel profiles and watch history.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vidtube/cmd/account"
	"vidtube/cmd/internal/kind"
	"vidtube/cmd/internal/media"
)

// Service reads and updates account profiles.
type Service struct {
	dir    account.Directory
	images media.Store
	log    *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a Service over dir and images.
func NewService(dir account.Directory, images media.Store, opts ...Option) (*Service, error) {
	if dir == nil || images == nil {
		return nil, fmt.Errorf("profile: missing dependency")
	}
	s := &Service{
		dir:    dir,
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

// Current reloads the account so callers see the latest stored state.
func (s *Service) Current(ctx context.Context, accountID string) (account.Account, error) {
	const op = "profile.Current"

	acc, err := s.dir.GetByID(ctx, accountID)
	if err != nil {
		return account.Account{}, mapError(op, err)
	}
	return acc, nil
}

// UpdateDetails replaces the full name and email. Both are required.
func (s *Service) UpdateDetails(ctx context.Context, accountID, fullName, email string) (account.Account, error) {
	const op = "profile.UpdateDetails"

	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)
	if fullName == "" || email == "" {
		return account.Account{}, kind.Validation(op, "all fields are required")
	}

	acc, err := s.dir.UpdateDetails(ctx, accountID, account.DetailsInput{
		FullName: fullName,
		Email:    email,
		Now:      s.now(),
	})
	if err != nil {
		return account.Account{}, mapError(op, err)
	}
	return acc, nil
}

// UpdateAvatar uploads a new avatar and stores its URL.
func (s *Service) UpdateAvatar(ctx context.Context, accountID string, file *media.FileRef) (account.Account, error) {
	const op = "profile.UpdateAvatar"

	url, err := s.upload(ctx, op, "avatar", file)
	if err != nil {
		return account.Account{}, err
	}
	acc, err := s.dir.UpdateAvatar(ctx, accountID, url, s.now())
	if err != nil {
		return account.Account{}, mapError(op, err)
	}
	return acc, nil
}

// UpdateCover uploads a new cover image and stores its URL.
func (s *Service) UpdateCover(ctx context.Context, accountID string, file *media.FileRef) (account.Account, error) {
	const op = "profile.UpdateCover"

	url, err := s.upload(ctx, op, "cover image", file)
	if err != nil {
		return account.Account{}, err
	}
	acc, err := s.dir.UpdateCoverImage(ctx, accountID, url, s.now())
	if err != nil {
		return account.Account{}, mapError(op, err)
	}
	return acc, nil
}

func (s *Service) upload(ctx context.Context, op, what string, file *media.FileRef) (string, error) {
	if file == nil || strings.TrimSpace(file.Path) == "" {
		return "", kind.Validation(op, what+" file is missing")
	}
	url, err := s.images.Upload(ctx, file.Path)
	if err != nil || url == "" {
		if err != nil {
			s.log.WarnContext(ctx, "profile.upload_fail", slog.String("what", what), slog.String("err", err.Error()))
		}
		return "", kind.E(op, kind.ErrInternal, "error while uploading "+what, err)
	}
	return url, nil
}

// ChannelProfile returns the channel named username as seen by viewerID.
func (s *Service) ChannelProfile(ctx context.Context, username, viewerID string) (account.ChannelProfile, error) {
	const op = "profile.ChannelProfile"

	if strings.TrimSpace(username) == "" {
		return account.ChannelProfile{}, kind.Validation(op, "username is missing")
	}
	p, err := s.dir.ChannelProfile(ctx, username, viewerID)
	if err != nil {
		if account.IsNotFound(err) {
			return account.ChannelProfile{}, kind.E(op, kind.ErrNotFound, "channel does not exist", err)
		}
		return account.ChannelProfile{}, mapError(op, err)
	}
	return p, nil
}

// WatchHistory returns the account's watched videos, oldest first.
func (s *Service) WatchHistory(ctx context.Context, accountID string) ([]account.WatchedVideo, error) {
	const op = "profile.WatchHistory"

	items, err := s.dir.WatchHistory(ctx, accountID)
	if err != nil {
		return nil, mapError(op, err)
	}
	if items == nil {
		items = []account.WatchedVideo{}
	}
	return items, nil
}

func mapError(op string, err error) error {
	switch {
	case account.IsConflict(err):
		field := account.ConflictField(err)
		if field == "" {
			field = "value"
		}
		return kind.E(op, kind.ErrConflict, field+" is already in use", err)
	case account.IsNotFound(err):
		return kind.E(op, kind.ErrNotFound, "user does not exist", err)
	case account.IsInvalidInput(err):
		return kind.E(op, kind.ErrValidation, "invalid input", err)
	default:
		return kind.Internal(op, err)
	}
}
