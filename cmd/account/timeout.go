package account

import (
	"context"
	"time"
)

type timeoutDirectory struct {
	next Directory
	d    time.Duration
}

// WithTimeout bounds every call on next by d. Ping and Close are passed through.
// A non-positive d returns next unchanged.
func WithTimeout(next Directory, d time.Duration) Directory {
	if d <= 0 || next == nil {
		return next
	}
	return timeoutDirectory{next: next, d: d}
}

func (t timeoutDirectory) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, t.d)
}

func (t timeoutDirectory) Create(ctx context.Context, in CreateInput) (Account, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.Create(ctx, in)
}

func (t timeoutDirectory) GetByID(ctx context.Context, id string) (Account, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.GetByID(ctx, id)
}

func (t timeoutDirectory) GetByUsername(ctx context.Context, username string) (Account, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.GetByUsername(ctx, username)
}

func (t timeoutDirectory) GetByEmail(ctx context.Context, email string) (Account, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.GetByEmail(ctx, email)
}

func (t timeoutDirectory) UpdateDetails(ctx context.Context, id string, in DetailsInput) (Account, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.UpdateDetails(ctx, id, in)
}

func (t timeoutDirectory) UpdateAvatar(ctx context.Context, id, url string, now time.Time) (Account, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.UpdateAvatar(ctx, id, url, now)
}

func (t timeoutDirectory) UpdateCoverImage(ctx context.Context, id, url string, now time.Time) (Account, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.UpdateCoverImage(ctx, id, url, now)
}

func (t timeoutDirectory) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.UpdatePasswordHash(ctx, id, hash, now)
}

func (t timeoutDirectory) SetRefreshTokenDigest(ctx context.Context, id, digest string, now time.Time) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.SetRefreshTokenDigest(ctx, id, digest, now)
}

func (t timeoutDirectory) SwapRefreshTokenDigest(ctx context.Context, id, expected, next string, now time.Time) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.SwapRefreshTokenDigest(ctx, id, expected, next, now)
}

func (t timeoutDirectory) ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.ChannelProfile(ctx, username, viewerID)
}

func (t timeoutDirectory) WatchHistory(ctx context.Context, id string) ([]WatchedVideo, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.WatchHistory(ctx, id)
}

func (t timeoutDirectory) Subscribe(ctx context.Context, subscriberID, channelID string, now time.Time) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.Subscribe(ctx, subscriberID, channelID, now)
}

func (t timeoutDirectory) CreateVideo(ctx context.Context, v Video) (Video, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.CreateVideo(ctx, v)
}

func (t timeoutDirectory) AppendWatchHistory(ctx context.Context, id, videoID string, now time.Time) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.AppendWatchHistory(ctx, id, videoID, now)
}

func (t timeoutDirectory) Ping(ctx context.Context) error { return t.next.Ping(ctx) }

func (t timeoutDirectory) Close(ctx context.Context) error { return t.next.Close(ctx) }
