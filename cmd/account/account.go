package account

import (
	"context"
	"time"
)

// Account is the canonical user record.
//
// PasswordHash and RefreshTokenDigest are credentials and must never reach a
// response payload; transport layers serialize a sanitized view instead.
type Account struct {
	ID            string
	Username      string
	Email         string
	FullName      string
	AvatarURL     string
	CoverImageURL string

	PasswordHash       string `json:"-"`
	RefreshTokenDigest string `json:"-"`

	// WatchHistory holds video IDs, oldest first.
	WatchHistory []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasRefreshToken reports whether a refresh token is currently stored.
func (a Account) HasRefreshToken() bool { return a.RefreshTokenDigest != "" }

// Sanitized returns a copy with credential fields cleared.
func (a Account) Sanitized() Account {
	a.PasswordHash = ""
	a.RefreshTokenDigest = ""
	if a.WatchHistory != nil {
		a.WatchHistory = append([]string(nil), a.WatchHistory...)
	}
	return a
}

// CreateInput describes a new account. Username and Email are normalized by the store.
type CreateInput struct {
	Username      string
	Email         string
	FullName      string
	PasswordHash  string
	AvatarURL     string
	CoverImageURL string
	Now           time.Time
}

// DetailsInput carries the mutable profile fields.
type DetailsInput struct {
	FullName string
	Email    string
	Now      time.Time
}

// Video is a content item referenced by watch histories.
type Video struct {
	ID              string
	OwnerID         string
	Title           string
	Description     string
	ThumbnailURL    string
	VideoURL        string
	DurationSeconds float64
	Views           int64
	CreatedAt       time.Time
}

// Owner is the public projection of a video owner.
type Owner struct {
	ID        string
	Username  string
	FullName  string
	AvatarURL string
}

// WatchedVideo is one entry of a watch-history projection.
type WatchedVideo struct {
	Video Video
	Owner Owner
}

// ChannelProfile is the subscription read model of a channel (an account),
// seen from a viewer.
type ChannelProfile struct {
	ID                        string
	Username                  string
	Email                     string
	FullName                  string
	AvatarURL                 string
	CoverImageURL             string
	SubscribersCount          int64
	ChannelsSubscribedToCount int64
	IsSubscribed              bool
}

// Directory is the account persistence boundary.
//
// Contract for refresh-token state:
//   - SetRefreshTokenDigest overwrites unconditionally ("" clears) in one atomic write.
//   - SwapRefreshTokenDigest replaces the stored digest only if it still equals expected,
//     as a single atomic conditional update. Any failure returns an ErrNotActive error.
type Directory interface {
	Create(ctx context.Context, in CreateInput) (Account, error)

	GetByID(ctx context.Context, id string) (Account, error)
	GetByUsername(ctx context.Context, username string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)

	UpdateDetails(ctx context.Context, id string, in DetailsInput) (Account, error)
	UpdateAvatar(ctx context.Context, id, url string, now time.Time) (Account, error)
	UpdateCoverImage(ctx context.Context, id, url string, now time.Time) (Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error

	SetRefreshTokenDigest(ctx context.Context, id, digest string, now time.Time) error
	SwapRefreshTokenDigest(ctx context.Context, id, expected, next string, now time.Time) error

	ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error)
	WatchHistory(ctx context.Context, id string) ([]WatchedVideo, error)

	Subscribe(ctx context.Context, subscriberID, channelID string, now time.Time) error
	CreateVideo(ctx context.Context, v Video) (Video, error)
	AppendWatchHistory(ctx context.Context, id, videoID string, now time.Time) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
