package authapi

import (
	"time"

	"vidtube/cmd/account"
)

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateDetailsRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// userResponse is the public view of an account. Credential fields have no
// counterpart here and cannot be serialized by accident.
type userResponse struct {
	ID           string    `json:"_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Avatar       string    `json:"avatar"`
	CoverImage   string    `json:"coverImage"`
	WatchHistory []string  `json:"watchHistory"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type loginResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type channelResponse struct {
	ID                        string `json:"_id"`
	Username                  string `json:"username"`
	Email                     string `json:"email"`
	FullName                  string `json:"fullName"`
	Avatar                    string `json:"avatar"`
	CoverImage                string `json:"coverImage"`
	SubscribersCount          int64  `json:"subscribersCount"`
	ChannelsSubscribedToCount int64  `json:"channelsSubscribedToCount"`
	IsSubscribed              bool   `json:"isSubscribed"`
}

type ownerResponse struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar"`
}

type watchedVideoResponse struct {
	ID          string        `json:"_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Thumbnail   string        `json:"thumbnail"`
	VideoFile   string        `json:"videoFile"`
	Duration    float64       `json:"duration"`
	Views       int64         `json:"views"`
	CreatedAt   time.Time     `json:"createdAt"`
	Owner       ownerResponse `json:"owner"`
}

func toUserResponse(a account.Account) userResponse {
	history := a.WatchHistory
	if history == nil {
		history = []string{}
	}
	return userResponse{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		FullName:     a.FullName,
		Avatar:       a.AvatarURL,
		CoverImage:   a.CoverImageURL,
		WatchHistory: append([]string(nil), history...),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func toChannelResponse(p account.ChannelProfile) channelResponse {
	return channelResponse{
		ID:                        p.ID,
		Username:                  p.Username,
		Email:                     p.Email,
		FullName:                  p.FullName,
		Avatar:                    p.AvatarURL,
		CoverImage:                p.CoverImageURL,
		SubscribersCount:          p.SubscribersCount,
		ChannelsSubscribedToCount: p.ChannelsSubscribedToCount,
		IsSubscribed:              p.IsSubscribed,
	}
}

func toWatchHistoryResponse(items []account.WatchedVideo) []watchedVideoResponse {
	out := make([]watchedVideoResponse, 0, len(items))
	for _, it := range items {
		out = append(out, watchedVideoResponse{
			ID:          it.Video.ID,
			Title:       it.Video.Title,
			Description: it.Video.Description,
			Thumbnail:   it.Video.ThumbnailURL,
			VideoFile:   it.Video.VideoURL,
			Duration:    it.Video.DurationSeconds,
			Views:       it.Video.Views,
			CreatedAt:   it.Video.CreatedAt,
			Owner: ownerResponse{
				Username: it.Owner.Username,
				FullName: it.Owner.FullName,
				Avatar:   it.Owner.AvatarURL,
			},
		})
	}
	return out
}
