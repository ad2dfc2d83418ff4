package account

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Directory used when no database is configured and in tests.
//
// All state is guarded by a single RWMutex, which makes every write (including the
// conditional refresh-token swap) atomic with respect to concurrent readers.
type MemoryStore struct {
	mu sync.RWMutex

	accounts   map[string]*Account // id -> account
	byUsername map[string]string   // username_norm -> id
	byEmail    map[string]string   // email_norm -> id

	videos map[string]Video
	subs   map[memSub]time.Time
}

type memSub struct {
	subscriber string
	channel    string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]*Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		videos:     make(map[string]Video),
		subs:       make(map[memSub]time.Time),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close(_ context.Context) error { return nil }

func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Account, error) {
	const op = "account.Create"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	in, err := normalizeCreate(op, in)
	if err != nil {
		return Account{}, err
	}

	id, err := NewID(in.Now)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[in.Username]; ok {
		return Account{}, ConflictError{Op: op, Field: "username"}
	}
	if _, ok := s.byEmail[in.Email]; ok {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}

	a := &Account{
		ID:            id,
		Username:      in.Username,
		Email:         in.Email,
		FullName:      in.FullName,
		AvatarURL:     in.AvatarURL,
		CoverImageURL: in.CoverImageURL,
		PasswordHash:  in.PasswordHash,
		CreatedAt:     in.Now,
		UpdatedAt:     in.Now,
	}
	s.accounts[id] = a
	s.byUsername[a.Username] = id
	s.byEmail[a.Email] = id

	return clone(a), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[strings.TrimSpace(id)]
	if !ok {
		return Account{}, NotFoundError{Op: "account.GetByID", Resource: "account"}
	}
	return clone(a), nil
}

func (s *MemoryStore) GetByUsername(ctx context.Context, username string) (Account, error) {
	return s.getByIndex(ctx, "account.GetByUsername", s.byUsername, NormalizeUsername(username))
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	return s.getByIndex(ctx, "account.GetByEmail", s.byEmail, NormalizeEmail(email))
}

func (s *MemoryStore) getByIndex(ctx context.Context, op string, idx map[string]string, key string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if key == "" {
		return Account{}, invalid(op, "empty key")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := idx[key]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return clone(s.accounts[id]), nil
}

func (s *MemoryStore) UpdateDetails(ctx context.Context, id string, in DetailsInput) (Account, error) {
	const op = "account.UpdateDetails"

	fullName := strings.TrimSpace(in.FullName)
	email := NormalizeEmail(in.Email)
	if fullName == "" || email == "" {
		return Account{}, invalid(op, "full name and email are required")
	}

	var out Account
	err := s.mutate(ctx, op, id, func(a *Account) error {
		if owner, ok := s.byEmail[email]; ok && owner != a.ID {
			return ConflictError{Op: op, Field: "email"}
		}
		delete(s.byEmail, a.Email)
		a.FullName = fullName
		a.Email = email
		a.UpdatedAt = nowOr(in.Now)
		s.byEmail[email] = a.ID
		out = clone(a)
		return nil
	})
	return out, err
}

func (s *MemoryStore) UpdateAvatar(ctx context.Context, id, url string, now time.Time) (Account, error) {
	var out Account
	err := s.mutate(ctx, "account.UpdateAvatar", id, func(a *Account) error {
		a.AvatarURL = url
		a.UpdatedAt = nowOr(now)
		out = clone(a)
		return nil
	})
	return out, err
}

func (s *MemoryStore) UpdateCoverImage(ctx context.Context, id, url string, now time.Time) (Account, error) {
	var out Account
	err := s.mutate(ctx, "account.UpdateCoverImage", id, func(a *Account) error {
		a.CoverImageURL = url
		a.UpdatedAt = nowOr(now)
		out = clone(a)
		return nil
	})
	return out, err
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	if strings.TrimSpace(hash) == "" {
		return invalid("account.UpdatePasswordHash", "empty hash")
	}
	return s.mutate(ctx, "account.UpdatePasswordHash", id, func(a *Account) error {
		a.PasswordHash = hash
		a.UpdatedAt = nowOr(now)
		return nil
	})
}

func (s *MemoryStore) SetRefreshTokenDigest(ctx context.Context, id, digest string, now time.Time) error {
	return s.mutate(ctx, "account.SetRefreshTokenDigest", id, func(a *Account) error {
		a.RefreshTokenDigest = digest
		a.UpdatedAt = nowOr(now)
		return nil
	})
}

func (s *MemoryStore) SwapRefreshTokenDigest(ctx context.Context, id, expected, next string, now time.Time) error {
	const op = "account.SwapRefreshTokenDigest"

	if err := ctx.Err(); err != nil {
		return err
	}
	if expected == "" || next == "" {
		return staleRefresh(op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[strings.TrimSpace(id)]
	if !ok || a.RefreshTokenDigest == "" {
		return staleRefresh(op)
	}
	if subtle.ConstantTimeCompare([]byte(a.RefreshTokenDigest), []byte(expected)) != 1 {
		return staleRefresh(op)
	}
	a.RefreshTokenDigest = next
	a.UpdatedAt = nowOr(now)
	return nil
}

func (s *MemoryStore) ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error) {
	const op = "account.ChannelProfile"

	if err := ctx.Err(); err != nil {
		return ChannelProfile{}, err
	}
	key := NormalizeUsername(username)
	if key == "" {
		return ChannelProfile{}, invalid(op, "username is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[key]
	if !ok {
		return ChannelProfile{}, NotFoundError{Op: op, Resource: "channel"}
	}
	a := s.accounts[id]

	p := ChannelProfile{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		FullName:      a.FullName,
		AvatarURL:     a.AvatarURL,
		CoverImageURL: a.CoverImageURL,
	}
	for sub := range s.subs {
		if sub.channel == a.ID {
			p.SubscribersCount++
			if viewerID != "" && sub.subscriber == viewerID {
				p.IsSubscribed = true
			}
		}
		if sub.subscriber == a.ID {
			p.ChannelsSubscribedToCount++
		}
	}
	return p, nil
}

func (s *MemoryStore) WatchHistory(ctx context.Context, id string) ([]WatchedVideo, error) {
	const op = "account.WatchHistory"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[strings.TrimSpace(id)]
	if !ok {
		return nil, NotFoundError{Op: op, Resource: "account"}
	}

	out := make([]WatchedVideo, 0, len(a.WatchHistory))
	for _, vid := range a.WatchHistory {
		v, ok := s.videos[vid]
		if !ok {
			continue
		}
		w := WatchedVideo{Video: v}
		if owner, ok := s.accounts[v.OwnerID]; ok {
			w.Owner = Owner{ID: owner.ID, Username: owner.Username, FullName: owner.FullName, AvatarURL: owner.AvatarURL}
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, subscriberID, channelID string, now time.Time) error {
	const op = "account.Subscribe"

	if err := ctx.Err(); err != nil {
		return err
	}
	if subscriberID == "" || channelID == "" {
		return invalid(op, "subscriber and channel are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[subscriberID]; !ok {
		return NotFoundError{Op: op, Resource: "subscriber"}
	}
	if _, ok := s.accounts[channelID]; !ok {
		return NotFoundError{Op: op, Resource: "channel"}
	}
	key := memSub{subscriber: subscriberID, channel: channelID}
	if _, ok := s.subs[key]; !ok {
		s.subs[key] = nowOr(now)
	}
	return nil
}

func (s *MemoryStore) CreateVideo(ctx context.Context, v Video) (Video, error) {
	const op = "account.CreateVideo"

	if err := ctx.Err(); err != nil {
		return Video{}, err
	}
	v, err := normalizeVideo(op, v)
	if err != nil {
		return Video{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[v.OwnerID]; !ok {
		return Video{}, NotFoundError{Op: op, Resource: "owner"}
	}
	if _, ok := s.videos[v.ID]; ok {
		return Video{}, ConflictError{Op: op, Field: "id"}
	}
	s.videos[v.ID] = v
	return v, nil
}

func (s *MemoryStore) AppendWatchHistory(ctx context.Context, id, videoID string, now time.Time) error {
	const op = "account.AppendWatchHistory"

	s.mu.RLock()
	_, ok := s.videos[videoID]
	s.mu.RUnlock()
	if !ok {
		return NotFoundError{Op: op, Resource: "video"}
	}

	return s.mutate(ctx, op, id, func(a *Account) error {
		a.WatchHistory = append(a.WatchHistory, videoID)
		a.UpdatedAt = nowOr(now)
		return nil
	})
}

// mutate applies fn to the account under the write lock.
func (s *MemoryStore) mutate(ctx context.Context, op, id string, fn func(a *Account) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[strings.TrimSpace(id)]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return fn(a)
}

func clone(a *Account) Account {
	out := *a
	if a.WatchHistory != nil {
		out.WatchHistory = append([]string(nil), a.WatchHistory...)
	}
	return out
}

func nowOr(now time.Time) time.Time {
	if now.IsZero() {
		return time.Now().UTC()
	}
	return now
}

// normalizeCreate validates and canonicalizes a CreateInput. Shared by all stores.
func normalizeCreate(op string, in CreateInput) (CreateInput, error) {
	in.Username = NormalizeUsername(in.Username)
	in.Email = NormalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.AvatarURL = strings.TrimSpace(in.AvatarURL)
	in.CoverImageURL = strings.TrimSpace(in.CoverImageURL)

	switch {
	case in.Username == "":
		return CreateInput{}, invalid(op, "username is required")
	case in.Email == "":
		return CreateInput{}, invalid(op, "email is required")
	case in.FullName == "":
		return CreateInput{}, invalid(op, "full name is required")
	case strings.TrimSpace(in.PasswordHash) == "":
		return CreateInput{}, invalid(op, "password hash is required")
	}
	in.Now = nowOr(in.Now)
	return in, nil
}

func normalizeVideo(op string, v Video) (Video, error) {
	v.Title = strings.TrimSpace(v.Title)
	if v.OwnerID == "" || v.Title == "" {
		return Video{}, invalid(op, "owner and title are required")
	}
	v.CreatedAt = nowOr(v.CreatedAt)
	if v.ID == "" {
		id, err := NewID(v.CreatedAt)
		if err != nil {
			return Video{}, err
		}
		v.ID = id
	}
	return v, nil
}
