package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runDirectoryContract exercises behavior every Directory implementation must share.
// Usernames and emails are suffixed per run so shared databases stay usable.
func runDirectoryContract(t *testing.T, open func(t *testing.T) Directory) {
	t.Helper()

	var seq atomic.Int64
	uniq := func(base string) string {
		return fmt.Sprintf("%s%d%d", base, time.Now().UnixNano()%1_000_000, seq.Add(1))
	}
	ctx := func(t *testing.T) context.Context {
		c, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		t.Cleanup(cancel)
		return c
	}
	create := func(t *testing.T, d Directory, username string) Account {
		t.Helper()
		a, err := d.Create(ctx(t), CreateInput{
			Username:     username,
			Email:        strings.TrimSpace(username) + "@Example.com",
			FullName:     "  Test User ",
			PasswordHash: "$argon2id$stub",
			AvatarURL:    "https://img.example/a.png",
		})
		require.NoError(t, err)
		return a
	}

	t.Run("create normalizes and rejects duplicates", func(t *testing.T) {
		d := open(t)
		name := uniq("Alice")
		a := create(t, d, "  "+name+" ")

		assert.Equal(t, NormalizeUsername(name), a.Username)
		assert.Equal(t, NormalizeEmail(name+"@example.com"), a.Email)
		assert.Equal(t, "Test User", a.FullName)
		assert.NotEmpty(t, a.ID)
		assert.False(t, a.HasRefreshToken())

		_, err := d.Create(ctx(t), CreateInput{
			Username: name, Email: uniq("other") + "@example.com", FullName: "x", PasswordHash: "h",
		})
		require.Error(t, err)
		assert.True(t, IsConflict(err))
		assert.Equal(t, "username", ConflictField(err))

		_, err = d.Create(ctx(t), CreateInput{
			Username: uniq("bob"), Email: " " + name + "@EXAMPLE.com", FullName: "x", PasswordHash: "h",
		})
		require.Error(t, err)
		assert.Equal(t, "email", ConflictField(err))
	})

	t.Run("lookups", func(t *testing.T) {
		d := open(t)
		a := create(t, d, uniq("carol"))

		got, err := d.GetByID(ctx(t), a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.Username, got.Username)
		assert.Equal(t, "$argon2id$stub", got.PasswordHash)

		got, err = d.GetByUsername(ctx(t), "  "+a.Username)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)

		got, err = d.GetByEmail(ctx(t), a.Email)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)

		_, err = d.GetByID(ctx(t), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
		assert.True(t, IsNotFound(err))

		_, err = d.GetByUsername(ctx(t), "   ")
		assert.True(t, IsInvalidInput(err))
	})

	t.Run("refresh digest set swap clear", func(t *testing.T) {
		d := open(t)
		a := create(t, d, uniq("dave"))
		now := time.Now().UTC()

		err := d.SwapRefreshTokenDigest(ctx(t), a.ID, "nothing", "d1", now)
		assert.True(t, IsNotActive(err), "swap against empty stored digest must fail")

		require.NoError(t, d.SetRefreshTokenDigest(ctx(t), a.ID, "d1", now))
		require.NoError(t, d.SwapRefreshTokenDigest(ctx(t), a.ID, "d1", "d2", now))

		err = d.SwapRefreshTokenDigest(ctx(t), a.ID, "d1", "d3", now)
		assert.True(t, IsNotActive(err), "stale digest must not swap")

		got, err := d.GetByID(ctx(t), a.ID)
		require.NoError(t, err)
		assert.Equal(t, "d2", got.RefreshTokenDigest)

		require.NoError(t, d.SetRefreshTokenDigest(ctx(t), a.ID, "", now))
		err = d.SwapRefreshTokenDigest(ctx(t), a.ID, "d2", "d4", now)
		assert.True(t, IsNotActive(err))

		err = d.SwapRefreshTokenDigest(ctx(t), "missing", "d2", "d4", now)
		assert.True(t, IsNotActive(err))

		err = d.SetRefreshTokenDigest(ctx(t), "missing", "x", now)
		assert.True(t, IsNotFound(err))
	})

	t.Run("concurrent swap has one winner", func(t *testing.T) {
		d := open(t)
		a := create(t, d, uniq("erin"))
		require.NoError(t, d.SetRefreshTokenDigest(ctx(t), a.ID, "start", time.Now()))

		const n = 8
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := d.SwapRefreshTokenDigest(context.Background(), a.ID, "start", fmt.Sprintf("next-%d", i), time.Now())
				if err == nil {
					wins.Add(1)
				} else if !IsNotActive(err) {
					t.Errorf("unexpected swap error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("profile updates", func(t *testing.T) {
		d := open(t)
		a := create(t, d, uniq("frank"))
		b := create(t, d, uniq("grace"))

		got, err := d.UpdateDetails(ctx(t), a.ID, DetailsInput{FullName: " Frank F ", Email: "NEW-" + a.Email})
		require.NoError(t, err)
		assert.Equal(t, "Frank F", got.FullName)
		assert.Equal(t, NormalizeEmail("new-"+a.Email), got.Email)

		_, err = d.UpdateDetails(ctx(t), a.ID, DetailsInput{FullName: "x", Email: b.Email})
		assert.True(t, IsConflict(err))

		_, err = d.UpdateDetails(ctx(t), a.ID, DetailsInput{FullName: "", Email: "e@x.io"})
		assert.True(t, IsInvalidInput(err))

		got, err = d.UpdateAvatar(ctx(t), a.ID, "https://img.example/new.png", time.Time{})
		require.NoError(t, err)
		assert.Equal(t, "https://img.example/new.png", got.AvatarURL)

		got, err = d.UpdateCoverImage(ctx(t), a.ID, "https://img.example/cover.png", time.Time{})
		require.NoError(t, err)
		assert.Equal(t, "https://img.example/cover.png", got.CoverImageURL)

		require.NoError(t, d.UpdatePasswordHash(ctx(t), a.ID, "new-hash", time.Time{}))
		got, err = d.GetByID(ctx(t), a.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", got.PasswordHash)

		_, err = d.UpdateAvatar(ctx(t), "missing", "u", time.Time{})
		assert.True(t, IsNotFound(err))
	})

	t.Run("channel profile counts", func(t *testing.T) {
		d := open(t)
		ch := create(t, d, uniq("chan"))
		v1 := create(t, d, uniq("viewer"))
		v2 := create(t, d, uniq("viewer"))

		require.NoError(t, d.Subscribe(ctx(t), v1.ID, ch.ID, time.Time{}))
		require.NoError(t, d.Subscribe(ctx(t), v1.ID, ch.ID, time.Time{}))
		require.NoError(t, d.Subscribe(ctx(t), v2.ID, ch.ID, time.Time{}))
		require.NoError(t, d.Subscribe(ctx(t), ch.ID, v1.ID, time.Time{}))

		p, err := d.ChannelProfile(ctx(t), ch.Username, v1.ID)
		require.NoError(t, err)
		assert.Equal(t, ch.ID, p.ID)
		assert.Equal(t, int64(2), p.SubscribersCount)
		assert.Equal(t, int64(1), p.ChannelsSubscribedToCount)
		assert.True(t, p.IsSubscribed)

		p, err = d.ChannelProfile(ctx(t), ch.Username, "")
		require.NoError(t, err)
		assert.False(t, p.IsSubscribed)

		_, err = d.ChannelProfile(ctx(t), uniq("nobody"), "")
		assert.True(t, IsNotFound(err))
	})

	t.Run("watch history keeps order", func(t *testing.T) {
		d := open(t)
		owner := create(t, d, uniq("owner"))
		viewer := create(t, d, uniq("watcher"))

		va, err := d.CreateVideo(ctx(t), Video{OwnerID: owner.ID, Title: "first"})
		require.NoError(t, err)
		vb, err := d.CreateVideo(ctx(t), Video{OwnerID: owner.ID, Title: "second", DurationSeconds: 12.5})
		require.NoError(t, err)

		empty, err := d.WatchHistory(ctx(t), viewer.ID)
		require.NoError(t, err)
		assert.Empty(t, empty)

		require.NoError(t, d.AppendWatchHistory(ctx(t), viewer.ID, vb.ID, time.Time{}))
		require.NoError(t, d.AppendWatchHistory(ctx(t), viewer.ID, va.ID, time.Time{}))

		hist, err := d.WatchHistory(ctx(t), viewer.ID)
		require.NoError(t, err)
		require.Len(t, hist, 2)
		assert.Equal(t, "second", hist[0].Video.Title)
		assert.Equal(t, 12.5, hist[0].Video.DurationSeconds)
		assert.Equal(t, owner.Username, hist[0].Owner.Username)
		assert.Equal(t, "first", hist[1].Video.Title)

		err = d.AppendWatchHistory(ctx(t), viewer.ID, "missing-video", time.Time{})
		assert.True(t, IsNotFound(err))

		_, err = d.CreateVideo(ctx(t), Video{OwnerID: "missing", Title: "x"})
		assert.True(t, IsNotFound(err))

		_, err = d.WatchHistory(ctx(t), "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}
