package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"vidtube/cmd/account"
	"vidtube/cmd/internal/auth/credential"
	"vidtube/cmd/internal/kind"
	"vidtube/cmd/internal/media"
	"vidtube/cmd/security/password"
	"vidtube/cmd/security/token"
)

type fakeImages struct {
	mu       sync.Mutex
	uploads  []string
	failNext map[string]error // by file base name
}

func (f *fakeImages) Upload(_ context.Context, localPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = os.Remove(localPath)
	name := filepath.Base(localPath)
	if err := f.failNext[name]; err != nil {
		return "", err
	}
	f.uploads = append(f.uploads, name)
	return "https://img.example/" + name, nil
}

func (f *fakeImages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

type harness struct {
	svc    *Service
	dir    *account.MemoryStore
	images *fakeImages
	clock  *atomic.Pointer[time.Time]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AccessTokenSecret = "access-secret-access-secret-0123456789"
	cfg.RefreshTokenSecret = "refresh-secret-refresh-secret-0123456789"
	return cfg
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1

	dir := account.NewMemoryStore()
	creds, err := credential.New(dir, pw, cfg.Digester())
	require.NoError(t, err)
	tokens, err := token.NewIssuer(cfg.IssuerConfig())
	require.NoError(t, err)

	clock := &atomic.Pointer[time.Time]{}
	start := time.Now().UTC()
	clock.Store(&start)

	images := &fakeImages{failNext: map[string]error{}}
	svc, err := NewService(cfg, dir, creds, tokens, images,
		WithClock(func() time.Time { return *clock.Load() }))
	require.NoError(t, err)

	return &harness{svc: svc, dir: dir, images: images, clock: clock}
}

func (h *harness) advance(d time.Duration) {
	next := h.clock.Load().Add(d)
	h.clock.Store(&next)
}

func stageFile(t *testing.T, name string) *media.FileRef {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("img"), 0o600))
	return &media.FileRef{Path: p, Filename: name}
}

func (h *harness) register(t *testing.T, username, email string) account.Account {
	t.Helper()
	acc, err := h.svc.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    email,
		FullName: "Test User",
		Password: "s3cret-pass",
		Files:    Upload{Avatar: stageFile(t, username+"-avatar.png")},
	})
	require.NoError(t, err)
	return acc
}

func (h *harness) login(t *testing.T, username string) LoginResult {
	t.Helper()
	res, err := h.svc.Login(context.Background(), LoginInput{Username: username, Password: "s3cret-pass"})
	require.NoError(t, err)
	return res
}

func TestRegister_CreatesRetrievableAccount(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	acc, err := h.svc.Register(ctx, RegisterInput{
		Username: "  Alice ",
		Email:    "Alice@Example.com",
		FullName: " Alice A ",
		Password: "s3cret-pass",
		Files:    Upload{Avatar: stageFile(t, "a.png"), Cover: stageFile(t, "c.png")},
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", acc.Username)
	assert.Equal(t, "alice@example.com", acc.Email)
	assert.Equal(t, "Alice A", acc.FullName)
	assert.Equal(t, "https://img.example/a.png", acc.AvatarURL)
	assert.Equal(t, "https://img.example/c.png", acc.CoverImageURL)
	assert.False(t, acc.HasRefreshToken())

	got, err := h.dir.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", got.PasswordHash)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "PasswordHash")
	assert.NotContains(t, string(raw), "RefreshTokenDigest")
	assert.NotContains(t, string(raw), got.PasswordHash)
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	base := RegisterInput{Username: "bob", Email: "bob@example.com", FullName: "Bob", Password: "s3cret-pass"}

	cases := map[string]func(in *RegisterInput){
		"blank username":  func(in *RegisterInput) { in.Username = "   " },
		"blank email":     func(in *RegisterInput) { in.Email = "" },
		"blank full name": func(in *RegisterInput) { in.FullName = " " },
		"blank password":  func(in *RegisterInput) { in.Password = "  " },
		"short password":  func(in *RegisterInput) { in.Password = "short" },
		"no avatar":       func(in *RegisterInput) { in.Files.Avatar = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			in.Files = Upload{Avatar: stageFile(t, "v.png")}
			mutate(&in)
			_, err := h.svc.Register(context.Background(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, kind.ErrValidation)
		})
	}
	assert.Zero(t, h.images.count(), "nothing may be uploaded for invalid input")
}

func TestRegister_Conflicts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.register(t, "carol", "carol@example.com")
	before := h.images.count()

	_, err := h.svc.Register(context.Background(), RegisterInput{
		Username: "someone", Email: "CAROL@example.com", FullName: "X", Password: "s3cret-pass",
		Files: Upload{Avatar: stageFile(t, "x.png")},
	})
	assert.ErrorIs(t, err, kind.ErrConflict)

	_, err = h.svc.Register(context.Background(), RegisterInput{
		Username: "Carol", Email: "other@example.com", FullName: "X", Password: "s3cret-pass",
		Files: Upload{Avatar: stageFile(t, "y.png")},
	})
	assert.ErrorIs(t, err, kind.ErrConflict)
	assert.Equal(t, before, h.images.count(), "conflict must be detected before uploading")
}

func TestRegister_UploadFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.images.failNext["bad-avatar.png"] = errors.New("image host down")
	h.images.failNext["bad-cover.png"] = errors.New("image host down")

	_, err := h.svc.Register(context.Background(), RegisterInput{
		Username: "dave", Email: "dave@example.com", FullName: "Dave", Password: "s3cret-pass",
		Files: Upload{Avatar: stageFile(t, "bad-avatar.png")},
	})
	assert.ErrorIs(t, err, kind.ErrInternal)
	_, err = h.dir.GetByUsername(context.Background(), "dave")
	assert.True(t, account.IsNotFound(err), "no account without avatar")

	acc, err := h.svc.Register(context.Background(), RegisterInput{
		Username: "dave", Email: "dave@example.com", FullName: "Dave", Password: "s3cret-pass",
		Files: Upload{Avatar: stageFile(t, "ok.png"), Cover: stageFile(t, "bad-cover.png")},
	})
	require.NoError(t, err)
	assert.Empty(t, acc.CoverImageURL)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	acc := h.register(t, "erin", "erin@example.com")
	ctx := context.Background()

	res, err := h.svc.Login(ctx, LoginInput{Email: " ERIN@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, acc.ID, res.Account.ID)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	assert.NotEmpty(t, res.Tokens.RefreshToken)
	assert.Empty(t, res.Account.RefreshTokenDigest)

	stored, err := h.dir.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasRefreshToken())

	cases := []struct {
		name string
		in   LoginInput
		want error
	}{
		{"no identifier", LoginInput{Password: "x"}, kind.ErrValidation},
		{"no password", LoginInput{Username: "erin"}, kind.ErrValidation},
		{"unknown user", LoginInput{Username: "nobody", Password: "s3cret-pass"}, kind.ErrNotFound},
		{"wrong password", LoginInput{Username: "erin", Password: "wrong-pass"}, kind.ErrUnauthorized},
	}
	for _, tc := range cases {
		_, err := h.svc.Login(ctx, tc.in)
		assert.ErrorIs(t, err, tc.want, tc.name)
	}
}

func TestLogin_UsernameFallsBackToEmail(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.register(t, "frank", "frank@example.com")

	_, err := h.svc.Login(context.Background(), LoginInput{Username: "ghost", Email: "frank@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
}

func TestLogin_UpgradesLegacyHash(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	legacy, err := bcrypt.GenerateFromPassword([]byte("mongo-era-pw"), bcrypt.MinCost)
	require.NoError(t, err)
	acc, err := h.dir.Create(ctx, account.CreateInput{
		Username: "legacy", Email: "legacy@example.com", FullName: "L", PasswordHash: string(legacy),
	})
	require.NoError(t, err)

	_, err = h.svc.Login(ctx, LoginInput{Username: "legacy", Password: "mongo-era-pw"})
	require.NoError(t, err)

	got, err := h.dir.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Contains(t, got.PasswordHash, "$argon2id$")

	_, err = h.svc.Login(ctx, LoginInput{Username: "legacy", Password: "mongo-era-pw"})
	require.NoError(t, err)
}

func TestRefresh_RotatesAndRejectsOldToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.register(t, "grace", "grace@example.com")
	first := h.login(t, "grace")
	ctx := context.Background()

	second, err := h.svc.Refresh(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.Tokens.RefreshToken, second.RefreshToken)

	_, err = h.svc.Refresh(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, kind.ErrForbidden)

	third, err := h.svc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, third.AccessToken)
}

func TestRefresh_Failures(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.register(t, "heidi", "heidi@example.com")
	res := h.login(t, "heidi")
	ctx := context.Background()

	_, err := h.svc.Refresh(ctx, "  ")
	assert.ErrorIs(t, err, kind.ErrUnauthorized)

	_, err = h.svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, kind.ErrForbidden)
	assert.ErrorIs(t, err, token.ErrMalformed)

	_, err = h.svc.Refresh(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, kind.ErrForbidden)
	assert.ErrorIs(t, err, token.ErrInvalidSignature)

	h.advance(11 * 24 * time.Hour)
	_, err = h.svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, kind.ErrForbidden)
	assert.ErrorIs(t, err, token.ErrExpired)
}

func TestLogin_InvalidatesPreviousRefreshToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.register(t, "ivan", "ivan@example.com")
	first := h.login(t, "ivan")
	second := h.login(t, "ivan")

	_, err := h.svc.Refresh(context.Background(), first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, kind.ErrForbidden)
	_, err = h.svc.Refresh(context.Background(), second.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	acc := h.register(t, "judy", "judy@example.com")
	res := h.login(t, "judy")
	ctx := context.Background()

	require.NoError(t, h.svc.Logout(ctx, acc.ID))
	require.NoError(t, h.svc.Logout(ctx, acc.ID), "logout must be idempotent")

	_, err := h.svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, kind.ErrForbidden)

	assert.ErrorIs(t, h.svc.Logout(ctx, "missing"), kind.ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	acc := h.register(t, "mallory", "mallory@example.com")
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.ChangePassword(ctx, acc.ID, "", "x"), kind.ErrValidation)
	assert.ErrorIs(t, h.svc.ChangePassword(ctx, acc.ID, "wrong-pass", "new-s3cret-pass"), kind.ErrUnauthorized)
	assert.ErrorIs(t, h.svc.ChangePassword(ctx, "missing", "s3cret-pass", "new-s3cret-pass"), kind.ErrNotFound)
	assert.ErrorIs(t, h.svc.ChangePassword(ctx, acc.ID, "s3cret-pass", "short"), kind.ErrValidation)

	require.NoError(t, h.svc.ChangePassword(ctx, acc.ID, "s3cret-pass", "new-s3cret-pass"))

	_, err := h.svc.Login(ctx, LoginInput{Username: "mallory", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, kind.ErrUnauthorized)
	_, err = h.svc.Login(ctx, LoginInput{Username: "mallory", Password: "new-s3cret-pass"})
	assert.NoError(t, err)
}

func TestChangePassword_RefreshSurvivesByDefault(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	acc := h.register(t, "nina", "nina@example.com")
	res := h.login(t, "nina")

	require.NoError(t, h.svc.ChangePassword(context.Background(), acc.ID, "s3cret-pass", "new-s3cret-pass"))
	_, err := h.svc.Refresh(context.Background(), res.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestChangePassword_RevokesWhenConfigured(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(c *Config) { c.RevokeOnPasswordChange = true })
	acc := h.register(t, "oscar", "oscar@example.com")
	res := h.login(t, "oscar")

	require.NoError(t, h.svc.ChangePassword(context.Background(), acc.ID, "s3cret-pass", "new-s3cret-pass"))
	_, err := h.svc.Refresh(context.Background(), res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, kind.ErrForbidden)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	acc := h.register(t, "peggy", "peggy@example.com")
	res := h.login(t, "peggy")
	ctx := context.Background()

	got, err := h.svc.Authenticate(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	_, err = h.svc.Authenticate(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, kind.ErrUnauthorized)

	_, err = h.svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, kind.ErrUnauthorized)

	h.advance(16 * time.Minute)
	_, err = h.svc.Authenticate(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, kind.ErrUnauthorized)
	assert.ErrorIs(t, err, token.ErrExpired)
}

func TestRefresh_ConcurrentSameTokenHasOneWinner(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.register(t, "trent", "trent@example.com")
	res := h.login(t, "trent")

	const n = 10
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		forbidden atomic.Int32
		winner    atomic.Pointer[TokenPair]
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pair, err := h.svc.Refresh(context.Background(), res.Tokens.RefreshToken)
			switch {
			case err == nil:
				wins.Add(1)
				winner.Store(&pair)
			case errors.Is(err, kind.ErrForbidden):
				forbidden.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), forbidden.Load())

	// Only the winner's token is live.
	_, err := h.svc.Refresh(context.Background(), winner.Load().RefreshToken)
	assert.NoError(t, err)
}

func TestNewService_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewService(testConfig(), nil, nil, nil, nil)
	assert.Error(t, err)
}
