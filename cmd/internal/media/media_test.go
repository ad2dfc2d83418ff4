package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stage(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLocalStore_UploadCopiesAndRemovesStaged(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	st, err := NewLocalStore(root, "http://localhost:8080/media/")
	require.NoError(t, err)
	st.now = func() time.Time { return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC) }

	staged := stage(t, "Avatar.PNG", "png-bytes")
	url, err := st.Upload(context.Background(), staged)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/media/images/2026/10/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)

	rel := strings.TrimPrefix(url, "http://localhost:8080/media/")
	got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(got))

	_, err = os.Stat(staged)
	assert.True(t, errors.Is(err, os.ErrNotExist), "staged file must be removed")
}

func TestLocalStore_RemovesStagedOnFailure(t *testing.T) {
	t.Parallel()

	st, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)

	staged := stage(t, "a.jpg", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = st.Upload(ctx, staged)
	require.ErrorIs(t, err, context.Canceled)
	_, err = os.Stat(staged)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = st.Upload(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

type fakePut struct {
	mu    sync.Mutex
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakePut) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Upload(t *testing.T) {
	t.Parallel()

	fake := &fakePut{}
	st := newS3Store(fake, Config{S3Bucket: "avatars", S3Region: "eu-west-1"})

	url, err := st.Upload(context.Background(), stage(t, "me.png", "img"))
	require.NoError(t, err)

	require.NotNil(t, fake.input)
	assert.Equal(t, "avatars", *fake.input.Bucket)
	assert.Equal(t, "image/png", *fake.input.ContentType)
	assert.Equal(t, int64(3), *fake.input.ContentLength)
	assert.Equal(t, "img", fake.body)
	assert.Equal(t, "https://avatars.s3.eu-west-1.amazonaws.com/"+*fake.input.Key, url)
}

func TestS3Store_UploadError(t *testing.T) {
	t.Parallel()

	fake := &fakePut{err: errors.New("access denied")}
	st := newS3Store(fake, Config{S3Bucket: "b"})
	staged := stage(t, "x.png", "img")

	_, err := st.Upload(context.Background(), staged)
	require.Error(t, err)
	_, statErr := os.Stat(staged)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestS3Store_PublicURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{S3Bucket: "b", S3PublicBaseURL: "https://cdn.example/"}, "https://cdn.example/k.png"},
		{Config{S3Bucket: "b", S3Endpoint: "http://minio:9000/", S3PathStyle: true}, "http://minio:9000/b/k.png"},
		{Config{S3Bucket: "b", S3Region: "us-east-1"}, "https://b.s3.us-east-1.amazonaws.com/k.png"},
	}
	for _, tc := range cases {
		got := newS3Store(&fakePut{}, tc.cfg).publicURL("k.png")
		assert.Equal(t, tc.want, got)
	}
}

func TestS3Store_AgainstHTTPEndpoint(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		gotPath string
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath, gotBody = r.URL.Path, string(b)
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	st, err := NewS3Store(context.Background(), Config{
		S3Bucket:    "media",
		S3Region:    "us-east-1",
		S3Endpoint:  srv.URL,
		S3AccessKey: "minio",
		S3SecretKey: "minio-secret",
		S3PathStyle: true,
	})
	require.NoError(t, err)

	url, err := st.Upload(context.Background(), stage(t, "c.jpg", "jpeg-data"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(gotPath, "/media/images/"), gotPath)
	assert.Contains(t, gotBody, "jpeg-data")
	assert.Equal(t, srv.URL+gotPath, url)
}

func TestNew_SelectsBackend(t *testing.T) {
	t.Parallel()

	s, err := New(context.Background(), Config{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, s)

	_, err = New(context.Background(), Config{Backend: "ftp"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Backend: "s3"})
	assert.Error(t, err, "s3 without bucket must fail")
}

type blockingStore struct{}

func (blockingStore) Upload(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	_, err := WithTimeout(blockingStore{}, 10*time.Millisecond).Upload(context.Background(), "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
