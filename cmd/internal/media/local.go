package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore copies uploads into Dir; files are expected to be served at BaseURL.
type LocalStore struct {
	dir     string
	baseURL string
	prefix  string
	now     func() time.Time
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("media: empty local dir")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("media: create dir: %w", err)
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "/media"
	}
	return &LocalStore{dir: dir, baseURL: baseURL, prefix: "images", now: time.Now}, nil
}

// Dir returns the root directory of stored files.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Upload(ctx context.Context, localPath string) (string, error) {
	if strings.TrimSpace(localPath) == "" {
		return "", ErrEmptyPath
	}
	defer removeStaged(localPath)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := os.Open(localPath) // #nosec G304 -- path comes from our own staging dir.
	if err != nil {
		return "", fmt.Errorf("media: open staged file: %w", err)
	}
	defer src.Close()

	key := objectKey(s.prefix, localPath, s.now().UTC())
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("media: create dir: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) // #nosec G304
	if err != nil {
		return "", fmt.Errorf("media: create file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("media: copy: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("media: close: %w", err)
	}
	return joinURL(s.baseURL, key), nil
}
