// Package media uploads profile images to an image store and returns their
// public URLs. Uploaded files are staged on local disk by the transport layer;
// a Store always removes the staged file once the attempt is over.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrEmptyPath is returned when Upload receives no file.
var ErrEmptyPath = errors.New("media: empty local path")

// Store persists a staged local file and returns its public URL.
type Store interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// FileRef points at a staged upload on local disk.
type FileRef struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

// objectKey builds "<prefix>/<yyyy>/<mm>/<ulid><ext>".
func objectKey(prefix, localPath string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(localPath))
	name := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String() + ext
	parts := []string{fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())), name}
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

// contentType guesses from the extension first, then sniffs the first 512 bytes.
func contentType(f *os.File) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name()))); ct != "" {
		return ct
	}
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	_, _ = f.Seek(0, 0)
	return http.DetectContentType(buf[:n])
}

func removeStaged(path string) {
	_ = os.Remove(path)
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

type timeoutStore struct {
	next Store
	d    time.Duration
}

// WithTimeout bounds every Upload on next by d. A non-positive d returns next.
func WithTimeout(next Store, d time.Duration) Store {
	if d <= 0 {
		return next
	}
	return timeoutStore{next: next, d: d}
}

func (s timeoutStore) Upload(ctx context.Context, localPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.next.Upload(ctx, localPath)
}
