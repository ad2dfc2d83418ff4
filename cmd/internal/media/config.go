package media

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config selects and configures the image store backend.
type Config struct {
	// Backend is "local" (default) or "s3".
	Backend string

	LocalDir     string
	LocalBaseURL string

	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3PathStyle     bool
	S3PublicBaseURL string

	UploadTimeout time.Duration
}

// LoadConfigFromEnv reads VIDTUBE_MEDIA_* variables.
func LoadConfigFromEnv() Config {
	return Config{
		Backend:         strings.ToLower(envString("VIDTUBE_MEDIA_BACKEND", "local")),
		LocalDir:        envString("VIDTUBE_MEDIA_LOCAL_DIR", "./data/media"),
		LocalBaseURL:    envString("VIDTUBE_MEDIA_LOCAL_BASE_URL", "/media"),
		S3Bucket:        envString("VIDTUBE_MEDIA_S3_BUCKET", ""),
		S3Region:        envString("VIDTUBE_MEDIA_S3_REGION", "us-east-1"),
		S3Endpoint:      envString("VIDTUBE_MEDIA_S3_ENDPOINT", ""),
		S3AccessKey:     envString("VIDTUBE_MEDIA_S3_ACCESS_KEY", ""),
		S3SecretKey:     envString("VIDTUBE_MEDIA_S3_SECRET_KEY", ""),
		S3PathStyle:     envBool("VIDTUBE_MEDIA_S3_PATH_STYLE", false),
		S3PublicBaseURL: envString("VIDTUBE_MEDIA_S3_PUBLIC_BASE_URL", ""),
		UploadTimeout:   envDuration("VIDTUBE_MEDIA_UPLOAD_TIMEOUT", 30*time.Second),
	}
}

// New returns the Store selected by cfg.Backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.LocalDir, cfg.LocalBaseURL)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("media: unknown backend %q", cfg.Backend)
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
