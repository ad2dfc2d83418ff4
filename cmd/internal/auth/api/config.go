package authapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config controls the HTTP adapter: cookie transport, body limits and upload staging.
type Config struct {
	AccessCookieName  string
	RefreshCookieName string
	RefreshHeaderName string

	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
	// CookieSessionOnly omits Expires/Max-Age so cookies end with the browser session.
	CookieSessionOnly bool

	TrustProxy bool

	MaxBodyBytes   int64
	MaxUploadBytes int64
	// UploadDir stages multipart files until the image store takes them.
	UploadDir string
}

// DefaultConfig returns secure defaults.
func DefaultConfig() Config {
	return Config{
		AccessCookieName:  "accessToken",
		RefreshCookieName: "refreshToken",
		RefreshHeaderName: "X-Refresh-Token",
		CookiePath:        "/",
		CookieSecure:      true,
		CookieSameSite:    http.SameSiteLaxMode,
		MaxBodyBytes:      1 << 20,  // 1 MiB
		MaxUploadBytes:    10 << 20, // 10 MiB
		UploadDir:         filepath.Join(os.TempDir(), "vidtube-uploads"),
	}
}

// LoadConfigFromEnv loads adapter config from environment variables on top of DefaultConfig.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		AccessCookieName:  envString("VIDTUBE_AUTH_ACCESS_COOKIE_NAME", def.AccessCookieName),
		RefreshCookieName: envString("VIDTUBE_AUTH_REFRESH_COOKIE_NAME", def.RefreshCookieName),
		RefreshHeaderName: envString("VIDTUBE_AUTH_REFRESH_HEADER_NAME", def.RefreshHeaderName),
		CookiePath:        envString("VIDTUBE_AUTH_COOKIE_PATH", def.CookiePath),
		CookieDomain:      envString("VIDTUBE_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:      envBool("VIDTUBE_AUTH_COOKIE_SECURE", def.CookieSecure),
		CookieSameSite:    parseSameSite(envString("VIDTUBE_AUTH_COOKIE_SAMESITE", "lax")),
		CookieSessionOnly: envBool("VIDTUBE_COOKIE_SESSION_ONLY", false),
		TrustProxy:        envBool("VIDTUBE_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:      envInt64("VIDTUBE_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		MaxUploadBytes:    envInt64("VIDTUBE_AUTH_MAX_UPLOAD_BYTES", def.MaxUploadBytes),
		UploadDir:         envString("VIDTUBE_AUTH_UPLOAD_DIR", def.UploadDir),
	}

	// Browsers drop SameSite=None cookies without Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	if cfg.AccessCookieName == cfg.RefreshCookieName {
		cfg.AccessCookieName = def.AccessCookieName
		cfg.RefreshCookieName = def.RefreshCookieName
	}
	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
