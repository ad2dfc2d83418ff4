package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidtube/cmd/account"
	"vidtube/cmd/internal/auth/session"
	"vidtube/cmd/internal/media"
	"vidtube/cmd/security/password"
	"vidtube/cmd/security/token"
)

func TestBackendFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: backendMemory},
		{in: "postgres://u:p@localhost:5432/vidtube", want: backendPostgres},
		{in: "postgresql://localhost/vidtube", want: backendPostgres},
		{in: "mongodb://localhost:27017", want: backendMongo},
		{in: "MONGODB+SRV://cluster.example.net", want: backendMongo},
		{in: "mysql://localhost", wantErr: true},
	}

	for _, tc := range cases {
		got, err := backendFor(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("backendFor(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("backendFor(%q)=%q,%v want=%q", tc.in, got, err, tc.want)
		}
	}
}

func TestOpenDirectory_Memory(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.DiscardHandler)
	d, err := openDirectory(context.Background(), Config{StoreTimeout: 0}, log)
	if err != nil {
		t.Fatalf("openDirectory: %v", err)
	}
	if d.backend != backendMemory {
		t.Fatalf("backend=%q want=%q", d.backend, backendMemory)
	}
	if err := d.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	if err := ValidateSecurityConfig(Config{}); err != nil {
		t.Fatalf("policy off: %v", err)
	}

	t.Setenv(token.HMACEnvKey, "")
	err := ValidateSecurityConfig(Config{RequireTokenHMAC: true})
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("missing key: err=%v", err)
	}

	t.Setenv(token.HMACEnvKey, "too-short")
	err = ValidateSecurityConfig(Config{RequireTokenHMAC: true})
	if err == nil || !strings.Contains(err.Error(), "too short") {
		t.Fatalf("short key: err=%v", err)
	}

	t.Setenv(token.HMACEnvKey, strings.Repeat("k", 32))
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err != nil {
		t.Fatalf("valid key: %v", err)
	}
}

func newTestApp(t *testing.T, cfg Config) (*App, string) {
	t.Helper()

	sessCfg := session.DefaultConfig()
	sessCfg.AccessTokenSecret = "access-secret-access-secret-0123456789"
	sessCfg.RefreshTokenSecret = "refresh-secret-refresh-secret-0123456789"
	tokens, err := token.NewIssuer(sessCfg.IssuerConfig())
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1

	mediaDir := t.TempDir()
	mediaCfg := media.Config{Backend: "local", LocalDir: mediaDir, LocalBaseURL: "/media"}
	images, err := media.NewLocalStore(mediaDir, mediaCfg.LocalBaseURL)
	if err != nil {
		t.Fatalf("media: %v", err)
	}

	dir := directory{Directory: account.NewMemoryStore(), backend: backendMemory}
	log := slog.New(slog.DiscardHandler)
	a, err := build(cfg, log, dir, sessCfg, pw, tokens, mediaCfg, images)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return a, mediaDir
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestApp_HealthAndReadiness(t *testing.T) {
	a, _ := newTestApp(t, Config{})
	h := a.Handler()

	rr := get(t, h, "/healthz")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers")
	}

	if rr := get(t, h, "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rr.Code)
	}

	strict, _ := newTestApp(t, Config{ReadinessRequireDB: true})
	if rr := get(t, strict.Handler(), "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with required db on memory backend: %d", rr.Code)
	}
}

func TestApp_MetricsExposeRequests(t *testing.T) {
	a, _ := newTestApp(t, Config{})
	h := a.Handler()

	_ = get(t, h, "/healthz")
	_ = get(t, h, "/api/v1/users/current-user")

	rr := get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{
		`vidtube_http_requests_total{method="GET",status_class="2xx"}`,
		`vidtube_http_requests_total{method="GET",status_class="4xx"}`,
		"vidtube_http_request_duration_seconds",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestApp_ServesLocalMedia(t *testing.T) {
	a, mediaDir := newTestApp(t, Config{})
	h := a.Handler()

	if err := os.WriteFile(filepath.Join(mediaDir, "avatar.png"), []byte("png-bytes"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	rr := get(t, h, "/media/avatar.png")
	if rr.Code != http.StatusOK || rr.Body.String() != "png-bytes" {
		t.Fatalf("media: %d %q", rr.Code, rr.Body.String())
	}

	if rr := get(t, h, "/media/"); rr.Code != http.StatusNotFound {
		t.Fatalf("directory listing should be hidden, got %d", rr.Code)
	}
}
