// Package app wires the vidtube server runtime: config, logging, the account
// directory, image storage, HTTP routes and metrics.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	authapi "vidtube/cmd/internal/auth/api"
	"vidtube/cmd/internal/auth/credential"
	"vidtube/cmd/internal/auth/session"
	"vidtube/cmd/internal/media"
	"vidtube/cmd/internal/profile"
	"vidtube/cmd/security/password"
	"vidtube/cmd/security/token"
)

// App is the vidtube server runtime.
type App struct {
	cfg Config
	log Logger

	dir      directory
	registry *prometheus.Registry
	metrics  *httpMetrics
	handler  http.Handler
}

// New constructs a fully wired App from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	ctx := context.Background()

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewIssuer(sessCfg.IssuerConfig())
	if err != nil {
		return nil, err
	}

	mediaCfg := media.LoadConfigFromEnv()
	images, err := media.New(ctx, mediaCfg)
	if err != nil {
		return nil, err
	}

	dir, err := openDirectory(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := build(cfg, log, dir, sessCfg, pwCfg, tokens, mediaCfg, images)
	if err != nil {
		_ = dir.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func build(
	cfg Config,
	log Logger,
	dir directory,
	sessCfg session.Config,
	pwCfg password.Config,
	tokens *token.Issuer,
	mediaCfg media.Config,
	images media.Store,
) (*App, error) {
	if mediaCfg.UploadTimeout > 0 {
		images = media.WithTimeout(images, mediaCfg.UploadTimeout)
	}

	creds, err := credential.New(dir, pwCfg, sessCfg.Digester())
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewService(sessCfg, dir, creds, tokens, images,
		session.WithLogger(log.With(slog.String("component", "session"))))
	if err != nil {
		return nil, err
	}
	profiles, err := profile.NewService(dir, images,
		profile.WithLogger(log.With(slog.String("component", "profile"))))
	if err != nil {
		return nil, err
	}

	reg := newRegistry()
	auth, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), sessions, profiles, authapi.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	rt := routes{dir: dir, registry: reg, auth: auth}
	if mediaCfg.Backend == "" || mediaCfg.Backend == "local" {
		rt.mediaDir = mediaCfg.LocalDir
		rt.mediaPrefix = "/media"
		if u, err := url.Parse(mediaCfg.LocalBaseURL); err == nil && u.Path != "" {
			rt.mediaPrefix = u.Path
		}
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, rt)

	metrics := newHTTPMetrics(reg)

	var h http.Handler = mux
	h = WithSecurityHeaders(h)
	h = WithCORS(h, cfg, log)
	h = metrics.WithMetrics(h)
	h = WithRequestLogging(h, log)
	h = WithRequestID(h)

	log.Info("app.wired",
		"db_backend", dir.backend,
		"media_backend", mediaCfg.Backend,
		"token_digest_keyed", sessCfg.Digester().Keyed(),
	)

	return &App{
		cfg:      cfg,
		log:      log,
		dir:      dir,
		registry: reg,
		metrics:  metrics,
		handler:  h,
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 60*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_backend", a.dir.backend)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.dir.Close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.dir.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
