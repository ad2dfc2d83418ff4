package app

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	authapi "vidtube/cmd/internal/auth/api"
)

// routes carries what registerHTTP mounts.
type routes struct {
	dir      directory
	registry *prometheus.Registry
	auth     *authapi.Handler

	// mediaDir and mediaPrefix are set when images are stored on local disk.
	mediaDir    string
	mediaPrefix string
}

func registerHTTP(mux *http.ServeMux, log Logger, cfg Config, rt routes) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && rt.dir.backend == backendMemory {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if rt.dir.Directory != nil {
			if err := pingDirectory(r.Context(), rt.dir, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "backend", rt.dir.backend, "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.registry != nil {
		mux.Handle("GET /metrics", metricsHandler(rt.registry))
	}

	if rt.mediaDir != "" {
		prefix := "/" + strings.Trim(rt.mediaPrefix, "/") + "/"
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(noListing{http.Dir(rt.mediaDir)})))
	}

	if rt.auth != nil {
		rt.auth.Register(mux)
	}
}

// noListing hides directory indexes from the media file server.
type noListing struct{ fs http.FileSystem }

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
