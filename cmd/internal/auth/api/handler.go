package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"vidtube/cmd/account"
	"vidtube/cmd/internal/auth/session"
	"vidtube/cmd/internal/kind"
	"vidtube/cmd/internal/media"
	"vidtube/cmd/internal/profile"
)

// Handler wires the /api/v1/users routes to the session and profile services.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions *session.Service
	profiles *profile.Service

	reg   prometheus.Registerer
	audit *auditor
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithRegisterer sets where the auth event counter is registered.
// Without it the counter is kept but not exported.
func WithRegisterer(reg prometheus.Registerer) HandlerOption {
	return func(h *Handler) {
		if h == nil || reg == nil {
			return
		}
		h.reg = reg
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, profiles *profile.Service, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil || profiles == nil {
		return nil, errors.New("authapi: nil service")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		profiles: profiles,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	a, err := newAuditor(log, h.reg)
	if err != nil {
		return nil, err
	}
	h.audit = a
	return h, nil
}

// Register wires the routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	const base = "/api/v1/users"

	mux.HandleFunc("POST "+base+"/register", h.handleRegister)
	mux.HandleFunc("POST "+base+"/login", h.handleLogin)
	mux.HandleFunc("POST "+base+"/refresh-token", h.handleRefresh)

	mux.Handle("POST "+base+"/logout", h.RequireAuth(http.HandlerFunc(h.handleLogout)))
	mux.Handle("POST "+base+"/change-password", h.RequireAuth(http.HandlerFunc(h.handleChangePassword)))
	mux.Handle("GET "+base+"/current-user", h.RequireAuth(http.HandlerFunc(h.handleCurrentUser)))
	mux.Handle("PATCH "+base+"/update-user", h.RequireAuth(http.HandlerFunc(h.handleUpdateDetails)))
	mux.Handle("PATCH "+base+"/avatar", h.RequireAuth(http.HandlerFunc(h.handleAvatar)))
	mux.Handle("PATCH "+base+"/cover-image", h.RequireAuth(http.HandlerFunc(h.handleCoverImage)))
	mux.Handle("GET "+base+"/channel-history/{username}", h.RequireAuth(http.HandlerFunc(h.handleChannelProfile)))
	mux.Handle("GET "+base+"/watch-history", h.RequireAuth(http.HandlerFunc(h.handleWatchHistory)))
}

type accountKey struct{}

// AccountFrom returns the account attached by RequireAuth.
func AccountFrom(ctx context.Context) (account.Account, bool) {
	acc, ok := ctx.Value(accountKey{}).(account.Account)
	return acc, ok
}

// RequireAuth rejects requests without a valid access token and attaches the
// caller's account to the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc, err := h.sessions.Authenticate(r.Context(), h.accessTokenFrom(r))
		if err != nil {
			writeFailure(w, r, h.log, err)
			return
		}
		ctx := context.WithValue(r.Context(), accountKey{}, acc.Sanitized())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	form, err := h.stageMultipart(w, r, "avatar", "coverImage")
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	defer form.cleanup()

	acc, err := h.sessions.Register(r.Context(), session.RegisterInput{
		Username: form.value("username"),
		Email:    form.value("email"),
		FullName: form.value("fullName"),
		Password: form.value("password"),
		Files: session.Upload{
			Avatar: form.file("avatar"),
			Cover:  form.file("coverImage"),
		},
	})
	ip := clientIP(r, h.cfg.TrustProxy)
	if err != nil {
		h.audit.record(r.Context(), "register", kind.Of(err).Error(), ip)
		writeFailure(w, r, h.log, err)
		return
	}
	h.audit.record(r.Context(), "register", "success", ip, slog.String("account_id", acc.ID))

	writeData(w, http.StatusCreated, toUserResponse(acc), "User registered successfully")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, kind.ErrValidation.Error(), "invalid request body")
		return
	}

	res, err := h.sessions.Login(r.Context(), session.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	ip := clientIP(r, h.cfg.TrustProxy)
	if err != nil {
		h.audit.record(r.Context(), "login", kind.Of(err).Error(), ip)
		writeFailure(w, r, h.log, err)
		return
	}
	h.audit.record(r.Context(), "login", "success", ip, slog.String("account_id", res.Account.ID))

	h.setSessionCookies(w, res.Tokens)
	writeData(w, http.StatusOK, loginResponse{
		User:         toUserResponse(res.Account),
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	}, "User logged in successfully")
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	presented := h.refreshTokenFrom(r)
	if presented == "" && r.Body != nil && r.ContentLength != 0 {
		var req refreshRequest
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, kind.ErrValidation.Error(), "invalid request body")
			return
		}
		presented = strings.TrimSpace(req.RefreshToken)
	}

	pair, err := h.sessions.Refresh(r.Context(), presented)
	ip := clientIP(r, h.cfg.TrustProxy)
	if err != nil {
		h.audit.record(r.Context(), "refresh", kind.Of(err).Error(), ip)
		writeFailure(w, r, h.log, err)
		return
	}
	h.audit.record(r.Context(), "refresh", "success", ip)

	h.setSessionCookies(w, pair)
	writeData(w, http.StatusOK, tokensResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "Access token refreshed")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	acc, _ := AccountFrom(r.Context())
	if err := h.sessions.Logout(r.Context(), acc.ID); err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	h.audit.record(r.Context(), "logout", "success", clientIP(r, h.cfg.TrustProxy), slog.String("account_id", acc.ID))

	h.clearSessionCookies(w)
	writeData(w, http.StatusOK, nil, "User logged out")
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, kind.ErrValidation.Error(), "invalid request body")
		return
	}

	acc, _ := AccountFrom(r.Context())
	err := h.sessions.ChangePassword(r.Context(), acc.ID, req.OldPassword, req.NewPassword)
	ip := clientIP(r, h.cfg.TrustProxy)
	if err != nil {
		h.audit.record(r.Context(), "change_password", kind.Of(err).Error(), ip, slog.String("account_id", acc.ID))
		writeFailure(w, r, h.log, err)
		return
	}
	h.audit.record(r.Context(), "change_password", "success", ip, slog.String("account_id", acc.ID))

	writeData(w, http.StatusOK, nil, "Password changed successfully")
}

func (h *Handler) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	acc, _ := AccountFrom(r.Context())
	writeData(w, http.StatusOK, toUserResponse(acc), "Current user fetched successfully")
}

func (h *Handler) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req updateDetailsRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, kind.ErrValidation.Error(), "invalid request body")
		return
	}

	caller, _ := AccountFrom(r.Context())
	acc, err := h.profiles.UpdateDetails(r.Context(), caller.ID, req.FullName, req.Email)
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, toUserResponse(acc), "Account details updated successfully")
}

func (h *Handler) handleAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "avatar", h.profiles.UpdateAvatar, "Avatar image updated successfully")
}

func (h *Handler) handleCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "coverImage", h.profiles.UpdateCover, "Cover image updated successfully")
}

type imageUpdate func(context.Context, string, *media.FileRef) (account.Account, error)

func (h *Handler) replaceImage(w http.ResponseWriter, r *http.Request, field string, update imageUpdate, msg string) {
	form, err := h.stageMultipart(w, r, field)
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	defer form.cleanup()

	caller, _ := AccountFrom(r.Context())
	acc, err := update(r.Context(), caller.ID, form.file(field))
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, toUserResponse(acc), msg)
}

func (h *Handler) handleChannelProfile(w http.ResponseWriter, r *http.Request) {
	caller, _ := AccountFrom(r.Context())
	p, err := h.profiles.ChannelProfile(r.Context(), r.PathValue("username"), caller.ID)
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, toChannelResponse(p), "User channel fetched successfully")
}

func (h *Handler) handleWatchHistory(w http.ResponseWriter, r *http.Request) {
	caller, _ := AccountFrom(r.Context())
	items, err := h.profiles.WatchHistory(r.Context(), caller.ID)
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, toWatchHistoryResponse(items), "Watch history fetched successfully")
}
