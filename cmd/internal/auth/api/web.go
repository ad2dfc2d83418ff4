package authapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"vidtube/cmd/internal/auth/session"
)

// setSessionCookies writes both token cookies. Expiry follows the tokens
// unless the adapter is configured for session cookies.
func (h *Handler) setSessionCookies(w http.ResponseWriter, pair session.TokenPair) {
	h.setCookie(w, h.cfg.AccessCookieName, pair.AccessToken, pair.AccessExpiresAt)
	h.setCookie(w, h.cfg.RefreshCookieName, pair.RefreshToken, pair.RefreshExpiresAt)
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	h.expireCookie(w, h.cfg.AccessCookieName)
	h.expireCookie(w, h.cfg.RefreshCookieName)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, exp time.Time) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	}
	if !h.cfg.CookieSessionOnly && !exp.IsZero() {
		c.Expires = exp.UTC()
		c.MaxAge = max(int(time.Until(exp).Seconds()), 1)
	}
	http.SetCookie(w, c)
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

// accessTokenFrom prefers the cookie and falls back to the bearer header.
func (h *Handler) accessTokenFrom(r *http.Request) string {
	if v := cookieValue(r, h.cfg.AccessCookieName); v != "" {
		return v
	}
	return bearerToken(r)
}

// refreshTokenFrom checks the cookie, then the refresh header. The JSON body is
// read by the refresh handler itself.
func (h *Handler) refreshTokenFrom(r *http.Request) string {
	if v := cookieValue(r, h.cfg.RefreshCookieName); v != "" {
		return v
	}
	return strings.TrimSpace(r.Header.Get(h.cfg.RefreshHeaderName))
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	scheme, tok, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	for p := range strings.SplitSeq(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
