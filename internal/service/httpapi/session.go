package httpapi

import (
	"net"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

const (
	// SessionCookie: cookie с токеном сессии.
	SessionCookie = "commerce_session"
	// HeaderSessionToken: тот же токен для API-клиентов без cookie.
	HeaderSessionToken = "X-Session-Token"
)

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get(HeaderSessionToken)
}

// actor строит актора запроса. Неизвестный токен даёт анонима.
func (h *Handler) actor(r *http.Request) (domain.Actor, error) {
	actor, err := h.sessions.Current(r.Context(), sessionToken(r))
	if err != nil {
		return domain.Actor{}, err
	}
	actor.IPAddress = clientIP(r)
	return actor, nil
}

// ensureSession выдаёт сессию анониму при первой записи в корзину.
func (h *Handler) ensureSession(w http.ResponseWriter, r *http.Request, actor domain.Actor) (domain.Actor, error) {
	before := actor.Session.Token
	actor, err := h.sessions.Ensure(r.Context(), actor)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Session.Token != before {
		h.setSession(w, actor.Session)
	}
	return actor, nil
}

func (h *Handler) setSession(w http.ResponseWriter, s domain.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(HeaderSessionToken, s.Token)
}

func (h *Handler) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// clientIP берёт адрес после middleware.RealIP, который уже учёл X-Forwarded-For.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
