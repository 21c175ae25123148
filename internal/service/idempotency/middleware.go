// Package idempotency защищает формы корзины и оформления от повторной отправки.
package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// HeaderKey: заголовок с ключом повторной отправки.
const HeaderKey = "Idempotency-Key"

// DefaultTTL: сколько хранится ответ на форму.
const DefaultTTL = 24 * time.Hour

const maxBodyBytes = 1 << 20

const (
	headerSessionToken = "X-Session-Token"
	sessionCookie      = "commerce_session"
)

// storedResponse: то, что отдаётся при повторе запроса.
// Сессионные заголовки сохраняются: первая запись в корзину и вход выдают новый токен.
type storedResponse struct {
	Location     string   `json:"location,omitempty"`
	ContentType  string   `json:"content_type,omitempty"`
	SetCookie    []string `json:"set_cookie,omitempty"`
	SessionToken string   `json:"session_token,omitempty"`
	Body         []byte   `json:"body,omitempty"`
}

// Middleware запоминает ответ на запрос с Idempotency-Key и повторяет его.
type Middleware struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

func NewMiddleware(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Middleware {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency")
	}
	return &Middleware{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handler оборачивает next. Запросы без ключа проходят как есть.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderKey)
		if m.repo == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		hash, err := requestHash(r)
		if err != nil {
			http.Error(w, "request body is too large", http.StatusRequestEntityTooLarge)
			return
		}

		ctx := r.Context()
		record, err := m.repo.CreateProcessing(ctx, key, hash, m.now().Add(m.ttl))
		if err != nil {
			m.replay(w, key, record, err)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		var body bytes.Buffer
		ww.Tee(&body)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		stored, err := json.Marshal(storedResponse{
			Location:     ww.Header().Get("Location"),
			ContentType:  ww.Header().Get("Content-Type"),
			SetCookie:    ww.Header().Values("Set-Cookie"),
			SessionToken: ww.Header().Get(headerSessionToken),
			Body:         body.Bytes(),
		})
		if err != nil {
			m.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotent response")
			return
		}

		mark := m.repo.MarkDone
		if status >= http.StatusInternalServerError {
			mark = m.repo.MarkFailed
		}
		if err := mark(ctx, key, stored, status); err != nil {
			m.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		}
	})
}

func (m *Middleware) replay(w http.ResponseWriter, key string, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		http.Error(w, "idempotency key is already used with a different request", http.StatusUnprocessableEntity)
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Replayable() {
			http.Error(w, "request with the same idempotency key is already processing", http.StatusConflict)
			return
		}
		var stored storedResponse
		if err := json.Unmarshal(record.ResponseBody, &stored); err != nil {
			m.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to decode cached idempotent response")
			http.Error(w, "failed to replay response", http.StatusInternalServerError)
			return
		}
		if stored.Location != "" {
			w.Header().Set("Location", stored.Location)
		}
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		for _, c := range stored.SetCookie {
			w.Header().Add("Set-Cookie", c)
		}
		if stored.SessionToken != "" {
			w.Header().Set(headerSessionToken, stored.SessionToken)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(record.HTTPStatus)
		_, _ = w.Write(stored.Body)
	default:
		m.logger.WithError(createErr).WithField("idempotency_key", key).Warn("failed to create idempotency record")
		http.Error(w, "failed to initialize idempotent request", http.StatusInternalServerError)
	}
}

// requestHash привязывает ключ к методу, пути, сессии и телу формы.
// Тело читается целиком и возвращается в запрос.
func requestHash(r *http.Request) (string, error) {
	var body []byte
	if r.Body != nil {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			return "", err
		}
		if len(data) > maxBodyBytes {
			return "", errors.New("body too large")
		}
		body = data
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get(headerSessionToken)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		h.Write([]byte(c.Value))
	}
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}
