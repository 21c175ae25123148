// Package session выдаёт токены сессий и строит актора запроса.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// DefaultTTL: время жизни сессии без активности.
const DefaultTTL = 14 * 24 * time.Hour

// Manager работает с сессиями покупателей.
type Manager struct {
	sessions domain.SessionRepository
	accounts domain.AccountRepository
	ttl      time.Duration
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Manager.
type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager создаёт менеджер сессий.
func NewManager(sessions domain.SessionRepository, accounts domain.AccountRepository, opts ...Option) *Manager {
	m := &Manager{
		sessions: sessions,
		accounts: accounts,
		ttl:      DefaultTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.WithField("component", "session-manager")
	}
	return m
}

// Current возвращает актора по токену. Неизвестный или просроченный токен даёт
// анонима без сессии: токен выдаётся только сервером через Ensure.
func (m *Manager) Current(ctx context.Context, token string) (domain.Actor, error) {
	if token == "" {
		return domain.AnonymousActor(domain.Session{}), nil
	}

	session, err := m.sessions.Get(ctx, token)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.AnonymousActor(domain.Session{}), nil
	}
	if err != nil {
		return domain.Actor{}, fmt.Errorf("load session: %w", err)
	}
	return m.actorFor(ctx, session)
}

// Ensure гарантирует, что у актора есть сохранённая сессия.
func (m *Manager) Ensure(ctx context.Context, actor domain.Actor) (domain.Actor, error) {
	if actor.Session.Token != "" {
		return actor, nil
	}

	now := m.now()
	session := domain.Session{
		Token:     newToken(),
		AccountID: actor.AccountID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.sessions.Save(ctx, session); err != nil {
		return domain.Actor{}, fmt.Errorf("save session: %w", err)
	}
	actor.Session = session
	return actor, nil
}

// Login привязывает аккаунт к сессии. Токен меняется, корзины и оформленные
// заказы переезжают в новую сессию.
func (m *Manager) Login(ctx context.Context, token, accountID string) (domain.Actor, error) {
	account, err := m.accounts.Get(ctx, accountID)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("load account: %w", err)
	}

	previous := domain.Session{}
	if token != "" {
		previous, err = m.sessions.Get(ctx, token)
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return domain.Actor{}, fmt.Errorf("load session: %w", err)
		}
	}

	now := m.now()
	session := previous.Clone()
	session.Token = newToken()
	session.AccountID = account.ID
	session.CreatedAt = now
	session.ExpiresAt = now.Add(m.ttl)
	if err := m.sessions.Save(ctx, session); err != nil {
		return domain.Actor{}, fmt.Errorf("save session: %w", err)
	}
	if token != "" {
		if err := m.sessions.Delete(ctx, token); err != nil {
			m.logger.WithError(err).Warn("failed to drop previous session")
		}
	}

	m.logger.WithField("account_id", account.ID).Info("account logged in")
	return authenticatedActor(account, session), nil
}

// Logout удаляет сессию.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Save сохраняет изменённую сессию актора, продлевая срок жизни.
func (m *Manager) Save(ctx context.Context, session domain.Session) error {
	if session.Token == "" {
		return domain.ErrSessionNotFound
	}
	session.ExpiresAt = m.now().Add(m.ttl)
	return m.sessions.Save(ctx, session)
}

func (m *Manager) actorFor(ctx context.Context, session domain.Session) (domain.Actor, error) {
	if session.AccountID == "" {
		return domain.AnonymousActor(session), nil
	}

	account, err := m.accounts.Get(ctx, session.AccountID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		m.logger.WithField("account_id", session.AccountID).Warn("session points to missing account")
		session.AccountID = ""
		return domain.AnonymousActor(session), nil
	}
	if err != nil {
		return domain.Actor{}, fmt.Errorf("load account: %w", err)
	}
	if !account.Active {
		session.AccountID = ""
		return domain.AnonymousActor(session), nil
	}
	return authenticatedActor(account, session), nil
}

func authenticatedActor(account domain.Account, session domain.Session) domain.Actor {
	return domain.Actor{
		AccountID: account.ID,
		Email:     account.Email,
		Roles:     []string{domain.RoleAuthenticated},
		Session:   session,
	}
}

func newToken() string {
	return uuid.NewString()
}
