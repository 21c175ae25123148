package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type sessionRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Session
	now   func() time.Time
}

// NewSessionRepository создаёт in-memory хранилище сессий.
func NewSessionRepository() domain.SessionRepository {
	return &sessionRepositoryInMemory{
		items: make(map[string]domain.Session),
		now:   time.Now,
	}
}

func (r *sessionRepositoryInMemory) Get(_ context.Context, token string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.items[token]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(r.now()) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (r *sessionRepositoryInMemory) Save(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[session.Token] = session.Clone()
	return nil
}

func (r *sessionRepositoryInMemory) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, token)
	return nil
}

var _ domain.SessionRepository = (*sessionRepositoryInMemory)(nil)
