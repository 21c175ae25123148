package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type accountRepositoryInMemory struct {
	mu      sync.RWMutex
	byID    map[string]domain.Account
	byEmail map[string]string
}

// NewAccountRepository создаёт in-memory реализацию AccountRepository.
func NewAccountRepository() domain.AccountRepository {
	return &accountRepositoryInMemory{
		byID:    make(map[string]domain.Account),
		byEmail: make(map[string]string),
	}
}

func (r *accountRepositoryInMemory) Create(_ context.Context, account domain.Account) error {
	email := domain.NormalizeEmail(account.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[email]; taken {
		return domain.ErrEmailTaken
	}
	r.byID[account.ID] = account
	r.byEmail[email] = account.ID
	return nil
}

func (r *accountRepositoryInMemory) Get(_ context.Context, id string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byID[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account, nil
}

func (r *accountRepositoryInMemory) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return r.byID[id], nil
}

var _ domain.AccountRepository = (*accountRepositoryInMemory)(nil)
