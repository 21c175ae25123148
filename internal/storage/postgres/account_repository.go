package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type accountRepository struct {
	db *sql.DB
}

// NewAccountRepository хранит аккаунты с уникальным нормализованным email.
func NewAccountRepository(store *Store) domain.AccountRepository {
	return &accountRepository{db: store.DB()}
}

func (r *accountRepository) Create(ctx context.Context, account domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, active, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		account.ID, domain.NormalizeEmail(account.Email), account.PasswordHash, account.Active, account.CreatedAt,
	)
	if constraint, ok := uniqueViolation(err); ok && constraint == "accounts_email_uniq" {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *accountRepository) Get(ctx context.Context, id string) (domain.Account, error) {
	return r.getBy(ctx, "id", id)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	return r.getBy(ctx, "email", domain.NormalizeEmail(email))
}

func (r *accountRepository) getBy(ctx context.Context, column, value string) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var a domain.Account
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, active, created_at
		FROM accounts WHERE `+column+` = $1`, value,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Active, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("select account: %w", err)
	}
	return a, nil
}

var _ domain.AccountRepository = (*accountRepository)(nil)
