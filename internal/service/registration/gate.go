// Package registration создаёт аккаунты покупателей и проверяет пароли при оформлении заказа.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
)

// Gate регистрирует и аутентифицирует покупателей.
type Gate struct {
	accounts domain.AccountRepository
	validate *validator.Validate
	cost     int
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Gate.
type Option func(*Gate)

// WithCost задаёт стоимость bcrypt; в тестах используется bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(g *Gate) { g.cost = cost }
}

func WithLogger(logger *log.Entry) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate создаёт регистрацию поверх хранилища аккаунтов.
func NewGate(accounts domain.AccountRepository, opts ...Option) *Gate {
	g := &Gate{
		accounts: accounts,
		validate: validator.New(),
		cost:     bcrypt.DefaultCost,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.WithField("component", "registration-gate")
	}
	return g
}

// Register создаёт аккаунт. Проверки идут в фиксированном порядке, возвращается первая ошибка.
func (g *Gate) Register(ctx context.Context, email, password, passwordConfirm string) (accountID string, err error) {
	defer func() {
		if _, ok := domain.IsRegistrationError(err); ok || err == nil {
			g.metrics.RecordRegistration(err)
		}
	}()

	email = strings.TrimSpace(email)
	if email == "" {
		return "", &domain.RegistrationError{Kind: domain.RegistrationEmailMandatory}
	}
	if !g.ValidEmail(email) {
		return "", &domain.RegistrationError{Kind: domain.RegistrationInvalidEmailCharacters}
	}

	_, err = g.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return "", &domain.RegistrationError{Kind: domain.RegistrationEmailAlreadyRegistered}
	case !errors.Is(err, domain.ErrAccountNotFound):
		return "", fmt.Errorf("lookup account: %w", err)
	}

	if password == "" || passwordConfirm == "" {
		return "", &domain.RegistrationError{Kind: domain.RegistrationPasswordMandatory}
	}
	if password != passwordConfirm {
		return "", &domain.RegistrationError{Kind: domain.RegistrationPasswordMismatch}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        domain.NormalizeEmail(email),
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    g.now(),
	}
	if err := g.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			// Параллельная регистрация с тем же email.
			return "", &domain.RegistrationError{Kind: domain.RegistrationEmailAlreadyRegistered}
		}
		return "", fmt.Errorf("create account: %w", err)
	}

	g.logger.WithField("account_id", account.ID).Info("account registered")
	return account.ID, nil
}

// Authenticate проверяет email и пароль существующего аккаунта.
func (g *Gate) Authenticate(ctx context.Context, email, password string) (domain.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.Account{}, domain.ErrInvalidCredentials
	}

	account, err := g.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Account{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	if !account.Active {
		return domain.Account{}, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return domain.Account{}, domain.ErrInvalidCredentials
	}
	return account, nil
}

// ValidEmail проверяет синтаксис адреса.
func (g *Gate) ValidEmail(email string) bool {
	return g.validate.Var(email, "required,email") == nil
}
