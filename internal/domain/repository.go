package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов и корзин.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderAlreadyExists, если ID занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
	// FindOpenCart ищет открытую корзину аккаунта в магазине или возвращает ErrOrderNotFound.
	FindOpenCart(ctx context.Context, storeID, ownerID string) (Order, error)
	// ListByOwner возвращает заказы владельца с опциональным ограничением на количество.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Order, error)
}

// AccountRepository хранит учётные записи покупателей.
type AccountRepository interface {
	// Create возвращает ErrEmailTaken при повторном email.
	Create(ctx context.Context, account Account) error
	Get(ctx context.Context, id string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
}

// Catalog отдаёт покупаемые вариации товаров.
type Catalog interface {
	GetVariation(ctx context.Context, id string) (Variation, error)
}

// OrderNumberSequence выдаёт номера заказов: монотонно и атомарно в рамках магазина.
type OrderNumberSequence interface {
	Next(ctx context.Context, storeID string) (int64, error)
}

// SessionRepository хранит сессии покупателей.
type SessionRepository interface {
	Get(ctx context.Context, token string) (Session, error)
	Save(ctx context.Context, session Session) error
	Delete(ctx context.Context, token string) error
}
