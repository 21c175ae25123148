package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type orderNumberSequence struct {
	db *sql.DB
}

// NewOrderNumberSequence выдаёт номера одним upsert-ом: строка магазина
// блокируется на время инкремента, номера не повторяются.
func NewOrderNumberSequence(store *Store) domain.OrderNumberSequence {
	return &orderNumberSequence{db: store.DB()}
}

func (s *orderNumberSequence) Next(ctx context.Context, storeID string) (int64, error) {
	if storeID == "" {
		return 0, domain.ErrStoreRequired
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var next int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO order_number_sequences (store_id, last_value) VALUES ($1, 1)
		ON CONFLICT (store_id) DO UPDATE SET last_value = order_number_sequences.last_value + 1
		RETURNING last_value`, storeID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next order number: %w", err)
	}
	return next, nil
}

var _ domain.OrderNumberSequence = (*orderNumberSequence)(nil)
