package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// orderNumberSequenceInMemory: счётчик номеров заказов по магазинам.
type orderNumberSequenceInMemory struct {
	mu   sync.Mutex
	last map[string]int64
}

// NewOrderNumberSequence создаёт in-memory последовательность номеров.
func NewOrderNumberSequence() domain.OrderNumberSequence {
	return &orderNumberSequenceInMemory{last: make(map[string]int64)}
}

// Next атомарно увеличивает счётчик магазина и возвращает новое значение.
func (s *orderNumberSequenceInMemory) Next(_ context.Context, storeID string) (int64, error) {
	if storeID == "" {
		return 0, domain.ErrStoreRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.last[storeID]++
	return s.last[storeID], nil
}

var _ domain.OrderNumberSequence = (*orderNumberSequenceInMemory)(nil)
