package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// orderRepositoryInMemory: in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	if order.OwnerID != "" && order.IsOpenCart() {
		if _, ok := r.findOpenCartLocked(order.StoreID, order.OwnerID); ok {
			return domain.ErrDuplicateCart
		}
	}
	r.items[order.ID] = order.Clone()
	return nil
}

// Get возвращает копию заказа или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// FindOpenCart ищет открытую корзину владельца в магазине.
func (r *orderRepositoryInMemory) FindOpenCart(_ context.Context, storeID, ownerID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.findOpenCartLocked(storeID, ownerID)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (r *orderRepositoryInMemory) findOpenCartLocked(storeID, ownerID string) (domain.Order, bool) {
	if ownerID == "" {
		return domain.Order{}, false
	}
	for _, order := range r.items {
		if order.StoreID == storeID && order.OwnerID == ownerID && order.IsOpenCart() {
			return order, true
		}
	}
	return domain.Order{}, false
}

// ListByOwner возвращает заказы владельца, новые первыми.
func (r *orderRepositoryInMemory) ListByOwner(_ context.Context, ownerID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.items {
		if order.OwnerID != ownerID {
			continue
		}
		result = append(result, order.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// При назначении владельца корзина не должна задвоиться.
	if order.OwnerID != "" && order.OwnerID != current.OwnerID && order.IsOpenCart() {
		if existing, found := r.findOpenCartLocked(order.StoreID, order.OwnerID); found && existing.ID != order.ID {
			return domain.ErrDuplicateCart
		}
	}
	order.Version++
	r.items[order.ID] = order.Clone()
	return nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
