package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// Catalog: in-memory каталог вариаций, наполняется при старте или в тестах.
type Catalog struct {
	mu    sync.RWMutex
	items map[string]domain.Variation
}

// NewCatalog создаёт каталог с начальным набором вариаций.
func NewCatalog(variations ...domain.Variation) *Catalog {
	c := &Catalog{items: make(map[string]domain.Variation, len(variations))}
	for _, v := range variations {
		c.Put(v)
	}
	return c
}

// Put добавляет или заменяет вариацию.
func (c *Catalog) Put(v domain.Variation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v.StoreIDs = slices.Clone(v.StoreIDs)
	c.items[v.ID] = v
}

func (c *Catalog) GetVariation(_ context.Context, id string) (domain.Variation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.items[id]
	if !ok {
		return domain.Variation{}, domain.ErrVariationNotFound
	}
	v.StoreIDs = slices.Clone(v.StoreIDs)
	return v, nil
}

var _ domain.Catalog = (*Catalog)(nil)
