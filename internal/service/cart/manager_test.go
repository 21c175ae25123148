package cart_test

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/cart"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

const storeID = "store-1"

type fixture struct {
	manager  *cart.Manager
	orders   domain.OrderRepository
	sessions domain.SessionRepository
	timeline domain.TimelineRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	catalog := memory.NewCatalog(
		domain.Variation{ID: "tshirt", Title: "T-shirt", Price: domain.MustPrice("9.99", "USD"), StoreIDs: []string{storeID}, Active: true},
		domain.Variation{ID: "mug", Title: "Mug", Price: domain.MustPrice("5.00", "USD"), StoreIDs: []string{storeID}, Active: true},
		domain.Variation{ID: "euro-mug", Title: "Mug", Price: domain.MustPrice("5.00", "EUR"), StoreIDs: []string{storeID}, Active: true},
		domain.Variation{ID: "retired", Title: "Old", Price: domain.MustPrice("1.00", "USD"), StoreIDs: []string{storeID}},
	)
	f := fixture{
		orders:   memory.NewOrderRepository(),
		sessions: memory.NewSessionRepository(),
		timeline: memory.NewTimelineRepository(),
	}
	f.manager = cart.NewManager(f.orders, catalog, f.sessions,
		cart.WithTimeline(f.timeline),
		cart.WithMetrics(metrics.NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())),
	)
	return f
}

func TestCreateCart_DuplicateForAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := cart.Owner{AccountID: "acc-1"}

	order, err := f.manager.CreateCart(ctx, "", storeID, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateCart, order.State)
	assert.Equal(t, "acc-1", order.OwnerID)
	assert.Equal(t, domain.OrderTypeDefault, order.Type)

	_, err = f.manager.CreateCart(ctx, "", storeID, owner)
	require.ErrorIs(t, err, domain.ErrDuplicateCart)

	// в другом магазине своя корзина
	_, err = f.manager.CreateCart(ctx, "", "store-2", owner)
	require.NoError(t, err)

	events, err := f.timeline.List(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.TimelineCartCreated, events[0].Type)
}

func TestCreateCart_AnonymousSessionMapping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := cart.Owner{SessionToken: "sess-1"}

	order, err := f.manager.CreateCart(ctx, "", storeID, owner)
	require.NoError(t, err)
	assert.Empty(t, order.OwnerID)

	session, err := f.sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, session.HasCart(order.ID))

	_, err = f.manager.CreateCart(ctx, "", storeID, owner)
	require.ErrorIs(t, err, domain.ErrDuplicateCart)

	_, err = f.manager.CreateCart(ctx, "", storeID, cart.Owner{})
	require.ErrorIs(t, err, cart.ErrSessionRequired)

	found, ok, err := f.manager.GetCart(ctx, storeID, owner)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, order.ID, found.ID)

	_, ok, err = f.manager.GetCart(ctx, storeID, cart.Owner{SessionToken: "other"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddEntity_ConsolidatesSameVariation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, err := f.manager.GetOrCreateCart(ctx, "", storeID, cart.Owner{AccountID: "acc-1"})
	require.NoError(t, err)

	quantities := []int32{1, 2, 3}
	for _, q := range quantities {
		_, err := f.manager.AddEntity(ctx, order.ID, "tshirt", q, nil)
		require.NoError(t, err)
	}

	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.LineItems, 1)
	assert.EqualValues(t, 6, stored.LineItems[0].Quantity)
	assert.True(t, stored.Total.Equal(domain.MustPrice("59.94", "USD")), stored.Total.String())
	assert.Equal(t, 6, f.manager.CountItems(stored))
}

func TestAddEntity_AttributesSplitLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, err := f.manager.GetOrCreateCart(ctx, "", storeID, cart.Owner{AccountID: "acc-1"})
	require.NoError(t, err)

	_, err = f.manager.AddEntity(ctx, order.ID, "tshirt", 1, map[string]string{"size": "M"})
	require.NoError(t, err)
	_, err = f.manager.AddEntity(ctx, order.ID, "tshirt", 1, map[string]string{"size": "L"})
	require.NoError(t, err)
	item, err := f.manager.AddEntity(ctx, order.ID, "tshirt", 1, map[string]string{"size": "M"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, item.Quantity)

	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, stored.LineItems, 2)
}

func TestAddEntity_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, err := f.manager.GetOrCreateCart(ctx, "", storeID, cart.Owner{AccountID: "acc-1"})
	require.NoError(t, err)

	_, err = f.manager.AddEntity(ctx, order.ID, "tshirt", 0, nil)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.manager.AddEntity(ctx, order.ID, "unknown", 1, nil)
	require.ErrorIs(t, err, domain.ErrVariationNotFound)

	_, err = f.manager.AddEntity(ctx, order.ID, "retired", 1, nil)
	require.ErrorIs(t, err, domain.ErrVariationNotFound)

	_, err = f.manager.AddEntity(ctx, order.ID, "mug", 1, nil)
	require.NoError(t, err)
	_, err = f.manager.AddEntity(ctx, order.ID, "euro-mug", 1, nil)
	require.ErrorIs(t, err, domain.ErrCurrencyMismatch)
}

func TestUpdateQuantity_RecalculatesTotal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, err := f.manager.GetOrCreateCart(ctx, "", storeID, cart.Owner{AccountID: "acc-1"})
	require.NoError(t, err)
	item, err := f.manager.AddEntity(ctx, order.ID, "tshirt", 1, nil)
	require.NoError(t, err)

	updated, err := f.manager.UpdateQuantity(ctx, order.ID, item.ID, 2)
	require.NoError(t, err)
	assert.True(t, updated.Total.Equal(domain.MustPrice("19.98", "USD")), updated.Total.String())
	assert.True(t, updated.LineItems[0].TotalPrice.Equal(domain.MustPrice("19.98", "USD")))

	_, err = f.manager.UpdateQuantity(ctx, order.ID, item.ID, 0)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.LineItems, 1, "zero quantity must not remove the line item")
	assert.EqualValues(t, 2, stored.LineItems[0].Quantity)

	_, err = f.manager.UpdateQuantity(ctx, order.ID, "missing", 3)
	require.ErrorIs(t, err, domain.ErrLineItemNotFound)
}

func TestRemoveLineItem_LeavesEmptyCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, err := f.manager.GetOrCreateCart(ctx, "", storeID, cart.Owner{AccountID: "acc-1"})
	require.NoError(t, err)
	item, err := f.manager.AddEntity(ctx, order.ID, "tshirt", 1, nil)
	require.NoError(t, err)

	emptied, err := f.manager.RemoveLineItem(ctx, order.ID, item.ID)
	require.NoError(t, err)
	assert.Empty(t, emptied.LineItems)
	assert.True(t, emptied.Total.IsZero())
	assert.Equal(t, domain.OrderStateCart, emptied.State)

	found, ok, err := f.manager.GetCart(ctx, storeID, cart.Owner{AccountID: "acc-1"})
	require.NoError(t, err)
	require.True(t, ok, "empty cart must stay")
	assert.Equal(t, order.ID, found.ID)
	assert.Equal(t, 0, f.manager.CountItems(found))
}

func TestMutations_RejectClosedCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, err := f.manager.GetOrCreateCart(ctx, "", storeID, cart.Owner{AccountID: "acc-1"})
	require.NoError(t, err)

	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	stored.State = domain.OrderStateCanceled
	require.NoError(t, f.orders.Save(ctx, stored))

	_, err = f.manager.AddEntity(ctx, order.ID, "tshirt", 1, nil)
	require.ErrorIs(t, err, domain.ErrCartClosed)
	_, err = f.manager.EmptyCart(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrCartClosed)
}

func TestConcurrentUpdatesKeepTotalConsistent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, err := f.manager.GetOrCreateCart(ctx, "", storeID, cart.Owner{AccountID: "acc-1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.AddEntity(ctx, order.ID, "tshirt", 1, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.LineItems, 1)
	assert.EqualValues(t, 20, stored.LineItems[0].Quantity)
	assert.True(t, stored.Total.Equal(domain.MustPrice("199.80", "USD")), stored.Total.String())
	assert.Empty(t, stored.ValidateInvariants())
}

func TestAssignCarts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := cart.Owner{SessionToken: "sess-1"}

	order, err := f.manager.CreateCart(ctx, "", storeID, owner)
	require.NoError(t, err)
	session, err := f.sessions.Get(ctx, "sess-1")
	require.NoError(t, err)

	require.NoError(t, f.manager.AssignCarts(ctx, session, "acc-9"))

	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "acc-9", stored.OwnerID)

	found, ok, err := f.manager.GetCart(ctx, storeID, cart.Owner{AccountID: "acc-9"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, order.ID, found.ID)
}
