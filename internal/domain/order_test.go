package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// helper для создания корзины с одной позицией 9.99 × 1.
func makeCart() domain.Order {
	now := time.Now().UTC()
	order := domain.NewCart("order-1", "", "store-1", "", now)
	order.LineItems = []domain.LineItem{
		{
			ID:              "li-1",
			Type:            domain.LineItemTypeProductVariation,
			PurchasedEntity: domain.PurchasableRef{Type: domain.LineItemTypeProductVariation, ID: "var-1"},
			Title:           "T-shirt",
			Quantity:        1,
			UnitPrice:       domain.MustPrice("9.99", "USD"),
			CreatedAt:       now,
		},
	}
	if err := order.RecalculateTotal(); err != nil {
		panic(err)
	}
	return order
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeCart()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{
			name: "no store",
			mut:  func(o *domain.Order) { o.StoreID = "" },
		},
		{
			name: "in checkout without items",
			mut: func(o *domain.Order) {
				o.State = domain.OrderStateInCheckout
				o.LineItems = nil
			},
		},
		{
			name: "completed without number",
			mut:  func(o *domain.Order) { o.State = domain.OrderStateCompleted },
		},
		{
			name: "stale total",
			mut:  func(o *domain.Order) { o.Total = domain.MustPrice("1.00", "USD") },
		},
		{
			name: "zero quantity",
			mut:  func(o *domain.Order) { o.LineItems[0].Quantity = 0 },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeCart()
			tc.mut(&order)
			if errs := order.ValidateInvariants(); len(errs) == 0 {
				t.Fatalf("expected validation errors")
			}
		})
	}
}

func TestOrderRecalculateTotal(t *testing.T) {
	order := makeCart()
	if err := order.LineItems[0].SetQuantity(2); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if err := order.RecalculateTotal(); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	want := domain.MustPrice("19.98", "USD")
	if !order.Total.Equal(want) {
		t.Fatalf("expected total %s, got %s", want, order.Total)
	}
	if order.CountItems() != 2 {
		t.Fatalf("expected 2 items, got %d", order.CountItems())
	}
}

func TestOrderRecalculateTotal_CurrencyMismatch(t *testing.T) {
	order := makeCart()
	order.LineItems = append(order.LineItems, domain.LineItem{
		ID:              "li-2",
		PurchasedEntity: domain.PurchasableRef{ID: "var-2"},
		Quantity:        1,
		UnitPrice:       domain.MustPrice("5", "EUR"),
	})
	if err := order.RecalculateTotal(); err == nil {
		t.Fatalf("expected currency mismatch")
	}
}

func TestLineItemSetQuantity_RejectsNonPositive(t *testing.T) {
	order := makeCart()
	for _, qty := range []int32{0, -3} {
		if err := order.LineItems[0].SetQuantity(qty); err != domain.ErrInvalidQuantity {
			t.Fatalf("qty %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
	if order.LineItems[0].Quantity != 1 {
		t.Fatalf("quantity must stay unchanged")
	}
}

func TestOrderFindMatchingLineItem(t *testing.T) {
	order := makeCart()
	order.LineItems[0].Attributes = map[string]string{"size": "M"}

	ref := domain.PurchasableRef{Type: domain.LineItemTypeProductVariation, ID: "var-1"}
	if _, ok := order.FindMatchingLineItem(ref, map[string]string{"size": "M"}); !ok {
		t.Fatalf("expected match for same variation and attributes")
	}
	if _, ok := order.FindMatchingLineItem(ref, map[string]string{"size": "L"}); ok {
		t.Fatalf("different attributes must not match")
	}
	if _, ok := order.FindMatchingLineItem(ref, nil); ok {
		t.Fatalf("missing attributes must not match")
	}
}

func TestOrderComplete(t *testing.T) {
	order := makeCart()
	order.BillingProfile = &domain.Profile{ID: "p-1", Type: domain.ProfileTypeBilling}

	if err := order.Complete(1, time.Now()); err != domain.ErrInvalidStateTransition {
		t.Fatalf("cart must enter checkout first, got %v", err)
	}

	order.State = domain.OrderStateInCheckout
	if err := order.Complete(1, time.Now()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if order.State != domain.OrderStateCompleted || order.OrderNumber != 1 {
		t.Fatalf("unexpected order after completion: %+v", order)
	}
	if !order.BillingProfile.Locked {
		t.Fatalf("billing profile must be locked")
	}
	if err := order.Complete(2, time.Now()); err != domain.ErrOrderNumberAssigned {
		t.Fatalf("expected ErrOrderNumberAssigned, got %v", err)
	}
	if order.OrderNumber != 1 {
		t.Fatalf("order number must not change")
	}
}

func TestOrderComplete_EmptyOrder(t *testing.T) {
	order := makeCart()
	order.State = domain.OrderStateInCheckout
	order.RemoveLineItem(0)
	if err := order.Complete(1, time.Now()); err != domain.ErrEmptyOrder {
		t.Fatalf("expected ErrEmptyOrder, got %v", err)
	}
}

func TestOrderClone_IsDeep(t *testing.T) {
	order := makeCart()
	order.LineItems[0].Attributes = map[string]string{"size": "M"}
	order.BillingProfile = &domain.Profile{ID: "p-1"}

	clone := order.Clone()
	clone.LineItems[0].Quantity = 10
	clone.LineItems[0].Attributes["size"] = "XL"
	clone.BillingProfile.ID = "p-2"

	if order.LineItems[0].Quantity != 1 || order.LineItems[0].Attributes["size"] != "M" || order.BillingProfile.ID != "p-1" {
		t.Fatalf("clone shares state with original")
	}
}

func TestProfileUpdate_Locked(t *testing.T) {
	p := domain.Profile{Locked: true}
	if err := p.Update(domain.Address{Locality: "Paris"}); err != domain.ErrProfileLocked {
		t.Fatalf("expected ErrProfileLocked, got %v", err)
	}
}

func TestSessionAssociation(t *testing.T) {
	var s domain.Session
	s.AddCart("o-1")
	s.AddCart("o-1")
	if len(s.CartOrderIDs) != 1 {
		t.Fatalf("cart must be added once")
	}
	s.MarkCompleted("o-1")
	if s.HasCart("o-1") || !s.HasCompleted("o-1") || !s.Associated("o-1") {
		t.Fatalf("unexpected session state: %+v", s)
	}
}
