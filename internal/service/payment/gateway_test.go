package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

func TestTestGateway(t *testing.T) {
	ctx := context.Background()
	gw := NewTestGateway("test")
	amount := domain.MustPrice("19.98", "USD")

	p, err := gw.Charge(ctx, "o-1", amount)
	if err != nil {
		t.Fatalf("unexpected charge error: %v", err)
	}
	if p.Status != domain.PaymentStatusCompleted || !p.Settled() {
		t.Fatalf("unexpected payment status: %s", p.Status)
	}
	if !p.Amount.Equal(amount) {
		t.Fatalf("unexpected amount: %s", p.Amount)
	}

	gw.SetDecline(true)
	p, err = gw.Charge(ctx, "o-2", amount)
	if !errors.Is(err, domain.ErrPaymentDeclined) {
		t.Fatalf("expected decline, got %v", err)
	}
	if p.Status != domain.PaymentStatusDeclined {
		t.Fatalf("unexpected status after decline: %s", p.Status)
	}

	gw.SetDecline(false)
	gw.SetError(errors.New("gateway down"))
	if _, err := gw.Charge(ctx, "o-3", amount); err == nil {
		t.Fatal("expected gateway error")
	}

	if gw.Calls() != 3 {
		t.Fatalf("unexpected call counter: %d", gw.Calls())
	}
}

func TestManualGateway(t *testing.T) {
	gw := NewManualGateway("manual", "Cash on delivery")
	p, err := gw.Charge(context.Background(), "o-1", domain.MustPrice("5", "EUR"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != domain.PaymentStatusPending || !p.Settled() {
		t.Fatalf("manual payment must be pending, got %s", p.Status)
	}
}

func TestRegistry(t *testing.T) {
	manual := NewManualGateway("manual", "Manual")
	test := NewTestGateway("test")
	r := NewRegistry(manual, test, NewTestGateway("manual"))

	def, ok := r.Default()
	if !ok || def.ID() != "manual" {
		t.Fatalf("unexpected default gateway: %v", def)
	}
	if _, err := r.Get("test"); err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if _, err := r.Get("paypal"); !errors.Is(err, domain.ErrPaymentGatewayNotFound) {
		t.Fatalf("expected ErrPaymentGatewayNotFound, got %v", err)
	}
	if ids := r.IDs(); len(ids) != 2 || ids[0] != "manual" || ids[1] != "test" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if _, ok := NewRegistry().Default(); ok {
		t.Fatal("empty registry must not have default")
	}
}
