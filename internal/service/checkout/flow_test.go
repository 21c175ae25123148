package checkout

import (
	"testing"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/payment"
)

func TestNewFlowRejectsBadConfiguration(t *testing.T) {
	review := Step{ID: "review", Panes: []Pane{NewReviewPane()}}
	done := Step{ID: "done", Panes: []Pane{NewCompletionMessagePane()}, Final: true}

	cases := map[string][]Step{
		"empty":            nil,
		"no final":         {review},
		"duplicate":        {review, review, done},
		"final not last":   {done, review},
		"auto without way": {review, {ID: "pay", Auto: true, FailureStep: "missing"}, done},
		"auto goes ahead":  {review, {ID: "pay", Auto: true, FailureStep: "done"}, done},
	}
	for name, steps := range cases {
		if _, err := NewFlow("test", steps...); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	if _, err := NewFlow("test", review, done); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCanonicalStep(t *testing.T) {
	flow := DefaultFlow(DefaultLoginPaneConfig(), nil, payment.NewRegistry(payment.NewTestGateway("test")))

	order := domain.NewCart("o-1", "", "s-1", "", testNow())
	anon := domain.AnonymousActor(domain.Session{Token: "t", CartOrderIDs: []string{"o-1"}})
	st := &State{Order: &order, Actor: anon}

	if got := flow.Canonical(st).ID; got != StepLogin {
		t.Fatalf("expected login for fresh anonymous order, got %s", got)
	}

	order.CheckoutMode = domain.CheckoutModeGuest
	if got := flow.Canonical(st).ID; got != StepOrderInformation {
		t.Fatalf("login must be skipped after choosing guest, got %s", got)
	}

	order.CheckoutStep = StepPayment
	if got := flow.Canonical(st).ID; got != StepReview {
		t.Fatalf("auto step must fall back to review, got %s", got)
	}

	order.State = domain.OrderStateCompleted
	if got := flow.Canonical(st).ID; got != StepComplete {
		t.Fatalf("completed order must sit on complete, got %s", got)
	}

	owned := domain.NewCart("o-2", "", "s-1", "acc-1", testNow())
	st = &State{Order: &owned, Actor: domain.Actor{AccountID: "acc-1", Roles: []string{domain.RoleAuthenticated}}}
	if got := flow.Canonical(st).ID; got != StepOrderInformation {
		t.Fatalf("owner must start at order information, got %s", got)
	}
	steps := flow.visibleSteps(st)
	want := []string{StepOrderInformation, StepReview, StepComplete}
	if len(steps) != len(want) {
		t.Fatalf("unexpected visible steps: %v", steps)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("unexpected visible steps: %v", steps)
		}
	}
}
