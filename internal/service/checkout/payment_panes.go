package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/payment"
)

// FieldPaymentGateway: выбор платёжного шлюза.
const FieldPaymentGateway = "payment_information[gateway]"

const msgPaymentFailed = "We encountered an error processing your payment method. Please verify your details and try again."

// PaymentInformationPane: выбор способа оплаты.
type PaymentInformationPane struct {
	gateways *payment.Registry
}

func NewPaymentInformationPane(gateways *payment.Registry) *PaymentInformationPane {
	return &PaymentInformationPane{gateways: gateways}
}

func (p *PaymentInformationPane) ID() string    { return "payment_information" }
func (p *PaymentInformationPane) Title() string { return "Payment information" }

func (p *PaymentInformationPane) Visible(_ *State) bool { return true }

func (p *PaymentInformationPane) Render(st *State) PaneView {
	selected := st.Order.PaymentGateway
	if selected == "" {
		if g, ok := p.gateways.Default(); ok {
			selected = g.ID()
		}
	}
	return PaneView{
		ID:      p.ID(),
		Title:   p.Title(),
		Fields:  map[string]string{FieldPaymentGateway: selected},
		Options: p.gateways.Options(),
	}
}

func (p *PaymentInformationPane) Summary(st *State) []string {
	if st.Order.PaymentGateway == "" {
		return nil
	}
	if g, err := p.gateways.Get(st.Order.PaymentGateway); err == nil {
		return []string{g.Label()}
	}
	return []string{st.Order.PaymentGateway}
}

func (p *PaymentInformationPane) Validate(_ context.Context, _ *State, in Input) domain.ValidationErrors {
	var errs domain.ValidationErrors
	if _, err := p.selected(in); err != nil {
		errs.Add(FieldPaymentGateway, "The selected payment gateway is not available.")
	}
	return errs
}

func (p *PaymentInformationPane) Apply(_ context.Context, st *State, in Input) error {
	g, err := p.selected(in)
	if err != nil {
		return err
	}
	st.Order.PaymentGateway = g.ID()
	return nil
}

// selected: шлюз из формы или единственный/первый настроенный.
func (p *PaymentInformationPane) selected(in Input) (domain.PaymentGateway, error) {
	if id := in.Get(FieldPaymentGateway); id != "" {
		return p.gateways.Get(id)
	}
	g, ok := p.gateways.Default()
	if !ok {
		return nil, domain.ErrPaymentGatewayNotFound
	}
	return g, nil
}

// PaymentProcessPane списывает итог заказа. Формы у панели нет.
type PaymentProcessPane struct {
	gateways *payment.Registry
}

func NewPaymentProcessPane(gateways *payment.Registry) *PaymentProcessPane {
	return &PaymentProcessPane{gateways: gateways}
}

func (p *PaymentProcessPane) ID() string    { return "payment_process" }
func (p *PaymentProcessPane) Title() string { return "Payment" }

func (p *PaymentProcessPane) Visible(_ *State) bool { return true }

func (p *PaymentProcessPane) Render(_ *State) PaneView {
	return PaneView{ID: p.ID(), Title: p.Title()}
}

func (p *PaymentProcessPane) Validate(context.Context, *State, Input) domain.ValidationErrors {
	return nil
}

// Apply: отказ шлюза превращается в ошибку поля выбора оплаты.
func (p *PaymentProcessPane) Apply(ctx context.Context, st *State, _ Input) error {
	gateway, err := p.gateways.Get(st.Order.PaymentGateway)
	if err != nil {
		return domain.ValidationErrors{{Field: FieldPaymentGateway, Message: "The selected payment gateway is not available."}}
	}

	result, err := gateway.Charge(ctx, st.Order.ID, st.Order.Total)
	if errors.Is(err, domain.ErrPaymentDeclined) || (err == nil && !result.Settled()) {
		return domain.ValidationErrors{{Field: FieldPaymentGateway, Message: msgPaymentFailed}}
	}
	if err != nil {
		return fmt.Errorf("charge %s: %w", gateway.ID(), err)
	}
	st.RecordPayment(result)
	return nil
}
