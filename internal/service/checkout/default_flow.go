package checkout

import (
	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/commerce/internal/service/payment"
)

// DefaultFlowID: идентификатор стандартного сценария.
const DefaultFlowID = "default"

// DefaultFlow собирает стандартный сценарий:
// login → order_information → review → payment → complete.
func DefaultFlow(login LoginPaneConfig, auth Authenticator, gateways *payment.Registry) *Flow {
	validate := validator.New()

	contact := NewContactInformationPane(validate)
	billing := NewBillingInformationPane(validate)
	paymentInfo := NewPaymentInformationPane(gateways)

	flow, err := NewFlow(DefaultFlowID,
		Step{ID: StepLogin, Label: "Login", Panes: []Pane{NewLoginPane(login, auth)}},
		Step{
			ID:        StepOrderInformation,
			Label:     "Order information",
			NextLabel: "Continue to review",
			Panes:     []Pane{contact, billing, paymentInfo},
		},
		Step{
			ID:        StepReview,
			Label:     "Review",
			NextLabel: "Pay and complete purchase",
			Panes:     []Pane{NewReviewPane(contact, billing, paymentInfo)},
		},
		Step{
			ID:          StepPayment,
			Label:       "Payment",
			Panes:       []Pane{NewPaymentProcessPane(gateways)},
			Auto:        true,
			FailureStep: StepReview,
		},
		Step{
			ID:    StepComplete,
			Label: "Complete",
			Panes: []Pane{NewCompletionMessagePane()},
			Final: true,
		},
	)
	if err != nil {
		panic(err)
	}
	return flow
}
