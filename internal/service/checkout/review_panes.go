package checkout

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// ReviewPane показывает сводку введённых данных перед оплатой.
type ReviewPane struct {
	panes []Pane
}

// NewReviewPane собирает сводку из панелей, умеющих Summary.
func NewReviewPane(panes ...Pane) *ReviewPane {
	return &ReviewPane{panes: panes}
}

func (p *ReviewPane) ID() string    { return "review" }
func (p *ReviewPane) Title() string { return "Review" }

func (p *ReviewPane) Visible(_ *State) bool { return true }

func (p *ReviewPane) Render(st *State) PaneView {
	view := PaneView{ID: p.ID(), Title: p.Title()}
	for _, pane := range p.panes {
		s, ok := pane.(Summarizer)
		if !ok || !pane.Visible(st) {
			continue
		}
		if lines := s.Summary(st); len(lines) > 0 {
			view.Sections = append(view.Sections, Section{Title: pane.Title(), Lines: lines})
		}
	}
	return view
}

func (p *ReviewPane) Validate(context.Context, *State, Input) domain.ValidationErrors {
	return nil
}

func (p *ReviewPane) Apply(context.Context, *State, Input) error {
	return nil
}

// CompletionMessagePane: сообщение после оформления.
type CompletionMessagePane struct{}

func NewCompletionMessagePane() *CompletionMessagePane {
	return &CompletionMessagePane{}
}

func (p *CompletionMessagePane) ID() string    { return "completion_message" }
func (p *CompletionMessagePane) Title() string { return "Complete" }

func (p *CompletionMessagePane) Visible(_ *State) bool { return true }

func (p *CompletionMessagePane) Render(st *State) PaneView {
	return PaneView{ID: p.ID(), Title: p.Title(), Message: CompletionMessage(st.Order.OrderNumber)}
}

func (p *CompletionMessagePane) Validate(context.Context, *State, Input) domain.ValidationErrors {
	return nil
}

func (p *CompletionMessagePane) Apply(context.Context, *State, Input) error {
	return nil
}

// CompletionMessage: текст страницы завершения.
func CompletionMessage(orderNumber int64) string {
	return fmt.Sprintf("Your order number is %d. You can view your order on your account page when logged in.", orderNumber)
}
