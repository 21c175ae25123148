// Package checkout проводит заказ по шагам оформления.
package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// Идентификаторы шагов стандартного сценария.
const (
	StepLogin            = "login"
	StepOrderInformation = "order_information"
	StepReview           = "review"
	StepPayment          = "payment"
	StepComplete         = "complete"
)

// FieldOp: поле формы с выбранным действием (кнопкой).
const FieldOp = "op"

// Input: плоские поля отправленной формы.
type Input map[string]string

// Get возвращает значение поля без пробелов по краям.
func (in Input) Get(key string) string {
	return strings.TrimSpace(in[key])
}

// Raw возвращает значение как есть (пароли не обрезаются).
func (in Input) Raw(key string) string {
	return in[key]
}

type loginEffect struct {
	accountID string
	mode      domain.CheckoutMode
}

// State: то, что видят панели во время обработки шага.
type State struct {
	Order *domain.Order
	Actor domain.Actor

	login         *loginEffect
	ownerAssigned bool
	messages      []string
	payment       *domain.Payment
}

// LoginAs просит движок авторизовать актора после применения шага.
func (s *State) LoginAs(accountID string, mode domain.CheckoutMode) {
	s.login = &loginEffect{accountID: accountID, mode: mode}
}

// AddMessage добавляет сообщение для покупателя.
func (s *State) AddMessage(msg string) {
	s.messages = append(s.messages, msg)
}

// RecordPayment сохраняет результат списания.
func (s *State) RecordPayment(p domain.Payment) {
	s.payment = &p
}

// Pane: часть шага оформления.
type Pane interface {
	ID() string
	Title() string
	Visible(st *State) bool
	Render(st *State) PaneView
	// Validate не меняет заказ.
	Validate(ctx context.Context, st *State, in Input) domain.ValidationErrors
	// Apply меняет заказ. Может вернуть domain.ValidationErrors, тогда шаг не сохраняется.
	Apply(ctx context.Context, st *State, in Input) error
}

// Summarizer: панель умеет кратко показать введённые данные на review.
type Summarizer interface {
	Summary(st *State) []string
}

// Step: упорядоченный набор панелей, отправляемый одной формой.
type Step struct {
	ID        string
	Label     string
	NextLabel string
	Panes     []Pane
	// Auto: шаг выполняется без покупателя сразу после предыдущего.
	Auto bool
	// FailureStep: куда вернуть покупателя, если Auto-шаг не прошёл.
	FailureStep string
	// Final: шаг завершения: вход в него присваивает номер заказа.
	Final bool
}

// Visible: у шага есть хотя бы одна видимая панель.
func (s Step) Visible(st *State) bool {
	for _, p := range s.Panes {
		if p.Visible(st) {
			return true
		}
	}
	return false
}

func (s Step) visiblePanes(st *State) []Pane {
	out := make([]Pane, 0, len(s.Panes))
	for _, p := range s.Panes {
		if p.Visible(st) {
			out = append(out, p)
		}
	}
	return out
}

// Flow: упорядоченный список шагов.
type Flow struct {
	id    string
	steps []Step
	index map[string]int
}

// NewFlow проверяет и собирает сценарий. Последний шаг должен быть Final.
func NewFlow(id string, steps ...Step) (*Flow, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("flow %s: no steps", id)
	}
	f := &Flow{id: id, steps: steps, index: make(map[string]int, len(steps))}
	for i, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("flow %s: step %d has no id", id, i)
		}
		if _, dup := f.index[s.ID]; dup {
			return nil, fmt.Errorf("flow %s: duplicate step %s", id, s.ID)
		}
		if s.Final != (i == len(steps)-1) {
			return nil, fmt.Errorf("flow %s: only the last step may be final", id)
		}
		f.index[s.ID] = i
	}
	for _, s := range steps {
		if !s.Auto {
			continue
		}
		j, ok := f.index[s.FailureStep]
		if !ok || j >= f.index[s.ID] {
			return nil, fmt.Errorf("flow %s: step %s needs an earlier failure step", id, s.ID)
		}
	}
	return f, nil
}

func (f *Flow) ID() string { return f.id }

// Steps возвращает шаги в порядке прохождения.
func (f *Flow) Steps() []Step {
	return f.steps
}

// Step возвращает шаг по идентификатору.
func (f *Flow) Step(id string) (Step, bool) {
	i, ok := f.index[id]
	if !ok {
		return Step{}, false
	}
	return f.steps[i], true
}

// Canonical вычисляет текущий шаг заказа. Позиция только из сохранённого
// состояния, запрошенный клиентом шаг здесь не участвует.
func (f *Flow) Canonical(st *State) Step {
	final := f.steps[len(f.steps)-1]
	if st.Order.State == domain.OrderStateCompleted {
		return final
	}

	start := 0
	if i, ok := f.index[st.Order.CheckoutStep]; ok {
		start = i
	}
	for i := start; i < len(f.steps)-1; i++ {
		s := f.steps[i]
		if s.Auto {
			back, _ := f.Step(s.FailureStep)
			return back
		}
		if s.Visible(st) {
			return s
		}
	}
	return f.first(st)
}

// first: первый видимый интерактивный шаг.
func (f *Flow) first(st *State) Step {
	for _, s := range f.steps[:len(f.steps)-1] {
		if !s.Auto && s.Visible(st) {
			return s
		}
	}
	return f.steps[0]
}

// next: следующий видимый шаг после id.
func (f *Flow) next(id string, st *State) (Step, bool) {
	i, ok := f.index[id]
	if !ok {
		return Step{}, false
	}
	for _, s := range f.steps[i+1:] {
		if s.Final || s.Visible(st) {
			return s, true
		}
	}
	return Step{}, false
}

// visibleSteps: индикатор прогресса: видимые интерактивные шаги.
func (f *Flow) visibleSteps(st *State) []string {
	ids := make([]string, 0, len(f.steps))
	for _, s := range f.steps {
		if !s.Auto && (s.Final || s.Visible(st)) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
