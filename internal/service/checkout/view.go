package checkout

import "github.com/vladislavdragonenkov/commerce/internal/domain"

// Section: блок сводки на шаге review.
type Section struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// PaneView: данные панели для отображения.
type PaneView struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Fields   map[string]string `json:"fields,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
	Actions  []string          `json:"actions,omitempty"`
	Sections []Section         `json:"sections,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// View: текущий шаг оформления заказа.
type View struct {
	OrderID string `json:"order_id"`
	Step    string `json:"step"`
	Label   string `json:"label,omitempty"`
	// Redirect: запрошен не тот шаг, клиента надо отправить на Step.
	Redirect    bool                    `json:"redirect,omitempty"`
	NextLabel   string                  `json:"next_label,omitempty"`
	Steps       []string                `json:"steps"`
	Panes       []PaneView              `json:"panes"`
	Completed   bool                    `json:"completed"`
	OrderNumber int64                   `json:"order_number,omitempty"`
	Total       domain.Price            `json:"total"`
	Messages    []string                `json:"messages,omitempty"`
	Errors      domain.ValidationErrors `json:"errors,omitempty"`
}

// Result: итог отправки шага.
type Result struct {
	View View
	// Actor: актор после шага; токен сессии меняется при входе.
	Actor domain.Actor
}
