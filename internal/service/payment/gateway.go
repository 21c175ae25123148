// Package payment содержит платёжные шлюзы и их реестр.
package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// ManualGateway: оплата вне системы (наличные, банковский перевод).
// Платёж создаётся в статусе pending и не мешает завершению заказа.
type ManualGateway struct {
	id    string
	label string
}

// NewManualGateway создаёт ручной шлюз.
func NewManualGateway(id, label string) *ManualGateway {
	return &ManualGateway{id: id, label: label}
}

func (g *ManualGateway) ID() string    { return g.id }
func (g *ManualGateway) Label() string { return g.label }

func (g *ManualGateway) Charge(_ context.Context, orderID string, amount domain.Price) (domain.Payment, error) {
	p := domain.Payment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Gateway:   g.id,
		Status:    domain.PaymentStatusPending,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	return p, p.Validate()
}

// TestGateway: конфигурируемый шлюз для тестов и стендов.
type TestGateway struct {
	mu      sync.Mutex
	id      string
	decline bool
	err     error
	calls   int
}

// NewTestGateway возвращает шлюз, который по умолчанию списывает успешно.
func NewTestGateway(id string) *TestGateway {
	return &TestGateway{id: id}
}

func (g *TestGateway) ID() string    { return g.id }
func (g *TestGateway) Label() string { return "Test gateway" }

// SetDecline переключает отказ по всем следующим платежам.
func (g *TestGateway) SetDecline(decline bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.decline = decline
}

// SetError задаёт техническую ошибку шлюза.
func (g *TestGateway) SetError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *TestGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *TestGateway) Charge(ctx context.Context, orderID string, amount domain.Price) (domain.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	if err := ctx.Err(); err != nil {
		return domain.Payment{}, err
	}
	if g.err != nil {
		return domain.Payment{}, g.err
	}

	p := domain.Payment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Gateway:   g.id,
		RemoteID:  "test-" + uuid.NewString(),
		Status:    domain.PaymentStatusCompleted,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	if g.decline {
		p.Status = domain.PaymentStatusDeclined
		return p, domain.ErrPaymentDeclined
	}
	return p, p.Validate()
}

// Registry: набор настроенных шлюзов.
type Registry struct {
	gateways map[string]domain.PaymentGateway
	order    []string
}

// NewRegistry регистрирует шлюзы; первый становится шлюзом по умолчанию.
func NewRegistry(gateways ...domain.PaymentGateway) *Registry {
	r := &Registry{gateways: make(map[string]domain.PaymentGateway, len(gateways))}
	for _, g := range gateways {
		if _, exists := r.gateways[g.ID()]; exists {
			continue
		}
		r.gateways[g.ID()] = g
		r.order = append(r.order, g.ID())
	}
	return r
}

// Get возвращает шлюз по ID или ErrPaymentGatewayNotFound.
func (r *Registry) Get(id string) (domain.PaymentGateway, error) {
	g, ok := r.gateways[id]
	if !ok {
		return nil, domain.ErrPaymentGatewayNotFound
	}
	return g, nil
}

// Default возвращает первый зарегистрированный шлюз.
func (r *Registry) Default() (domain.PaymentGateway, bool) {
	if len(r.order) == 0 {
		return nil, false
	}
	return r.gateways[r.order[0]], true
}

// Options возвращает пары id → label для формы выбора.
func (r *Registry) Options() map[string]string {
	out := make(map[string]string, len(r.gateways))
	for id, g := range r.gateways {
		out[id] = g.Label()
	}
	return out
}

// IDs возвращает идентификаторы шлюзов в алфавитном порядке.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.gateways))
	for id := range r.gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var (
	_ domain.PaymentGateway = (*ManualGateway)(nil)
	_ domain.PaymentGateway = (*TestGateway)(nil)
)
