// Package access решает, может ли актор открыть оформление заказа.
package access

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
)

// Guard проверяет доступ к заказу. Только читает заказ, ничего не меняет.
type Guard struct {
	permissions domain.PermissionChecker
	metrics     *metrics.CheckoutMetrics
	logger      *log.Entry
}

// Option настраивает Guard.
type Option func(*Guard)

func WithLogger(logger *log.Entry) Option {
	return func(g *Guard) { g.logger = logger }
}

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// NewGuard создаёт проверку доступа поверх permissions.
func NewGuard(permissions domain.PermissionChecker, opts ...Option) *Guard {
	g := &Guard{permissions: permissions}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.WithField("component", "access-guard")
	}
	return g
}

// Check применяет правила по порядку, отказ даёт первое сработавшее.
func (g *Guard) Check(actor domain.Actor, order domain.Order) error {
	reason, denied := g.evaluate(actor, order)
	if !denied {
		return nil
	}

	g.metrics.RecordAccessDenied(string(reason))
	g.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"account_id": actor.AccountID,
		"reason":     reason,
	}).Info("checkout access denied")
	return &domain.AccessDenied{Reason: reason}
}

// CanAccessOrder: булева форма Check.
func (g *Guard) CanAccessOrder(actor domain.Actor, order domain.Order) bool {
	return g.Check(actor, order) == nil
}

func (g *Guard) evaluate(actor domain.Actor, order domain.Order) (domain.AccessDeniedReason, bool) {
	if !actor.Authenticated() && !actor.Associated(order.ID) {
		return domain.AccessDeniedUnauthenticated, true
	}

	if order.OwnerID != "" {
		if order.OwnerID != actor.AccountID {
			return domain.AccessDeniedNotOwner, true
		}
	} else if !actor.Associated(order.ID) {
		return domain.AccessDeniedNotOwner, true
	}

	if g.permissions == nil || !g.permissions.HasCapability(actor, domain.CapabilityAccessCheckout) {
		return domain.AccessDeniedMissingCapability, true
	}

	if !order.HasItems() {
		return domain.AccessDeniedEmptyOrder, true
	}
	return "", false
}
