package app

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/access"
	"github.com/vladislavdragonenkov/commerce/internal/service/cart"
	"github.com/vladislavdragonenkov/commerce/internal/service/checkout"
	"github.com/vladislavdragonenkov/commerce/internal/service/httpapi"
	"github.com/vladislavdragonenkov/commerce/internal/service/idempotency"
	"github.com/vladislavdragonenkov/commerce/internal/service/lock"
	"github.com/vladislavdragonenkov/commerce/internal/service/payment"
	"github.com/vladislavdragonenkov/commerce/internal/service/registration"
	"github.com/vladislavdragonenkov/commerce/internal/service/session"
)

// services: доменные сервисы поверх выбранных хранилищ.
type services struct {
	Sessions     *session.Manager
	Carts        *cart.Manager
	Guard        *access.Guard
	Registration *registration.Gate
	Gateways     *payment.Registry
	Engine       *checkout.Engine
	HTTP         http.Handler
}

func buildServices(cfg Config, deps *runtimeDependencies, logger *log.Entry) *services {
	checkoutMetrics := metrics.NewCheckoutMetrics()
	// Корзина и оформление блокируют один и тот же заказ.
	locks := lock.NewKeyed()

	sessions := session.NewManager(deps.Sessions, deps.Accounts,
		session.WithTTL(cfg.SessionTTL),
		session.WithLogger(logger.WithField("component", "session")),
	)
	carts := cart.NewManager(deps.Orders, deps.Catalog, deps.Sessions,
		cart.WithLocks(locks),
		cart.WithTimeline(deps.Timeline),
		cart.WithMetrics(checkoutMetrics),
		cart.WithLogger(logger.WithField("component", "cart")),
	)
	guard := access.NewGuard(access.DefaultPermissions(),
		access.WithMetrics(checkoutMetrics),
		access.WithLogger(logger.WithField("component", "access")),
	)
	gate := registration.NewGate(deps.Accounts,
		registration.WithMetrics(checkoutMetrics),
		registration.WithLogger(logger.WithField("component", "registration")),
	)

	gateways := []domain.PaymentGateway{payment.NewManualGateway("manual", "Manual payment")}
	if cfg.TestPaymentGateway {
		gateways = append(gateways, payment.NewTestGateway("test"))
	}
	registry := payment.NewRegistry(gateways...)

	flow := checkout.DefaultFlow(checkout.LoginPaneConfig{
		AllowGuestCheckout: cfg.AllowGuestCheckout,
		AllowRegistration:  cfg.AllowRegistration,
	}, gate, registry)

	engine := checkout.NewEngine(flow, deps.Orders, deps.Sequence, guard, sessions,
		checkout.WithCartAssigner(carts),
		checkout.WithOutbox(deps.Outbox),
		checkout.WithTimeline(deps.Timeline),
		checkout.WithLocks(locks),
		checkout.WithMetrics(checkoutMetrics),
		checkout.WithLogger(logger.WithField("component", "checkout")),
	)

	idem := idempotency.NewMiddleware(deps.Idempotency, cfg.IdempotencyTTL, logger.WithField("component", "idempotency"))
	api := httpapi.NewHandler(carts, engine, sessions, deps.Orders,
		httpapi.WithDefaultStore(cfg.DefaultStore),
		httpapi.WithIdempotency(idem.Handler),
		httpapi.WithSecureCookie(cfg.SecureCookie),
		httpapi.WithMetrics(metrics.NewHTTPMetrics()),
		httpapi.WithLogger(logger.WithField("component", "http")),
	)

	return &services{
		Sessions:     sessions,
		Carts:        carts,
		Guard:        guard,
		Registration: gate,
		Gateways:     registry,
		Engine:       engine,
		HTTP:         api.Routes(),
	}
}
