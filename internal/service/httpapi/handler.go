// Package httpapi публикует корзину и оформление заказа по HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/cart"
	"github.com/vladislavdragonenkov/commerce/internal/service/checkout"
)

// CartService: операции корзины, нужные HTTP-слою.
type CartService interface {
	GetCart(ctx context.Context, storeID string, owner cart.Owner) (domain.Order, bool, error)
	GetOrCreateCart(ctx context.Context, orderType, storeID string, owner cart.Owner) (domain.Order, error)
	AddEntity(ctx context.Context, cartID, variationID string, quantity int32, attributes map[string]string) (domain.LineItem, error)
	UpdateQuantity(ctx context.Context, cartID, lineItemID string, quantity int32) (domain.Order, error)
	RemoveLineItem(ctx context.Context, cartID, lineItemID string) (domain.Order, error)
}

// CheckoutService: движок оформления.
type CheckoutService interface {
	Start(ctx context.Context, actor domain.Actor, orderID string) (checkout.View, error)
	View(ctx context.Context, actor domain.Actor, orderID, requestedStep string) (checkout.View, error)
	Submit(ctx context.Context, actor domain.Actor, orderID, stepID string, in checkout.Input) (checkout.Result, error)
}

// SessionService: сессии покупателей.
type SessionService interface {
	Current(ctx context.Context, token string) (domain.Actor, error)
	Ensure(ctx context.Context, actor domain.Actor) (domain.Actor, error)
	Logout(ctx context.Context, token string) error
}

// Handler собирает маршруты корзины и оформления.
type Handler struct {
	carts        CartService
	checkout     CheckoutService
	sessions     SessionService
	orders       domain.OrderRepository
	defaultStore string
	secureCookie bool
	idempotency  func(http.Handler) http.Handler
	metrics      *metrics.HTTPMetrics
	logger       *log.Entry
}

// Option настраивает Handler.
type Option func(*Handler)

// WithDefaultStore: магазин для запросов без store_id.
func WithDefaultStore(storeID string) Option {
	return func(h *Handler) { h.defaultStore = storeID }
}

// WithIdempotency подключает защиту от повторной отправки форм.
func WithIdempotency(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.idempotency = mw }
}

func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithSecureCookie выставляет Secure у cookie сессии (за TLS).
func WithSecureCookie(secure bool) Option {
	return func(h *Handler) { h.secureCookie = secure }
}

// NewHandler создаёт HTTP-обработчик. orders нужен для проверки владельца корзины.
func NewHandler(carts CartService, engine CheckoutService, sessions SessionService, orders domain.OrderRepository, opts ...Option) *Handler {
	h := &Handler{
		carts:    carts,
		checkout: engine,
		sessions: sessions,
		orders:   orders,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = log.WithField("component", "http")
	}
	return h
}

// Routes возвращает chi-роутер со всеми маршрутами.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/cart", h.getCart)
	r.Get("/checkout/{orderID}", h.viewCheckout)
	r.Get("/checkout/{orderID}/{step}", h.viewCheckout)

	r.Group(func(r chi.Router) {
		if h.idempotency != nil {
			r.Use(h.idempotency)
		}
		r.Post("/cart/add", h.addToCart)
		r.Post("/cart/{orderID}/items/{itemID}", h.updateQuantity)
		r.Delete("/cart/{orderID}/items/{itemID}", h.removeLineItem)
		r.Post("/cart/{orderID}/checkout", h.startCheckout)
		r.Post("/checkout/{orderID}/{step}", h.submitCheckout)
		r.Post("/user/logout", h.logout)
	})
	return r
}

// logRequests пишет access-лог через logrus и снимает метрики по шаблону маршрута.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		h.metrics.Observe(r.Method, route, status, elapsed)

		entry := h.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	})
}
