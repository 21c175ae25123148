// Package cart управляет содержимым корзин: позиции, количества, привязка к сессии.
package cart

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/lock"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 10 * time.Millisecond
)

// ErrSessionRequired: анонимной корзине нужен токен сессии.
var ErrSessionRequired = errors.New("session token is required for anonymous carts")

// Owner: владелец корзины: аккаунт или анонимная сессия.
type Owner struct {
	AccountID    string
	SessionToken string
}

// OwnerOf строит владельца корзины из актора запроса.
func OwnerOf(actor domain.Actor) Owner {
	return Owner{AccountID: actor.AccountID, SessionToken: actor.Session.Token}
}

// Manager изменяет корзины. Все изменения одного заказа сериализуются.
type Manager struct {
	orders     domain.OrderRepository
	catalog    domain.Catalog
	sessions   domain.SessionRepository
	timeline   domain.TimelineRepository
	locks      *lock.Keyed
	metrics    *metrics.CheckoutMetrics
	logger     *log.Entry
	tracer     trace.Tracer
	now        func() time.Time
	maxRetries int
	retryDelay time.Duration
}

// Option настраивает Manager.
type Option func(*Manager)

func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithLocks задаёт общий с checkout набор блокировок заказов.
func WithLocks(locks *lock.Keyed) Option {
	return func(m *Manager) { m.locks = locks }
}

func WithMetrics(metrics *metrics.CheckoutMetrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(m *Manager) { m.timeline = timeline }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager создаёт менеджер корзин.
func NewManager(orders domain.OrderRepository, catalog domain.Catalog, sessions domain.SessionRepository, opts ...Option) *Manager {
	m := &Manager{
		orders:     orders,
		catalog:    catalog,
		sessions:   sessions,
		tracer:     otel.Tracer("commerce/cart"),
		now:        func() time.Time { return time.Now().UTC() },
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.WithField("component", "cart-manager")
	}
	if m.locks == nil {
		m.locks = lock.NewKeyed()
	}
	return m
}

// CreateCart создаёт открытую корзину или возвращает ErrDuplicateCart.
func (m *Manager) CreateCart(ctx context.Context, orderType, storeID string, owner Owner) (order domain.Order, err error) {
	ctx, span := m.startSpan(ctx, "cart.CreateCart", attribute.String("store.id", storeID))
	defer func() { endSpan(span, err) }()

	if storeID == "" {
		return domain.Order{}, domain.ErrStoreRequired
	}

	if owner.AccountID != "" {
		unlock := m.locks.Lock("account:" + owner.AccountID)
		defer unlock()

		if _, err := m.orders.FindOpenCart(ctx, storeID, owner.AccountID); err == nil {
			return domain.Order{}, domain.ErrDuplicateCart
		} else if !errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, fmt.Errorf("find open cart: %w", err)
		}

		order = domain.NewCart(uuid.NewString(), orderType, storeID, owner.AccountID, m.now())
		if err := m.orders.Create(ctx, order); err != nil {
			return domain.Order{}, err
		}
		m.afterCreate(ctx, order)
		return order, nil
	}

	if owner.SessionToken == "" {
		return domain.Order{}, ErrSessionRequired
	}

	unlock := m.locks.Lock("session:" + owner.SessionToken)
	defer unlock()

	session, err := m.loadSession(ctx, owner.SessionToken)
	if err != nil {
		return domain.Order{}, err
	}
	if _, found, err := m.findSessionCart(ctx, session, storeID); err != nil {
		return domain.Order{}, err
	} else if found {
		return domain.Order{}, domain.ErrDuplicateCart
	}

	order = domain.NewCart(uuid.NewString(), orderType, storeID, "", m.now())
	if err := m.orders.Create(ctx, order); err != nil {
		return domain.Order{}, err
	}
	session.AddCart(order.ID)
	if err := m.sessions.Save(ctx, session); err != nil {
		return domain.Order{}, fmt.Errorf("attach cart to session: %w", err)
	}

	m.afterCreate(ctx, order)
	return order, nil
}

// GetCart возвращает открытую корзину владельца в магазине; false, если корзины нет.
func (m *Manager) GetCart(ctx context.Context, storeID string, owner Owner) (domain.Order, bool, error) {
	if owner.AccountID != "" {
		order, err := m.orders.FindOpenCart(ctx, storeID, owner.AccountID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, false, nil
		}
		if err != nil {
			return domain.Order{}, false, err
		}
		return order, true, nil
	}

	if owner.SessionToken == "" {
		return domain.Order{}, false, nil
	}
	session, err := m.sessions.Get(ctx, owner.SessionToken)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, err
	}
	return m.findSessionCart(ctx, session, storeID)
}

// GetOrCreateCart используется кнопкой "Add to cart".
func (m *Manager) GetOrCreateCart(ctx context.Context, orderType, storeID string, owner Owner) (domain.Order, error) {
	order, found, err := m.GetCart(ctx, storeID, owner)
	if err != nil {
		return domain.Order{}, err
	}
	if found {
		return order, nil
	}

	order, err = m.CreateCart(ctx, orderType, storeID, owner)
	if errors.Is(err, domain.ErrDuplicateCart) {
		// Параллельный запрос успел создать корзину.
		order, found, err = m.GetCart(ctx, storeID, owner)
		if err == nil && !found {
			err = domain.ErrOrderNotFound
		}
	}
	return order, err
}

// AddEntity добавляет вариацию в корзину, объединяя одинаковые позиции.
func (m *Manager) AddEntity(ctx context.Context, cartID, variationID string, quantity int32, attributes map[string]string) (item domain.LineItem, err error) {
	ctx, span := m.startSpan(ctx, "cart.AddEntity", attribute.String("order.id", cartID), attribute.String("variation.id", variationID))
	defer func() {
		endSpan(span, err)
		m.metrics.RecordCartMutation("add", err)
	}()

	if quantity <= 0 {
		return domain.LineItem{}, domain.ErrInvalidQuantity
	}
	variation, err := m.catalog.GetVariation(ctx, variationID)
	if err != nil {
		return domain.LineItem{}, err
	}

	_, err = m.mutate(ctx, cartID, func(order *domain.Order) error {
		if !variation.AvailableIn(order.StoreID) {
			return domain.ErrVariationNotFound
		}
		if order.HasItems() && order.Currency() != variation.Price.Currency {
			return domain.ErrCurrencyMismatch
		}

		ref := variation.Ref()
		if idx, ok := order.FindMatchingLineItem(ref, attributes); ok {
			li := &order.LineItems[idx]
			if err := li.SetQuantity(li.Quantity + quantity); err != nil {
				return err
			}
		} else {
			order.LineItems = append(order.LineItems, domain.LineItem{
				ID:              uuid.NewString(),
				Type:            domain.LineItemTypeProductVariation,
				PurchasedEntity: ref,
				Title:           variation.Title,
				Attributes:      maps.Clone(attributes),
				Quantity:        quantity,
				UnitPrice:       variation.Price,
				CreatedAt:       m.now(),
			})
		}
		if err := order.RecalculateTotal(); err != nil {
			return err
		}

		idx, _ := order.FindMatchingLineItem(ref, attributes)
		item = order.LineItems[idx]
		return nil
	})
	if err != nil {
		return domain.LineItem{}, err
	}

	m.logger.WithFields(log.Fields{
		"order_id":     cartID,
		"variation_id": variationID,
		"quantity":     item.Quantity,
	}).Debug("entity added to cart")
	return item, nil
}

// UpdateQuantity меняет количество позиции. Ноль и отрицательные значения запрещены.
func (m *Manager) UpdateQuantity(ctx context.Context, cartID, lineItemID string, quantity int32) (order domain.Order, err error) {
	ctx, span := m.startSpan(ctx, "cart.UpdateQuantity", attribute.String("order.id", cartID))
	defer func() {
		endSpan(span, err)
		m.metrics.RecordCartMutation("update_quantity", err)
	}()

	if quantity <= 0 {
		return domain.Order{}, domain.ErrInvalidQuantity
	}

	return m.mutate(ctx, cartID, func(order *domain.Order) error {
		idx, ok := order.FindLineItem(lineItemID)
		if !ok {
			return domain.ErrLineItemNotFound
		}
		if err := order.LineItems[idx].SetQuantity(quantity); err != nil {
			return err
		}
		return order.RecalculateTotal()
	})
}

// RemoveLineItem удаляет позицию. Пустая корзина остаётся, но оформить её нельзя.
func (m *Manager) RemoveLineItem(ctx context.Context, cartID, lineItemID string) (order domain.Order, err error) {
	ctx, span := m.startSpan(ctx, "cart.RemoveLineItem", attribute.String("order.id", cartID))
	defer func() {
		endSpan(span, err)
		m.metrics.RecordCartMutation("remove", err)
	}()

	return m.mutate(ctx, cartID, func(order *domain.Order) error {
		idx, ok := order.FindLineItem(lineItemID)
		if !ok {
			return domain.ErrLineItemNotFound
		}
		order.RemoveLineItem(idx)
		return order.RecalculateTotal()
	})
}

// EmptyCart удаляет все позиции корзины.
func (m *Manager) EmptyCart(ctx context.Context, cartID string) (order domain.Order, err error) {
	defer func() { m.metrics.RecordCartMutation("empty", err) }()

	return m.mutate(ctx, cartID, func(order *domain.Order) error {
		order.LineItems = nil
		return order.RecalculateTotal()
	})
}

// CountItems возвращает количество единиц товара в корзине (для бейджа).
func (m *Manager) CountItems(order domain.Order) int {
	return order.CountItems()
}

// AssignCarts передаёт анонимные корзины сессии аккаунту после входа.
// Корзины из except пропускаются: ими в этот момент владеет вызывающий.
func (m *Manager) AssignCarts(ctx context.Context, session domain.Session, accountID string, except ...string) error {
	skip := make(map[string]bool, len(except))
	for _, id := range except {
		skip[id] = true
	}

	var errs []error
	for _, orderID := range session.CartOrderIDs {
		if skip[orderID] {
			continue
		}
		_, err := m.mutate(ctx, orderID, func(order *domain.Order) error {
			if order.OwnerID != "" {
				return nil
			}
			order.OwnerID = accountID
			return nil
		})
		m.metrics.RecordCartMutation("assign", err)
		switch {
		case err == nil:
			m.appendTimeline(ctx, orderID, domain.TimelineCartAssigned, accountID)
		case errors.Is(err, domain.ErrDuplicateCart), errors.Is(err, domain.ErrCartClosed), errors.Is(err, domain.ErrOrderNotFound):
			m.logger.WithError(err).WithField("order_id", orderID).Debug("cart not assigned")
		default:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// mutate загружает корзину, применяет fn и сохраняет с повтором при конфликте версий.
func (m *Manager) mutate(ctx context.Context, cartID string, fn func(order *domain.Order) error) (domain.Order, error) {
	unlock := m.locks.Lock(cartID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		order, err := m.orders.Get(ctx, cartID)
		if err != nil {
			return domain.Order{}, err
		}
		if !order.IsOpenCart() {
			return domain.Order{}, domain.ErrCartClosed
		}
		if err := fn(&order); err != nil {
			return domain.Order{}, err
		}
		order.UpdatedAt = m.now()

		err = m.orders.Save(ctx, order)
		if err == nil {
			order.Version++
			return order, nil
		}
		if !domain.IsVersionConflict(err) || attempt >= m.maxRetries-1 {
			return domain.Order{}, err
		}

		m.logger.WithFields(log.Fields{
			"order_id": cartID,
			"attempt":  attempt + 1,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		select {
		case <-ctx.Done():
			return domain.Order{}, ctx.Err()
		case <-time.After(m.retryDelay * time.Duration(1<<uint(attempt))):
		}
	}
}

func (m *Manager) afterCreate(ctx context.Context, order domain.Order) {
	m.metrics.RecordCartCreated()
	m.appendTimeline(ctx, order.ID, domain.TimelineCartCreated, order.StoreID)
	m.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"store_id": order.StoreID,
		"owner_id": order.OwnerID,
	}).Info("cart created")
}

func (m *Manager) appendTimeline(ctx context.Context, orderID, eventType, reason string) {
	if m.timeline == nil {
		return
	}
	event := domain.TimelineEvent{OrderID: orderID, Type: eventType, Reason: reason, Occurred: m.now()}
	if err := m.timeline.Append(ctx, event); err != nil {
		m.logger.WithError(err).WithField("order_id", orderID).Warn("failed to append timeline event")
	}
}

func (m *Manager) loadSession(ctx context.Context, token string) (domain.Session, error) {
	session, err := m.sessions.Get(ctx, token)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.Session{Token: token, CreatedAt: m.now()}, nil
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

// findSessionCart ищет открытую анонимную корзину магазина среди корзин сессии.
func (m *Manager) findSessionCart(ctx context.Context, session domain.Session, storeID string) (domain.Order, bool, error) {
	for _, orderID := range session.CartOrderIDs {
		order, err := m.orders.Get(ctx, orderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			continue
		}
		if err != nil {
			return domain.Order{}, false, err
		}
		if order.StoreID == storeID && order.IsOpenCart() && order.OwnerID == "" {
			return order, true, nil
		}
	}
	return domain.Order{}, false, nil
}

func (m *Manager) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
