package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/lock"
)

// AccessChecker решает, пускать ли актора к заказу.
type AccessChecker interface {
	Check(actor domain.Actor, order domain.Order) error
}

// SessionStore: операции с сессией, нужные оформлению.
type SessionStore interface {
	Current(ctx context.Context, token string) (domain.Actor, error)
	Login(ctx context.Context, token, accountID string) (domain.Actor, error)
	Save(ctx context.Context, session domain.Session) error
}

// CartAssigner передаёт анонимные корзины аккаунту.
type CartAssigner interface {
	AssignCarts(ctx context.Context, session domain.Session, accountID string, except ...string) error
}

// Engine ведёт заказ по шагам Flow. Позиция хранится в заказе и
// выводится заново при каждом запросе.
type Engine struct {
	flow     *Flow
	orders   domain.OrderRepository
	sequence domain.OrderNumberSequence
	guard    AccessChecker
	sessions SessionStore
	carts    CartAssigner
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	locks    *lock.Keyed
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry
	tracer   trace.Tracer
	now      func() time.Time
}

// Option настраивает Engine.
type Option func(*Engine)

func WithCartAssigner(carts CartAssigner) Option {
	return func(e *Engine) { e.carts = carts }
}

// WithOutbox включает публикацию order.placed через transactional outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(e *Engine) { e.outbox = outbox }
}

func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(e *Engine) { e.timeline = timeline }
}

// WithLocks задаёт общий с менеджером корзин набор блокировок.
func WithLocks(locks *lock.Keyed) Option {
	return func(e *Engine) { e.locks = locks }
}

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine создаёт движок оформления.
func NewEngine(flow *Flow, orders domain.OrderRepository, sequence domain.OrderNumberSequence, guard AccessChecker, sessions SessionStore, opts ...Option) *Engine {
	e := &Engine{
		flow:     flow,
		orders:   orders,
		sequence: sequence,
		guard:    guard,
		sessions: sessions,
		tracer:   otel.Tracer("commerce/checkout"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.WithField("component", "checkout-engine")
	}
	if e.locks == nil {
		e.locks = lock.NewKeyed()
	}
	return e
}

// Flow возвращает сценарий движка.
func (e *Engine) Flow() *Flow {
	return e.flow
}

// Start переводит корзину в оформление и возвращает первый видимый шаг.
// Повторный вызов для заказа в оформлении просто показывает текущий шаг.
func (e *Engine) Start(ctx context.Context, actor domain.Actor, orderID string) (view View, err error) {
	ctx, span := e.tracer.Start(ctx, "checkout.Start", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { endSpan(span, err) }()

	unlock := e.locks.Lock(orderID)
	defer unlock()

	st, err := e.load(ctx, actor, orderID)
	if err != nil {
		return View{}, err
	}
	if err := e.ensureStarted(ctx, st); err != nil {
		return View{}, err
	}
	return e.render(st, e.flow.Canonical(st)), nil
}

// View показывает текущий шаг. Если запрошен другой шаг, Redirect = true.
func (e *Engine) View(ctx context.Context, actor domain.Actor, orderID, requestedStep string) (view View, err error) {
	ctx, span := e.tracer.Start(ctx, "checkout.View", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("checkout.step", requestedStep),
	))
	defer func() { endSpan(span, err) }()

	unlock := e.locks.Lock(orderID)
	defer unlock()

	st, err := e.load(ctx, actor, orderID)
	if err != nil {
		return View{}, err
	}
	if err := e.ensureStarted(ctx, st); err != nil {
		return View{}, err
	}

	step := e.flow.Canonical(st)
	view = e.render(st, step)
	view.Redirect = requestedStep != "" && requestedStep != step.ID
	return view, nil
}

// Submit применяет форму шага. Ошибки полей возвращаются как
// domain.ValidationErrors вместе с Result для повторного показа.
func (e *Engine) Submit(ctx context.Context, actor domain.Actor, orderID, stepID string, in Input) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "checkout.Submit", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("checkout.step", stepID),
	))
	defer func() { endSpan(span, err) }()

	res, previous, err := e.submit(ctx, actor, orderID, stepID, in)
	if err != nil {
		return res, err
	}

	// Остальные корзины сессии переходят аккаунту уже без блокировки этого заказа.
	if previous != nil && e.carts != nil {
		if err := e.carts.AssignCarts(ctx, *previous, res.Actor.AccountID, orderID); err != nil {
			e.logger.WithError(err).WithField("order_id", orderID).Warn("failed to assign session carts")
		}
	}
	return res, nil
}

func (e *Engine) submit(ctx context.Context, actor domain.Actor, orderID, stepID string, in Input) (Result, *domain.Session, error) {
	started := e.now()

	unlock := e.locks.Lock(orderID)
	defer unlock()

	st, err := e.load(ctx, actor, orderID)
	if err != nil {
		return Result{}, nil, err
	}
	if err := e.ensureStarted(ctx, st); err != nil {
		return Result{}, nil, err
	}

	current := e.flow.Canonical(st)
	if stepID != current.ID || current.Final {
		view := e.render(st, current)
		view.Redirect = stepID != current.ID
		return Result{View: view, Actor: st.Actor}, nil, nil
	}

	original := st.Order.Clone()
	panes := current.visiblePanes(st)

	var verrs domain.ValidationErrors
	for _, p := range panes {
		verrs.Merge(p.Validate(ctx, st, in))
	}
	if !verrs.Empty() {
		return e.reject(st, current, verrs), nil, verrs
	}

	for _, p := range panes {
		if err := p.Apply(ctx, st, in); err != nil {
			var applyErrs domain.ValidationErrors
			if errors.As(err, &applyErrs) {
				st.Order = &original
				return e.reject(st, current, applyErrs), nil, applyErrs
			}
			return Result{}, nil, fmt.Errorf("apply %s: %w", p.ID(), err)
		}
	}

	var previous *domain.Session
	if st.login != nil {
		session := st.Actor.Session.Clone()
		if err := e.login(ctx, st); err != nil {
			e.warnRegisteredNotSaved(st, err)
			return Result{}, nil, err
		}
		previous = &session
	}
	completedStep := current.ID

	for {
		next, ok := e.flow.next(current.ID, st)
		if !ok {
			break
		}
		current = next
		if next.Auto {
			if err := e.runAuto(ctx, st, next); err != nil {
				var autoErrs domain.ValidationErrors
				if !errors.As(err, &autoErrs) {
					return Result{}, nil, err
				}
				back, _ := e.flow.Step(next.FailureStep)
				st.Order.CheckoutStep = back.ID
				if err := e.save(ctx, st); err != nil {
					return Result{}, nil, err
				}
				e.appendTimeline(ctx, st.Order.ID, domain.TimelineStepCompleted, completedStep)
				return e.reject(st, back, autoErrs), previous, autoErrs
			}
			continue
		}
		if next.Final {
			if err := e.complete(ctx, st); err != nil {
				return Result{}, nil, err
			}
		}
		break
	}

	st.Order.CheckoutStep = current.ID
	if err := e.save(ctx, st); err != nil {
		e.warnRegisteredNotSaved(st, err)
		return Result{}, nil, err
	}

	e.metrics.RecordStepCompleted(completedStep, e.now().Sub(started))
	e.appendTimeline(ctx, st.Order.ID, domain.TimelineStepCompleted, completedStep)
	if st.payment != nil {
		e.appendTimeline(ctx, st.Order.ID, domain.TimelineStepCompleted,
			fmt.Sprintf("%s:%s:%s", StepPayment, st.payment.Gateway, st.payment.Status))
	}
	if st.Order.State == domain.OrderStateCompleted {
		e.afterComplete(ctx, st)
	}

	e.logger.WithFields(log.Fields{
		"order_id": st.Order.ID,
		"step":     completedStep,
		"next":     current.ID,
	}).Debug("checkout step submitted")

	view := e.render(st, current)
	view.Messages = st.messages
	return Result{View: view, Actor: st.Actor}, previous, nil
}

// load читает заказ и проверяет доступ.
func (e *Engine) load(ctx context.Context, actor domain.Actor, orderID string) (*State, error) {
	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := e.guard.Check(actor, order); err != nil {
		return nil, err
	}
	return &State{Order: &order, Actor: actor}, nil
}

// ensureStarted выполняет переход cart → in_checkout.
func (e *Engine) ensureStarted(ctx context.Context, st *State) error {
	order := st.Order
	if order.State != domain.OrderStateCart {
		return nil
	}

	order.State = domain.OrderStateInCheckout
	order.CheckoutStep = e.flow.first(st).ID
	if order.Email == "" && st.Actor.Authenticated() {
		order.Email = st.Actor.Email
	}
	if st.Actor.IPAddress != "" {
		order.IPAddress = st.Actor.IPAddress
	}
	if err := e.save(ctx, st); err != nil {
		return fmt.Errorf("start checkout: %w", err)
	}

	e.metrics.RecordCheckoutStarted()
	e.appendTimeline(ctx, order.ID, domain.TimelineCheckoutStarted, order.CheckoutStep)
	e.enqueue(ctx, domain.EventCheckoutStarted, order.ID, domain.CheckoutStarted{
		OrderID:   order.ID,
		StoreID:   order.StoreID,
		OwnerID:   order.OwnerID,
		Total:     order.Total,
		StartedAt: order.UpdatedAt,
	})
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"store_id": order.StoreID,
		"step":     order.CheckoutStep,
	}).Info("checkout started")
	return nil
}

// warnRegisteredNotSaved: аккаунт уже создан панелью логина, а заказ остался на шаге login.
// Повторная регистрация получит EmailAlreadyRegistered, войти можно через форму входа.
func (e *Engine) warnRegisteredNotSaved(st *State, err error) {
	if st.login == nil || st.login.mode != domain.CheckoutModeRegistered {
		return
	}
	e.logger.WithError(err).WithFields(log.Fields{
		"order_id":   st.Order.ID,
		"account_id": st.login.accountID,
	}).Warn("account registered but checkout step was not saved")
}

// login авторизует актора, выбранного на панели логина, и привязывает к нему заказ.
func (e *Engine) login(ctx context.Context, st *State) error {
	actor, err := e.sessions.Login(ctx, st.Actor.Session.Token, st.login.accountID)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	actor.IPAddress = st.Actor.IPAddress
	st.Actor = actor

	order := st.Order
	order.CheckoutMode = st.login.mode
	order.Email = actor.Email
	if order.OwnerID == "" {
		order.OwnerID = actor.AccountID
		st.ownerAssigned = true
		if order.BillingProfile != nil && order.BillingProfile.OwnerID == "" {
			order.BillingProfile.OwnerID = actor.AccountID
		}
	}
	return nil
}

func (e *Engine) runAuto(ctx context.Context, st *State, step Step) error {
	for _, p := range step.visiblePanes(st) {
		if err := p.Apply(ctx, st, Input{}); err != nil {
			return err
		}
	}
	return nil
}

// complete присваивает номер. Для уже завершённого заказа номер не выдаётся повторно.
func (e *Engine) complete(ctx context.Context, st *State) error {
	if st.Order.State == domain.OrderStateCompleted {
		return nil
	}
	number, err := e.sequence.Next(ctx, st.Order.StoreID)
	if err != nil {
		return fmt.Errorf("next order number: %w", err)
	}
	if st.Actor.IPAddress != "" {
		st.Order.IPAddress = st.Actor.IPAddress
	}
	return st.Order.Complete(number, e.now())
}

func (e *Engine) afterComplete(ctx context.Context, st *State) {
	order := st.Order

	e.metrics.RecordOrderCompleted(order.PlacedAt.Sub(order.CreatedAt))
	e.appendTimeline(ctx, order.ID, domain.TimelineOrderPlaced, strconv.FormatInt(order.OrderNumber, 10))
	e.enqueue(ctx, domain.EventOrderPlaced, order.ID, domain.NewOrderPlaced(*order))

	if token := st.Actor.Session.Token; token != "" {
		current, err := e.sessions.Current(ctx, token)
		if err == nil && current.Session.Token != "" {
			session := current.Session
			session.MarkCompleted(order.ID)
			if err := e.sessions.Save(ctx, session); err != nil {
				e.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to update session after completion")
			} else {
				st.Actor.Session = session
			}
		}
	}

	e.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"store_id":     order.StoreID,
		"guest":        order.OwnerID == "",
	}).Info("order placed")
}

// save сохраняет заказ. Если привязка к аккаунту упирается в его другую
// открытую корзину, заказ остаётся привязанным только к сессии.
func (e *Engine) save(ctx context.Context, st *State) error {
	st.Order.UpdatedAt = e.now()
	err := e.orders.Save(ctx, *st.Order)
	if errors.Is(err, domain.ErrDuplicateCart) && st.ownerAssigned {
		e.logger.WithField("order_id", st.Order.ID).Warn("account already has an open cart, order stays session-bound")
		st.Order.OwnerID = ""
		st.ownerAssigned = false
		err = e.orders.Save(ctx, *st.Order)
	}
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	st.Order.Version++
	return nil
}

func (e *Engine) reject(st *State, step Step, verrs domain.ValidationErrors) Result {
	e.metrics.RecordValidationFailure(step.ID)
	e.logger.WithFields(log.Fields{
		"order_id": st.Order.ID,
		"step":     step.ID,
		"errors":   len(verrs),
	}).Debug("checkout step rejected")

	view := e.render(st, step)
	view.Errors = verrs
	return Result{View: view, Actor: st.Actor}
}

func (e *Engine) render(st *State, step Step) View {
	order := st.Order
	view := View{
		OrderID:     order.ID,
		Step:        step.ID,
		Label:       step.Label,
		NextLabel:   step.NextLabel,
		Steps:       e.flow.visibleSteps(st),
		Completed:   order.State == domain.OrderStateCompleted,
		OrderNumber: order.OrderNumber,
		Total:       order.Total,
	}
	for _, p := range step.visiblePanes(st) {
		view.Panes = append(view.Panes, p.Render(st))
	}
	return view
}

func (e *Engine) appendTimeline(ctx context.Context, orderID, eventType, reason string) {
	if e.timeline == nil {
		return
	}
	event := domain.TimelineEvent{OrderID: orderID, Type: eventType, Reason: reason, Occurred: e.now()}
	if err := e.timeline.Append(ctx, event); err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Warn("failed to append timeline event")
	}
}

// enqueue кладёт событие в outbox вместе с контекстом трассировки.
func (e *Engine) enqueue(ctx context.Context, eventType, orderID string, payload any) {
	if e.outbox == nil {
		return
	}
	body, err := domain.MarshalEvent(payload)
	if err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Error("failed to encode outbox event")
		return
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	msg := domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: domain.AggregateOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       body,
		Headers:       map[string]string(carrier),
	}
	if _, err := e.outbox.Enqueue(ctx, msg); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id":   orderID,
			"event_type": eventType,
		}).Error("failed to enqueue outbox event")
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
