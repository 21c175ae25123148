// Package acceptance прогоняет сценарии корзины и оформления заказа через HTTP API.
package acceptance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

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
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

const storeID = "default"

type cartBody struct {
	OrderID string `json:"order_id"`
	Count   int    `json:"count"`
	Total   struct {
		Number string `json:"number"`
	} `json:"total"`
	Items []struct {
		ID          string `json:"id"`
		VariationID string `json:"variation_id"`
		Quantity    int32  `json:"quantity"`
	} `json:"items"`
	Message string `json:"message"`
}

type acceptanceContext struct {
	router  http.Handler
	catalog *memory.Catalog
	orders  domain.OrderRepository
	gate    *registration.Gate

	token   string
	orderID string
	last    *httptest.ResponseRecorder
}

// reset собирает свежий стек на памяти: номера заказов в каждом сценарии начинаются с 1.
func (c *acceptanceContext) reset() {
	c.catalog = memory.NewCatalog()
	c.orders = memory.NewOrderRepository()
	c.token, c.orderID, c.last = "", "", nil

	registry := prometheus.NewRegistry()
	accounts := memory.NewAccountRepository()
	sessionRepo := memory.NewSessionRepository()
	locks := lock.NewKeyed()
	m := metrics.NewCheckoutMetricsWithRegisterer(registry)

	sessions := session.NewManager(sessionRepo, accounts)
	carts := cart.NewManager(c.orders, c.catalog, sessionRepo, cart.WithLocks(locks), cart.WithMetrics(m))
	c.gate = registration.NewGate(accounts, registration.WithCost(bcrypt.MinCost))
	flow := checkout.DefaultFlow(
		checkout.LoginPaneConfig{AllowGuestCheckout: true, AllowRegistration: true},
		c.gate,
		payment.NewRegistry(payment.NewManualGateway("manual", "Manual payment")),
	)
	engine := checkout.NewEngine(flow, c.orders, memory.NewOrderNumberSequence(), access.NewGuard(access.DefaultPermissions()), sessions,
		checkout.WithCartAssigner(carts),
		checkout.WithLocks(locks),
		checkout.WithMetrics(m),
	)

	idem := idempotency.NewMiddleware(memory.NewIdempotencyRepository(), idempotency.DefaultTTL, nil)
	c.router = httpapi.NewHandler(carts, engine, sessions, c.orders,
		httpapi.WithDefaultStore(storeID),
		httpapi.WithIdempotency(idem.Handler),
		httpapi.WithMetrics(metrics.NewHTTPMetricsWithRegisterer(registry)),
	).Routes()
}

func (c *acceptanceContext) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	body := ""
	if form != nil {
		body = form.Encode()
	}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.token != "" {
		req.Header.Set(httpapi.HeaderSessionToken, c.token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	if token := w.Header().Get(httpapi.HeaderSessionToken); token != "" {
		c.token = token
	}
	c.last = w
	return w
}

func (c *acceptanceContext) expectStatus(w *httptest.ResponseRecorder, want int) error {
	if w.Code != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
	return nil
}

func (c *acceptanceContext) currentCart() (cartBody, error) {
	var body cartBody
	w := c.do(http.MethodGet, "/cart", nil)
	if w.Code != http.StatusOK && w.Code != http.StatusNotFound {
		return body, fmt.Errorf("unexpected cart status %d: %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		return body, fmt.Errorf("decode cart: %w", err)
	}
	return body, nil
}

func (c *acceptanceContext) lineItemID(variationID string) (string, error) {
	body, err := c.currentCart()
	if err != nil {
		return "", err
	}
	for _, item := range body.Items {
		if item.VariationID == variationID {
			return item.ID, nil
		}
	}
	return "", fmt.Errorf("variation %s is not in the cart", variationID)
}

func (c *acceptanceContext) order() (domain.Order, error) {
	if c.orderID == "" {
		return domain.Order{}, fmt.Errorf("no order yet")
	}
	return c.orders.Get(context.Background(), c.orderID)
}

func (c *acceptanceContext) storeSells(store, variationID, price, currency string) error {
	p, err := domain.NewPrice(price, currency)
	if err != nil {
		return err
	}
	c.catalog.Put(domain.Variation{ID: variationID, Title: variationID, Price: p, StoreIDs: []string{store}, Active: true})
	return nil
}

func (c *acceptanceContext) accountExists(email string) error {
	_, err := c.gate.Register(context.Background(), email, "secret-pass", "secret-pass")
	return err
}

func (c *acceptanceContext) addToCart(qty int, variationID string) error {
	w := c.do(http.MethodPost, "/cart/add", url.Values{"variation_id": {variationID}, "quantity": {strconv.Itoa(qty)}})
	if err := c.expectStatus(w, http.StatusOK); err != nil {
		return err
	}
	var body cartBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		return err
	}
	c.orderID = body.OrderID
	return nil
}

func (c *acceptanceContext) setQuantity(variationID string, qty int) error {
	itemID, err := c.lineItemID(variationID)
	if err != nil {
		return err
	}
	c.do(http.MethodPost, "/cart/"+c.orderID+"/items/"+itemID, url.Values{"quantity": {strconv.Itoa(qty)}})
	return nil
}

func (c *acceptanceContext) removeFromCart(variationID string) error {
	itemID, err := c.lineItemID(variationID)
	if err != nil {
		return err
	}
	w := c.do(http.MethodDelete, "/cart/"+c.orderID+"/items/"+itemID, nil)
	if w.Code >= http.StatusBadRequest {
		return fmt.Errorf("remove failed with %d: %s", w.Code, w.Body.String())
	}
	return nil
}

func (c *acceptanceContext) submit(step string, form url.Values) {
	c.do(http.MethodPost, "/checkout/"+c.orderID+"/"+step, form)
}

func (c *acceptanceContext) startCheckout() error {
	return c.expectStatus(c.do(http.MethodPost, "/cart/"+c.orderID+"/checkout", url.Values{}), http.StatusSeeOther)
}

func (c *acceptanceContext) continueAsGuest() error {
	c.submit(checkout.StepLogin, url.Values{checkout.FieldOp: {checkout.OpContinueAsGuest}})
	return c.expectStatus(c.last, http.StatusSeeOther)
}

func (c *acceptanceContext) submitOrderInformation(email string) error {
	c.submit(checkout.StepOrderInformation, url.Values{
		checkout.FieldContactEmail:             {email},
		checkout.FieldContactEmailConfirm:      {email},
		checkout.BillingField("recipient"):     {"Jane Doe"},
		checkout.BillingField("address_line1"): {"1 Main St"},
		checkout.BillingField("locality"):      {"Springfield"},
		checkout.BillingField("postal_code"):   {"12345"},
		checkout.BillingField("country_code"):  {"US"},
		checkout.FieldPaymentGateway:           {"manual"},
	})
	return c.expectStatus(c.last, http.StatusSeeOther)
}

func (c *acceptanceContext) placeOrder() error {
	c.submit(checkout.StepReview, url.Values{})
	return c.expectStatus(c.last, http.StatusSeeOther)
}

func (c *acceptanceContext) register(email, password string) error {
	c.submit(checkout.StepLogin, url.Values{
		checkout.FieldOp:                {checkout.OpRegister},
		checkout.FieldRegisterMail:      {email},
		checkout.FieldRegisterPass:      {password},
		checkout.FieldRegisterPassAgain: {password},
	})
	return nil
}

func (c *acceptanceContext) responseStatus(want int) error {
	if c.last == nil {
		return fmt.Errorf("no request was made")
	}
	return c.expectStatus(c.last, want)
}

func (c *acceptanceContext) cartHasLineItem(items int, qty int) error {
	body, err := c.currentCart()
	if err != nil {
		return err
	}
	if len(body.Items) != items {
		return fmt.Errorf("expected %d line items, got %d", items, len(body.Items))
	}
	if got := int(body.Items[0].Quantity); got != qty {
		return fmt.Errorf("expected quantity %d, got %d", qty, got)
	}
	return nil
}

func (c *acceptanceContext) cartTotal(want string) error {
	body, err := c.currentCart()
	if err != nil {
		return err
	}
	if body.Total.Number != want {
		return fmt.Errorf("expected total %s, got %s", want, body.Total.Number)
	}
	return nil
}

func (c *acceptanceContext) cartIsEmpty() error {
	body, err := c.currentCart()
	if err != nil {
		return err
	}
	if body.Count != 0 || body.Message != httpapi.EmptyCartMessage {
		return fmt.Errorf("expected an empty cart, got %+v", body)
	}
	return nil
}

func (c *acceptanceContext) checkoutDenied() error {
	return c.expectStatus(c.do(http.MethodGet, "/checkout/"+c.orderID, nil), http.StatusForbidden)
}

func (c *acceptanceContext) orderState(want string) error {
	order, err := c.order()
	if err != nil {
		return err
	}
	if string(order.State) != want {
		return fmt.Errorf("expected state %s, got %s", want, order.State)
	}
	return nil
}

func (c *acceptanceContext) orderNumber(want int) error {
	w := c.do(http.MethodGet, "/checkout/"+c.orderID+"/"+checkout.StepComplete, nil)
	if err := c.expectStatus(w, http.StatusOK); err != nil {
		return err
	}
	var view checkout.View
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		return err
	}
	if !view.Completed || view.OrderNumber != int64(want) {
		return fmt.Errorf("expected completed order number %d, got %d (completed=%t)", want, view.OrderNumber, view.Completed)
	}
	return nil
}

func (c *acceptanceContext) orderHasNoOwner() error {
	order, err := c.order()
	if err != nil {
		return err
	}
	if order.OwnerID != "" {
		return fmt.Errorf("guest order must stay unowned, got %s", order.OwnerID)
	}
	return nil
}

func (c *acceptanceContext) redirectedTo(step string) error {
	if err := c.expectStatus(c.last, http.StatusSeeOther); err != nil {
		return err
	}
	want := "/checkout/" + c.orderID + "/" + step
	if got := c.last.Header().Get("Location"); got != want {
		return fmt.Errorf("expected redirect to %s, got %s", want, got)
	}
	return nil
}

func (c *acceptanceContext) checkoutReports(message string) error {
	var view checkout.View
	if err := json.Unmarshal(c.last.Body.Bytes(), &view); err != nil {
		return err
	}
	for _, e := range view.Errors {
		if e.Message == message {
			return nil
		}
	}
	return fmt.Errorf("message %q not found in %+v", message, view.Errors)
}

func (c *acceptanceContext) checkoutStep(want string) error {
	order, err := c.order()
	if err != nil {
		return err
	}
	if order.CheckoutStep != want {
		return fmt.Errorf("expected checkout step %s, got %s", want, order.CheckoutStep)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &acceptanceContext{}

	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given
	ctx.Step(`^the store "([^"]*)" sells "([^"]*)" for "([^"]*)" ([A-Z]{3})$`, tc.storeSells)
	ctx.Step(`^an account exists for "([^"]*)"$`, tc.accountExists)

	// When
	ctx.Step(`^I add (\d+) of "([^"]*)" to my cart$`, tc.addToCart)
	ctx.Step(`^I set the quantity of "([^"]*)" to (\d+)$`, tc.setQuantity)
	ctx.Step(`^I remove "([^"]*)" from my cart$`, tc.removeFromCart)
	ctx.Step(`^I start checkout$`, tc.startCheckout)
	ctx.Step(`^I continue as a guest$`, tc.continueAsGuest)
	ctx.Step(`^I submit order information for "([^"]*)"$`, tc.submitOrderInformation)
	ctx.Step(`^I place the order$`, tc.placeOrder)
	ctx.Step(`^I register with email "([^"]*)" and password "([^"]*)"$`, tc.register)

	// Then
	ctx.Step(`^the response status is (\d+)$`, tc.responseStatus)
	ctx.Step(`^my cart has (\d+) line items? with quantity (\d+)$`, tc.cartHasLineItem)
	ctx.Step(`^my cart total is "([^"]*)"$`, tc.cartTotal)
	ctx.Step(`^my cart is empty$`, tc.cartIsEmpty)
	ctx.Step(`^checkout of my order is denied$`, tc.checkoutDenied)
	ctx.Step(`^the order state is "([^"]*)"$`, tc.orderState)
	ctx.Step(`^the order number is (\d+)$`, tc.orderNumber)
	ctx.Step(`^the order has no owner$`, tc.orderHasNoOwner)
	ctx.Step(`^I am redirected to the "([^"]*)" step$`, tc.redirectedTo)
	ctx.Step(`^the checkout reports "([^"]*)"$`, tc.checkoutReports)
	ctx.Step(`^the checkout step is "([^"]*)"$`, tc.checkoutStep)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
