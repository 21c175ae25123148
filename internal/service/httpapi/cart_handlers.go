package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/cart"
)

// EmptyCartMessage показывается вместо пустой корзины.
const EmptyCartMessage = "Your shopping cart is empty."

type lineItemResponse struct {
	ID          string            `json:"id"`
	VariationID string            `json:"variation_id"`
	Title       string            `json:"title"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Quantity    int32             `json:"quantity"`
	UnitPrice   domain.Price      `json:"unit_price"`
	TotalPrice  domain.Price      `json:"total_price"`
}

type cartResponse struct {
	OrderID string             `json:"order_id,omitempty"`
	StoreID string             `json:"store_id"`
	State   domain.OrderState  `json:"state,omitempty"`
	Count   int                `json:"count"`
	Total   domain.Price       `json:"total"`
	Items   []lineItemResponse `json:"items"`
	Message string             `json:"message,omitempty"`
}

func toCartResponse(order domain.Order) cartResponse {
	resp := cartResponse{
		OrderID: order.ID,
		StoreID: order.StoreID,
		State:   order.State,
		Count:   order.CountItems(),
		Total:   order.Total,
		Items:   make([]lineItemResponse, 0, len(order.LineItems)),
	}
	for _, li := range order.LineItems {
		resp.Items = append(resp.Items, lineItemResponse{
			ID:          li.ID,
			VariationID: li.PurchasedEntity.ID,
			Title:       li.Title,
			Attributes:  li.Attributes,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			TotalPrice:  li.TotalPrice,
		})
	}
	if resp.Count == 0 {
		resp.Message = EmptyCartMessage
	}
	return resp
}

func (h *Handler) storeID(r *http.Request) string {
	if id := strings.TrimSpace(r.FormValue("store_id")); id != "" {
		return id
	}
	return h.defaultStore
}

// getCart: бейдж и содержимое корзины. Без корзины 404 с сообщением о пустой корзине.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	storeID := h.storeID(r)
	order, found, err := h.carts.GetCart(r.Context(), storeID, cart.OwnerOf(actor))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !found {
		respondJSON(w, http.StatusNotFound, cartResponse{StoreID: storeID, Items: []lineItemResponse{}, Message: EmptyCartMessage})
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(order))
}

// addToCart: кнопка "Add to cart": при необходимости создаёт сессию и корзину.
func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid form"})
		return
	}
	quantity, err := parseQuantity(r.PostForm.Get("quantity"), 1)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	variationID := strings.TrimSpace(r.PostForm.Get("variation_id"))
	if variationID == "" {
		h.respondError(w, r, domain.ValidationErrors{{Field: "variation_id", Message: "Variation is required."}})
		return
	}

	actor, err := h.actor(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	actor, err = h.ensureSession(w, r, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	ctx := r.Context()
	order, err := h.carts.GetOrCreateCart(ctx, r.PostForm.Get("order_type"), h.storeID(r), cart.OwnerOf(actor))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if _, err := h.carts.AddEntity(ctx, order.ID, variationID, quantity, formAttributes(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	order, err = h.orders.Get(ctx, order.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(order))
}

func (h *Handler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid form"})
		return
	}
	quantity, err := parseQuantity(r.PostForm.Get("quantity"), 0)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	orderID := chi.URLParam(r, "orderID")
	if err := h.authorizeCart(r, orderID); err != nil {
		h.respondError(w, r, err)
		return
	}
	order, err := h.carts.UpdateQuantity(r.Context(), orderID, chi.URLParam(r, "itemID"), quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(order))
}

func (h *Handler) removeLineItem(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if err := h.authorizeCart(r, orderID); err != nil {
		h.respondError(w, r, err)
		return
	}
	order, err := h.carts.RemoveLineItem(r.Context(), orderID, chi.URLParam(r, "itemID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(order))
}

// authorizeCart пускает к корзине её владельца или сессию, в которой она создана.
func (h *Handler) authorizeCart(r *http.Request, orderID string) error {
	actor, err := h.actor(r)
	if err != nil {
		return err
	}
	order, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		return err
	}
	switch {
	case order.OwnerID != "" && order.OwnerID == actor.AccountID:
		return nil
	case order.OwnerID == "" && actor.Associated(order.ID):
		return nil
	case !actor.Authenticated() && !actor.Associated(order.ID):
		return &domain.AccessDenied{Reason: domain.AccessDeniedUnauthenticated}
	default:
		return &domain.AccessDenied{Reason: domain.AccessDeniedNotOwner}
	}
}

func parseQuantity(raw string, fallback int32) (int32, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if fallback > 0 {
			return fallback, nil
		}
		return 0, domain.ErrInvalidQuantity
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidQuantity, raw)
	}
	if n <= 0 {
		return 0, domain.ErrInvalidQuantity
	}
	return int32(n), nil
}

// formAttributes собирает поля вида attributes[size]=M.
func formAttributes(r *http.Request) map[string]string {
	var attrs map[string]string
	for key, values := range r.PostForm {
		name, ok := strings.CutPrefix(key, "attributes[")
		if !ok || !strings.HasSuffix(name, "]") || len(values) == 0 {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[strings.TrimSuffix(name, "]")] = values[0]
	}
	return attrs
}
