package httpapi

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/checkout"
)

func checkoutURL(orderID, step string) string {
	return "/checkout/" + url.PathEscape(orderID) + "/" + url.PathEscape(step)
}

// startCheckout: кнопка "Checkout" в корзине.
func (h *Handler) startCheckout(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	view, err := h.checkout.Start(r.Context(), actor, chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	http.Redirect(w, r, checkoutURL(view.OrderID, view.Step), http.StatusSeeOther)
}

// viewCheckout показывает текущий шаг. Устаревший или чужой шаг перенаправляется на канонический.
func (h *Handler) viewCheckout(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	requested := chi.URLParam(r, "step")
	view, err := h.checkout.View(r.Context(), actor, chi.URLParam(r, "orderID"), requested)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if view.Redirect {
		http.Redirect(w, r, checkoutURL(view.OrderID, view.Step), http.StatusSeeOther)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// submitCheckout применяет форму шага: 303 на следующий шаг или 422 с ошибками полей.
func (h *Handler) submitCheckout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid form"})
		return
	}
	actor, err := h.actor(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	in := make(checkout.Input, len(r.PostForm))
	for key := range r.PostForm {
		in[key] = r.PostForm.Get(key)
	}

	res, err := h.checkout.Submit(r.Context(), actor, chi.URLParam(r, "orderID"), chi.URLParam(r, "step"), in)
	if token := res.Actor.Session.Token; token != "" && token != actor.Session.Token {
		h.setSession(w, res.Actor.Session)
	}

	var verrs domain.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		view := res.View
		view.Errors = verrs
		respondJSON(w, http.StatusUnprocessableEntity, view)
	case err != nil:
		h.respondError(w, r, err)
	default:
		http.Redirect(w, r, checkoutURL(res.View.OrderID, res.View.Step), http.StatusSeeOther)
	}
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), sessionToken(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}
