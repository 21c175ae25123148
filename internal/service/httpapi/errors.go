package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/cart"
)

type errorResponse struct {
	Error  string                  `json:"error"`
	Fields domain.ValidationErrors `json:"fields,omitempty"`
}

func mapErrorToStatus(err error) int {
	var verrs domain.ValidationErrors
	var vfail domain.ValidationFailed
	switch {
	case errors.As(err, new(*domain.AccessDenied)):
		return http.StatusForbidden
	case errors.As(err, &verrs), errors.As(err, &vfail), errors.As(err, new(*domain.RegistrationError)):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrLineItemNotFound),
		errors.Is(err, domain.ErrVariationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateCart),
		errors.Is(err, domain.ErrOrderVersionConflict),
		errors.Is(err, domain.ErrCartClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrStoreRequired),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, cart.ErrSessionRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError отвечает статусом по ошибке. Причина отказа в доступе и
// внутренние ошибки наружу не отдаются.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToStatus(err)
	body := errorResponse{Error: http.StatusText(status)}

	switch status {
	case http.StatusForbidden:
		if denied, ok := domain.IsAccessDenied(err); ok {
			h.logger.WithFields(log.Fields{"path": r.URL.Path, "reason": denied.Reason}).Info("access denied")
		}
	case http.StatusInternalServerError:
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	case http.StatusUnprocessableEntity:
		var verrs domain.ValidationErrors
		if errors.As(err, &verrs) {
			body.Fields = verrs
		} else {
			body.Error = err.Error()
		}
	default:
		body.Error = err.Error()
	}
	respondJSON(w, status, body)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
