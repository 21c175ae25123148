package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка отсутствующего магазина у корзины.
	ErrStoreRequired = errors.New("store_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка сложения сумм в разных валютах.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// Ошибка отрицательной цены.
	ErrPriceNegative = errors.New("price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match line items sum")
	ErrInvalidState   = errors.New("invalid order state")
	// ErrInvalidStateTransition — переход жизненного цикла не разрешён из текущего состояния.
	ErrInvalidStateTransition = errors.New("invalid order state transition")
	ErrLineItemIDRequired     = errors.New("line item id is required")
	ErrPurchasableRequired    = errors.New("purchased entity is required")

	// ErrDuplicateCart — у владельца уже есть открытая корзина в магазине.
	ErrDuplicateCart = errors.New("an open cart already exists for this store and owner")
	// ErrInvalidQuantity — количество должно быть положительным; удаление только через RemoveLineItem.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrCartClosed — корзина уже оформлена или отменена.
	ErrCartClosed = errors.New("cart is no longer open")
	// ErrEmptyOrder — заказ без позиций нельзя оформить.
	ErrEmptyOrder = errors.New("order has no line items")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	ErrOrderAlreadyExists   = errors.New("order already exists")
	ErrLineItemNotFound     = errors.New("line item not found")
	ErrVariationNotFound    = errors.New("purchasable entity not found")
	// ErrOrderNumberAssigned — номер заказа уже присвоен, повторно не выдаётся.
	ErrOrderNumberAssigned = errors.New("order number already assigned")
	ErrOrderNumberInvalid  = errors.New("order number must be set only for completed orders")
	ErrProfileLocked       = errors.New("profile is locked")

	ErrAccountNotFound = errors.New("account not found")
	// ErrEmailTaken — нарушение уникальности email на уровне хранилища.
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")

	// ErrPaymentDeclined — платёж отклонён шлюзом (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPaymentGatewayNotFound — выбран неизвестный платёжный шлюз.
	ErrPaymentGatewayNotFound = errors.New("payment gateway not found")
	ErrOrderIDRequired        = errors.New("order_id is required")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// AccessDeniedReason — правило, на котором сработал отказ в доступе.
type AccessDeniedReason string

const (
	AccessDeniedUnauthenticated   AccessDeniedReason = "unauthenticated"
	AccessDeniedNotOwner          AccessDeniedReason = "not_owner"
	AccessDeniedMissingCapability AccessDeniedReason = "missing_capability"
	AccessDeniedEmptyOrder        AccessDeniedReason = "empty_order"
)

// AccessDenied — отказ в доступе к заказу. Наружу отдаётся как 403 без причины.
type AccessDenied struct {
	Reason AccessDeniedReason
}

func (e *AccessDenied) Error() string {
	return "access denied: " + string(e.Reason)
}

// IsAccessDenied возвращает AccessDenied из цепочки ошибок.
func IsAccessDenied(err error) (*AccessDenied, bool) {
	var denied *AccessDenied
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}

// ValidationFailed — ошибка конкретного поля формы.
type ValidationFailed struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationFailed) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors собирает ошибки полей одного шага.
type ValidationErrors []ValidationFailed

// Add добавляет ошибку поля.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationFailed{Field: field, Message: message})
}

// Merge дописывает ошибки другого набора.
func (v *ValidationErrors) Merge(other ValidationErrors) {
	*v = append(*v, other...)
}

func (v ValidationErrors) Empty() bool {
	return len(v) == 0
}

// Message возвращает сообщение для поля, если оно есть.
func (v ValidationErrors) Message(field string) (string, bool) {
	for _, e := range v {
		if e.Field == field {
			return e.Message, true
		}
	}
	return "", false
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// RegistrationErrorKind — вид ошибки регистрации, порядок проверок фиксирован.
type RegistrationErrorKind string

const (
	RegistrationEmailMandatory         RegistrationErrorKind = "email_mandatory"
	RegistrationInvalidEmailCharacters RegistrationErrorKind = "invalid_email_characters"
	RegistrationEmailAlreadyRegistered RegistrationErrorKind = "email_already_registered"
	RegistrationPasswordMandatory      RegistrationErrorKind = "password_mandatory"
	RegistrationPasswordMismatch       RegistrationErrorKind = "password_mismatch"
)

// Message возвращает текст, который видит покупатель.
func (k RegistrationErrorKind) Message() string {
	switch k {
	case RegistrationEmailMandatory:
		return "Email is mandatory."
	case RegistrationInvalidEmailCharacters:
		return "The email you have used contains bad characters."
	case RegistrationEmailAlreadyRegistered:
		return "A user is already registered with this email."
	case RegistrationPasswordMandatory:
		return "Password is mandatory."
	case RegistrationPasswordMismatch:
		return "The specified passwords do not match."
	default:
		return "Registration failed."
	}
}

// RegistrationError — ошибка регистрации при оформлении заказа.
type RegistrationError struct {
	Kind RegistrationErrorKind
}

func (e *RegistrationError) Error() string {
	return e.Kind.Message()
}

// IsRegistrationError возвращает RegistrationError из цепочки ошибок.
func IsRegistrationError(err error) (*RegistrationError, bool) {
	var regErr *RegistrationError
	if errors.As(err, &regErr) {
		return regErr, true
	}
	return nil, false
}
