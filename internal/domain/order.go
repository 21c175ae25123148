package domain

import (
	"slices"
	"time"
)

// OrderTypeDefault: тип заказа по умолчанию.
const OrderTypeDefault = "default"

// OrderState описывает жизненный цикл заказа: cart → in_checkout → completed.
type OrderState string

const (
	// OrderStateCart — открытая корзина.
	OrderStateCart OrderState = "cart"
	// OrderStateInCheckout — покупатель проходит оформление.
	OrderStateInCheckout OrderState = "in_checkout"
	// OrderStateCompleted — заказ оформлен, номер присвоен.
	OrderStateCompleted OrderState = "completed"
	// OrderStateCanceled — заказ отменён.
	OrderStateCanceled OrderState = "canceled"
)

// Valid проверяет, что состояние входит в поддерживаемый набор.
func (s OrderState) Valid() bool {
	switch s {
	case OrderStateCart, OrderStateInCheckout, OrderStateCompleted, OrderStateCanceled:
		return true
	default:
		return false
	}
}

// Open: заказ ещё является корзиной покупателя.
func (s OrderState) Open() bool {
	return s == OrderStateCart || s == OrderStateInCheckout
}

// CheckoutMode фиксирует выбор, сделанный на шаге логина.
type CheckoutMode string

const (
	CheckoutModeNone       CheckoutMode = ""
	CheckoutModeGuest      CheckoutMode = "guest"
	CheckoutModeRegistered CheckoutMode = "registered"
	CheckoutModeLogin      CheckoutMode = "login"
)

// Order агрегирует корзину/заказ и его позиции.
type Order struct {
	ID      string
	Type    string
	StoreID string
	// OrderNumber присваивается только при завершении оформления, 0 означает «не присвоен».
	OrderNumber int64
	// OwnerID пустой для анонимной корзины и гостевого заказа.
	OwnerID        string
	Email          string
	IPAddress      string
	State          OrderState
	BillingProfile *Profile
	LineItems      []LineItem
	Total          Price
	// CheckoutStep: каноническая позиция в checkout flow, клиенту не доверяем.
	CheckoutStep   string
	CheckoutMode   CheckoutMode
	PaymentGateway string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PlacedAt       time.Time
}

// NewCart создаёт пустую корзину в состоянии cart.
func NewCart(id, orderType, storeID, ownerID string, now time.Time) Order {
	if orderType == "" {
		orderType = OrderTypeDefault
	}
	return Order{
		ID:        id,
		Type:      orderType,
		StoreID:   storeID,
		OwnerID:   ownerID,
		State:     OrderStateCart,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasItems: в заказе есть хотя бы одна позиция.
func (o *Order) HasItems() bool {
	return len(o.LineItems) > 0
}

// CountItems возвращает суммарное количество единиц товара.
func (o *Order) CountItems() int {
	total := 0
	for _, li := range o.LineItems {
		total += int(li.Quantity)
	}
	return total
}

// IsOpenCart: заказ ещё можно менять как корзину.
func (o *Order) IsOpenCart() bool {
	return o.State.Open()
}

// FindLineItem возвращает индекс позиции по ID.
func (o *Order) FindLineItem(id string) (int, bool) {
	idx := slices.IndexFunc(o.LineItems, func(li LineItem) bool { return li.ID == id })
	return idx, idx >= 0
}

// FindMatchingLineItem ищет позицию, с которой можно объединить покупку.
func (o *Order) FindMatchingLineItem(ref PurchasableRef, attributes map[string]string) (int, bool) {
	idx := slices.IndexFunc(o.LineItems, func(li LineItem) bool { return li.Matches(ref, attributes) })
	return idx, idx >= 0
}

// Currency возвращает валюту заказа (по первой позиции).
func (o *Order) Currency() string {
	if len(o.LineItems) == 0 {
		return o.Total.Currency
	}
	return o.LineItems[0].UnitPrice.Currency
}

// RecalculateTotal пересчитывает суммы позиций и итог заказа.
func (o *Order) RecalculateTotal() error {
	total := ZeroPrice(o.Currency())
	for i := range o.LineItems {
		o.LineItems[i].Recalculate()
		sum, err := total.Add(o.LineItems[i].TotalPrice)
		if err != nil {
			return err
		}
		total = sum
	}
	o.Total = total
	return nil
}

// RemoveLineItem удаляет позицию по индексу, корзина может стать пустой.
func (o *Order) RemoveLineItem(idx int) {
	o.LineItems = slices.Delete(o.LineItems, idx, idx+1)
}

// Complete переводит заказ в completed и присваивает номер.
// Номер присваивается ровно один раз.
func (o *Order) Complete(number int64, now time.Time) error {
	switch {
	case o.OrderNumber != 0:
		return ErrOrderNumberAssigned
	case o.State != OrderStateInCheckout:
		return ErrInvalidStateTransition
	case !o.HasItems():
		return ErrEmptyOrder
	case number <= 0:
		return ErrOrderNumberInvalid
	}

	o.OrderNumber = number
	o.State = OrderStateCompleted
	o.PlacedAt = now
	o.UpdatedAt = now
	if o.BillingProfile != nil {
		o.BillingProfile.Locked = true
	}
	return nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.StoreID == "" {
		errs = append(errs, ErrStoreRequired)
	}
	if !o.State.Valid() {
		errs = append(errs, ErrInvalidState)
	}
	if o.State == OrderStateInCheckout || o.State == OrderStateCompleted {
		if !o.HasItems() {
			errs = append(errs, ErrEmptyOrder)
		}
	}
	if (o.State == OrderStateCompleted) != (o.OrderNumber != 0) {
		errs = append(errs, ErrOrderNumberInvalid)
	}

	total := ZeroPrice(o.Currency())
	for _, li := range o.LineItems {
		if err := li.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		sum, err := total.Add(li.TotalPrice)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total = sum
	}
	if o.HasItems() && !total.Equal(o.Total) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// Clone возвращает глубокую копию, репозитории отдают только копии.
func (o Order) Clone() Order {
	if o.LineItems != nil {
		items := make([]LineItem, len(o.LineItems))
		for i, li := range o.LineItems {
			items[i] = li.clone()
		}
		o.LineItems = items
	}
	if o.BillingProfile != nil {
		p := *o.BillingProfile
		o.BillingProfile = &p
	}
	return o
}
