package domain

import "time"

// PaymentStatus описывает состояние платежа по заказу.
type PaymentStatus string

const (
	// PaymentStatusCompleted — деньги списаны.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusPending — ручной шлюз: оплата ожидается вне системы.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusDeclined — шлюз отклонил платёж.
	PaymentStatusDeclined PaymentStatus = "declined"
)

// Payment: результат списания по заказу.
type Payment struct {
	ID        string
	OrderID   string
	Gateway   string
	RemoteID  string // Может быть пустым, если шлюз не возвращает идентификатор.
	Status    PaymentStatus
	Amount    Price
	CreatedAt time.Time
}

// Validate проверяет корректность полей платежа.
func (p *Payment) Validate() error {
	switch {
	case p.OrderID == "":
		return ErrOrderIDRequired
	case p.Gateway == "":
		return ErrPaymentGatewayNotFound
	case p.Amount.Number.IsNegative():
		return ErrPriceNegative
	}
	return nil
}

// Settled: платёж не мешает завершить заказ.
func (p *Payment) Settled() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusPending
}
