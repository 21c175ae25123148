package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Price: денежная сумма в конкретной валюте.
// Арифметика только через decimal, никаких float.
type Price struct {
	Number   decimal.Decimal `json:"number"`
	Currency string          `json:"currency_code"`
}

// NewPrice разбирает строковое значение суммы ("9.99") в Price.
func NewPrice(number, currency string) (Price, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return Price{}, ErrCurrencyRequired
	}
	n, err := decimal.NewFromString(strings.TrimSpace(number))
	if err != nil {
		return Price{}, fmt.Errorf("parse price %q: %w", number, err)
	}
	if n.IsNegative() {
		return Price{}, ErrPriceNegative
	}
	return Price{Number: n, Currency: currency}, nil
}

// MustPrice используется в тестах и при сидинге каталога.
func MustPrice(number, currency string) Price {
	p, err := NewPrice(number, currency)
	if err != nil {
		panic(err)
	}
	return p
}

// ZeroPrice возвращает нулевую сумму в валюте currency.
func ZeroPrice(currency string) Price {
	return Price{Number: decimal.Zero, Currency: currency}
}

// Add складывает суммы одной валюты.
func (p Price) Add(other Price) (Price, error) {
	if p.Currency != other.Currency {
		return Price{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, p.Currency, other.Currency)
	}
	return Price{Number: p.Number.Add(other.Number), Currency: p.Currency}, nil
}

// Multiply умножает цену на количество.
func (p Price) Multiply(qty int32) Price {
	return Price{Number: p.Number.Mul(decimal.NewFromInt32(qty)), Currency: p.Currency}
}

// Equal сравнивает суммы без учёта масштаба decimal (19.980 == 19.98).
func (p Price) Equal(other Price) bool {
	return p.Currency == other.Currency && p.Number.Equal(other.Number)
}

func (p Price) IsZero() bool {
	return p.Number.IsZero()
}

func (p Price) String() string {
	return p.Number.StringFixed(2) + " " + p.Currency
}
