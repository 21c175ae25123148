package domain

import (
	"maps"
	"time"
)

// LineItemTypeProductVariation: тип позиции для вариаций товара.
const LineItemTypeProductVariation = "product_variation"

// PurchasableRef ссылается на покупаемую сущность (например, вариацию товара).
type PurchasableRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// LineItem: одна позиция корзины/заказа.
type LineItem struct {
	ID              string
	Type            string
	PurchasedEntity PurchasableRef
	Title           string
	// Attributes хранит значения конфигурируемых атрибутов (цвет, размер).
	// Позиции с одинаковой сущностью и атрибутами объединяются.
	Attributes map[string]string
	Quantity   int32
	UnitPrice  Price
	TotalPrice Price
	CreatedAt  time.Time
}

// SetQuantity меняет количество и сразу пересчитывает сумму позиции.
func (li *LineItem) SetQuantity(qty int32) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	li.Quantity = qty
	li.Recalculate()
	return nil
}

// Recalculate обновляет TotalPrice = UnitPrice × Quantity.
func (li *LineItem) Recalculate() {
	li.TotalPrice = li.UnitPrice.Multiply(li.Quantity)
}

// Matches проверяет, можно ли объединить позицию с новой покупкой.
func (li LineItem) Matches(ref PurchasableRef, attributes map[string]string) bool {
	if li.PurchasedEntity != ref {
		return false
	}
	if len(li.Attributes) != len(attributes) {
		return false
	}
	for k, v := range attributes {
		if li.Attributes[k] != v {
			return false
		}
	}
	return true
}

// Validate проверяет инварианты позиции.
func (li LineItem) Validate() error {
	switch {
	case li.ID == "":
		return ErrLineItemIDRequired
	case li.PurchasedEntity.ID == "":
		return ErrPurchasableRequired
	case li.Quantity <= 0:
		return ErrInvalidQuantity
	case li.UnitPrice.Number.IsNegative():
		return ErrPriceNegative
	case !li.TotalPrice.Equal(li.UnitPrice.Multiply(li.Quantity)):
		return ErrAmountMismatch
	}
	return nil
}

func (li LineItem) clone() LineItem {
	li.Attributes = maps.Clone(li.Attributes)
	return li
}
