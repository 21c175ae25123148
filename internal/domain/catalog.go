package domain

import "slices"

// Variation: покупаемая вариация товара.
type Variation struct {
	ID       string
	SKU      string
	Title    string
	Price    Price
	StoreIDs []string
	Active   bool
}

// AvailableIn: вариация продаётся в магазине storeID.
func (v Variation) AvailableIn(storeID string) bool {
	return v.Active && slices.Contains(v.StoreIDs, storeID)
}

// Ref возвращает ссылку на вариацию для позиции заказа.
func (v Variation) Ref() PurchasableRef {
	return PurchasableRef{Type: LineItemTypeProductVariation, ID: v.ID}
}
