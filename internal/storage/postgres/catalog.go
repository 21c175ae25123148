package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// Catalog читает вариации товаров из product_variations.
type Catalog struct {
	db *sql.DB
}

func NewCatalog(store *Store) *Catalog {
	return &Catalog{db: store.DB()}
}

func (c *Catalog) GetVariation(ctx context.Context, id string) (domain.Variation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var v domain.Variation
	err := c.db.QueryRowContext(ctx, `
		SELECT id, sku, title, price_number, currency, active
		FROM product_variations WHERE id = $1`, id,
	).Scan(&v.ID, &v.SKU, &v.Title, &v.Price.Number, &v.Price.Currency, &v.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Variation{}, domain.ErrVariationNotFound
	}
	if err != nil {
		return domain.Variation{}, fmt.Errorf("select variation: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT store_id FROM product_variation_stores WHERE variation_id = $1 ORDER BY store_id`, id)
	if err != nil {
		return domain.Variation{}, fmt.Errorf("select variation stores: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var storeID string
		if err := rows.Scan(&storeID); err != nil {
			return domain.Variation{}, fmt.Errorf("scan variation store: %w", err)
		}
		v.StoreIDs = append(v.StoreIDs, storeID)
	}
	return v, rows.Err()
}

// Put создаёт или обновляет вариацию вместе со списком магазинов (сидинг каталога).
func (c *Catalog) Put(ctx context.Context, v domain.Variation) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return inTx(ctx, c.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO product_variations (id, sku, title, price_number, currency, active)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				sku = EXCLUDED.sku, title = EXCLUDED.title, price_number = EXCLUDED.price_number,
				currency = EXCLUDED.currency, active = EXCLUDED.active`,
			v.ID, v.SKU, v.Title, v.Price.Number, v.Price.Currency, v.Active,
		); err != nil {
			return fmt.Errorf("upsert variation: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_variation_stores WHERE variation_id = $1`, v.ID); err != nil {
			return fmt.Errorf("reset variation stores: %w", err)
		}
		for _, storeID := range v.StoreIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO product_variation_stores (variation_id, store_id) VALUES ($1, $2)`,
				v.ID, storeID,
			); err != nil {
				return fmt.Errorf("insert variation store: %w", err)
			}
		}
		return nil
	})
}

var _ domain.Catalog = (*Catalog)(nil)
