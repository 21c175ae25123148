package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

const constraintOpenCart = "orders_open_cart_uniq"

const orderColumns = `
	id, order_type, store_id, order_number, owner_id, email, ip_address, state,
	billing_profile, total_number, total_currency, checkout_step, checkout_mode,
	payment_gateway, version, created_at, updated_at, placed_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row, err := toOrderRow(order)
	if err != nil {
		return err
	}
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
			row.args(order.Version)...)
		if err != nil {
			return mapOrderWriteErr(err, domain.ErrOrderAlreadyExists)
		}
		return insertLineItems(ctx, tx, order)
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	if err := r.loadLineItems(ctx, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) FindOpenCart(ctx context.Context, storeID, ownerID string) (domain.Order, error) {
	if ownerID == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+`
		FROM orders
		WHERE store_id = $1 AND owner_id = $2 AND state IN ('cart', 'in_checkout')`,
		storeID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("find open cart: %w", err)
	}
	if err := r.loadLineItems(ctx, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		if err := r.loadLineItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Save обновляет заказ при совпадении версии и целиком переписывает позиции.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row, err := toOrderRow(order)
	if err != nil {
		return err
	}
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET
				order_type = $2, store_id = $3, order_number = $4, owner_id = $5,
				email = $6, ip_address = $7, state = $8, billing_profile = $9,
				total_number = $10, total_currency = $11, checkout_step = $12,
				checkout_mode = $13, payment_gateway = $14, version = version + 1,
				updated_at = $16, placed_at = $17
			WHERE id = $1 AND version = $15`,
			row.updateArgs()...,
		)
		if err != nil {
			return mapOrderWriteErr(err, domain.ErrOrderVersionConflict)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check order exists: %w", err)
			}
			if !exists {
				return domain.ErrOrderNotFound
			}
			return domain.ErrOrderVersionConflict
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE order_id = $1`, order.ID); err != nil {
			return fmt.Errorf("delete line items: %w", err)
		}
		return insertLineItems(ctx, tx, order)
	})
}

func (r *orderRepository) loadLineItems(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, item_type, purchased_type, purchased_id, title, attributes,
		       quantity, unit_number, currency, created_at
		FROM line_items
		WHERE order_id = $1
		ORDER BY sort_order`, order.ID)
	if err != nil {
		return fmt.Errorf("load line items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var (
			li    domain.LineItem
			attrs []byte
		)
		if err := rows.Scan(
			&li.ID, &li.Type, &li.PurchasedEntity.Type, &li.PurchasedEntity.ID, &li.Title, &attrs,
			&li.Quantity, &li.UnitPrice.Number, &li.UnitPrice.Currency, &li.CreatedAt,
		); err != nil {
			return fmt.Errorf("scan line item: %w", err)
		}
		if err := json.Unmarshal(attrs, &li.Attributes); err != nil {
			return fmt.Errorf("decode line item attributes: %w", err)
		}
		if len(li.Attributes) == 0 {
			li.Attributes = nil
		}
		li.Recalculate()
		items = append(items, li)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate line items: %w", err)
	}
	if len(items) > 0 {
		order.LineItems = items
	}
	return nil
}

func insertLineItems(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	for pos, li := range order.LineItems {
		attrs, err := json.Marshal(li.Attributes)
		if err != nil {
			return fmt.Errorf("encode line item attributes: %w", err)
		}
		if li.Attributes == nil {
			attrs = []byte("{}")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO line_items (
				id, order_id, sort_order, item_type, purchased_type, purchased_id, title,
				attributes, quantity, unit_number, currency, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			li.ID, order.ID, pos, li.Type, li.PurchasedEntity.Type, li.PurchasedEntity.ID, li.Title,
			attrs, li.Quantity, li.UnitPrice.Number, li.UnitPrice.Currency, li.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}
	return nil
}

// orderRow: значения колонок orders в порядке orderColumns.
type orderRow struct {
	order   domain.Order
	profile []byte
}

func toOrderRow(order domain.Order) (orderRow, error) {
	row := orderRow{order: order}
	if order.BillingProfile != nil {
		data, err := json.Marshal(order.BillingProfile)
		if err != nil {
			return orderRow{}, fmt.Errorf("encode billing profile: %w", err)
		}
		row.profile = data
	}
	return row, nil
}

func (r orderRow) args(version int64) []any {
	o := r.order
	number := sql.NullInt64{Int64: o.OrderNumber, Valid: o.OrderNumber > 0}
	return []any{
		o.ID, o.Type, o.StoreID, number, nullString(o.OwnerID), o.Email, o.IPAddress, string(o.State),
		r.profile, o.Total.Number, o.Total.Currency, o.CheckoutStep, string(o.CheckoutMode),
		o.PaymentGateway, version, o.CreatedAt, o.UpdatedAt, nullTime(o.PlacedAt),
	}
}

// updateArgs: те же значения без created_at.
func (r orderRow) updateArgs() []any {
	args := r.args(r.order.Version)
	return append(args[:15:15], args[16:]...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o       domain.Order
		number  sql.NullInt64
		owner   sql.NullString
		state   string
		mode    string
		profile []byte
		total   decimal.Decimal
		placed  sql.NullTime
	)
	if err := row.Scan(
		&o.ID, &o.Type, &o.StoreID, &number, &owner, &o.Email, &o.IPAddress, &state,
		&profile, &total, &o.Total.Currency, &o.CheckoutStep, &mode,
		&o.PaymentGateway, &o.Version, &o.CreatedAt, &o.UpdatedAt, &placed,
	); err != nil {
		return domain.Order{}, err
	}
	o.OrderNumber = number.Int64
	o.OwnerID = owner.String
	o.State = domain.OrderState(state)
	o.CheckoutMode = domain.CheckoutMode(mode)
	o.Total.Number = total
	if placed.Valid {
		o.PlacedAt = placed.Time
	}
	if len(profile) > 0 {
		var p domain.Profile
		if err := json.Unmarshal(profile, &p); err != nil {
			return domain.Order{}, fmt.Errorf("decode billing profile: %w", err)
		}
		o.BillingProfile = &p
	}
	return o, nil
}

func mapOrderWriteErr(err error, onDuplicateID error) error {
	constraint, ok := uniqueViolation(err)
	switch {
	case ok && constraint == constraintOpenCart:
		return domain.ErrDuplicateCart
	case ok && constraint == "orders_pkey":
		return onDuplicateID
	case ok:
		return fmt.Errorf("%w: %s", domain.ErrOrderNumberAssigned, constraint)
	}
	return fmt.Errorf("write order: %w", err)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
