package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PGRepository struct{ DB *pgxpool.Pool }

func (r *PGRepository) Insert(ctx context.Context, o *Order) error {
	db := postgres.Conn(ctx, r.DB)

	var addr []byte
	if o.ShippingAddress != nil {
		b, err := json.Marshal(o.ShippingAddress)
		if err != nil {
			return fmt.Errorf("encode shipping address: %w", err)
		}
		addr = b
	}
	if _, err := db.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, total, shipping_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::jsonb, $6, $7)`,
		o.ID, o.UserID, string(o.Status), o.Total.String(), addr, o.CreatedAt, o.UpdatedAt); err != nil {
		return err
	}
	for i, l := range o.Lines {
		if _, err := db.Exec(ctx, `
			INSERT INTO order_items(order_id, position, product_id, qty, unit_price)
			VALUES ($1, $2, $3, $4, $5::numeric)`,
			o.ID, i, l.ProductID, l.Quantity, l.UnitPrice.String()); err != nil {
			return err
		}
	}
	return nil
}

const orderColumns = `id, user_id, status, total::text, shipping_address, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o      Order
		status string
		total  string
		addr   []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &total, &addr, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = Status(status)
	t, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("decode total of %s: %w", o.ID, err)
	}
	o.Total = t
	if len(addr) > 0 {
		o.ShippingAddress = &Address{}
		if err := json.Unmarshal(addr, o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode shipping address of %s: %w", o.ID, err)
		}
	}
	return &o, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (*Order, error) {
	db := postgres.Conn(ctx, r.DB)
	o, err := scanOrder(db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, db, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PGRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*Order, int, error) {
	db := postgres.Conn(ctx, r.DB)

	var total int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id=$1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.loadLines(ctx, db, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PGRepository) loadLines(ctx context.Context, db postgres.DBTX, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
		o.Lines = []Line{}
	}

	rows, err := db.Query(ctx, `
		SELECT order_id, product_id, qty, unit_price::text
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			l       Line
			price   string
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.Quantity, &price); err != nil {
			return err
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("decode unit price of %s/%s: %w", orderID, l.ProductID, err)
		}
		l.UnitPrice = p
		byID[orderID].Lines = append(byID[orderID].Lines, l)
	}
	return rows.Err()
}

func (r *PGRepository) UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error {
	db := postgres.Conn(ctx, r.DB)
	ct, err := db.Exec(ctx, `UPDATE orders SET status=$3, updated_at=$4 WHERE id=$1 AND status=$2`,
		id, string(from), string(to), at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrOrderNotFound
	}
	return errStatusConflict
}

var _ Repository = (*PGRepository)(nil)
