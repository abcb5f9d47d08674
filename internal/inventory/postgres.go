package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedger reserves with a single conditional UPDATE on products, so two
// concurrent reservations of the last unit serialize on the row lock and
// only one sees stock >= qty.
type PGLedger struct{ DB *pgxpool.Pool }

func (l *PGLedger) Reserve(ctx context.Context, orderID, productID string, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	db := postgres.Conn(ctx, l.DB)

	r := &Reservation{ID: uuid.NewString(), OrderID: orderID, ProductID: productID, Quantity: qty, Status: StatusHeld}
	err := db.QueryRow(ctx, `
		WITH dec AS (
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND active AND stock >= $2
			RETURNING id
		)
		INSERT INTO reservations(id, order_id, product_id, qty, status)
		SELECT $3, $4, id, $2, 'HELD' FROM dec
		RETURNING created_at`,
		productID, qty, r.ID, orderID).Scan(&r.CreatedAt)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var (
		stock  int
		active bool
	)
	err = db.QueryRow(ctx, `SELECT stock, active FROM products WHERE id=$1`, productID).Scan(&stock, &active)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !active) {
		return nil, &catalog.ProductUnavailableError{ProductID: productID}
	}
	if err != nil {
		return nil, err
	}
	return nil, &InsufficientStockError{ProductID: productID, Requested: qty, Available: stock}
}

func (l *PGLedger) Commit(ctx context.Context, r *Reservation) error {
	ct, err := postgres.Conn(ctx, l.DB).Exec(ctx, `
		UPDATE reservations SET status='COMMITTED', updated_at=now()
		WHERE id=$1 AND status='HELD'`, r.ID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrReservationNotHeld
	}
	r.Status = StatusCommitted
	return nil
}

func (l *PGLedger) Release(ctx context.Context, r *Reservation) error {
	_, err := postgres.Conn(ctx, l.DB).Exec(ctx, `
		WITH rel AS (
			UPDATE reservations SET status='RELEASED', updated_at=now()
			WHERE id=$1 AND status<>'RELEASED'
			RETURNING product_id, qty
		)
		UPDATE products p SET stock = p.stock + rel.qty, updated_at = now()
		FROM rel WHERE p.id = rel.product_id`, r.ID)
	if err != nil {
		return err
	}
	r.Status = StatusReleased
	return nil
}

func (l *PGLedger) ReleaseOrder(ctx context.Context, orderID string) error {
	_, err := postgres.Conn(ctx, l.DB).Exec(ctx, `
		WITH rel AS (
			UPDATE reservations SET status='RELEASED', updated_at=now()
			WHERE order_id=$1 AND status<>'RELEASED'
			RETURNING product_id, qty
		)
		UPDATE products p SET stock = p.stock + rel.qty, updated_at = now()
		FROM rel WHERE p.id = rel.product_id`, orderID)
	return err
}

func (l *PGLedger) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := postgres.Conn(ctx, l.DB).QueryRow(ctx, `
		WITH stale AS (
			UPDATE reservations SET status='RELEASED', updated_at=now()
			WHERE status='HELD' AND created_at < $1
			RETURNING product_id, qty
		), per_product AS (
			SELECT product_id, SUM(qty) AS qty FROM stale GROUP BY product_id
		), restock AS (
			UPDATE products p SET stock = p.stock + per_product.qty, updated_at = now()
			FROM per_product WHERE p.id = per_product.product_id
			RETURNING p.id
		)
		SELECT COUNT(*) FROM stale`, cutoff).Scan(&n)
	return n, err
}

var _ Ledger = (*PGLedger)(nil)
