package cart

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Lines(ctx context.Context, userID string) ([]Line, error) {
	rows, err := postgres.Conn(ctx, s.DB).Query(ctx,
		`SELECT product_id, qty FROM cart_lines WHERE user_id=$1 ORDER BY seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PGStore) Merge(ctx context.Context, userID, productID string, delta int) (int, error) {
	db := postgres.Conn(ctx, s.DB)

	var qty int
	if delta > 0 {
		err := db.QueryRow(ctx, `
			INSERT INTO cart_lines(user_id, product_id, qty) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, product_id) DO UPDATE SET qty = cart_lines.qty + EXCLUDED.qty
			RETURNING qty`, userID, productID, delta).Scan(&qty)
		return qty, err
	}

	err := db.QueryRow(ctx, `
		UPDATE cart_lines SET qty = qty + $3
		WHERE user_id=$1 AND product_id=$2 AND qty + $3 > 0
		RETURNING qty`, userID, productID, delta).Scan(&qty)
	if err == nil {
		return qty, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	var current int
	err = db.QueryRow(ctx, `SELECT qty FROM cart_lines WHERE user_id=$1 AND product_id=$2`, userID, productID).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	return 0, &InvalidQuantityError{ProductID: productID, Quantity: current + delta}
}

func (s *PGStore) Remove(ctx context.Context, userID, productID string) error {
	_, err := postgres.Conn(ctx, s.DB).Exec(ctx,
		`DELETE FROM cart_lines WHERE user_id=$1 AND product_id=$2`, userID, productID)
	return err
}

func (s *PGStore) Take(ctx context.Context, userID string, lines []Line) error {
	db := postgres.Conn(ctx, s.DB)
	for _, l := range lines {
		if _, err := db.Exec(ctx,
			`DELETE FROM cart_lines WHERE user_id=$1 AND product_id=$2 AND qty <= $3`,
			userID, l.ProductID, l.Quantity); err != nil {
			return err
		}
		if _, err := db.Exec(ctx,
			`UPDATE cart_lines SET qty = qty - $3 WHERE user_id=$1 AND product_id=$2 AND qty > $3`,
			userID, l.ProductID, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) Clear(ctx context.Context, userID string) error {
	_, err := postgres.Conn(ctx, s.DB).Exec(ctx, `DELETE FROM cart_lines WHERE user_id=$1`, userID)
	return err
}

var _ Store = (*PGStore)(nil)
