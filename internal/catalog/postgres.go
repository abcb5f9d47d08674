package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PGRepository struct{ DB *pgxpool.Pool }

const productColumns = `id, name, description, category, price::text, stock, active, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &price, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("decode price of %s: %w", p.ID, err)
	}
	p.Price = d
	return &p, nil
}

func (r *PGRepository) GetProduct(ctx context.Context, id string) (*Product, error) {
	p, err := scanProduct(postgres.Conn(ctx, r.DB).QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	return p, err
}

func (r *PGRepository) GetStock(ctx context.Context, id string) (int, error) {
	var stock int
	err := postgres.Conn(ctx, r.DB).QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, id).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	return stock, err
}

func (r *PGRepository) Create(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	row := postgres.Conn(ctx, r.DB).QueryRow(ctx, `
		INSERT INTO products(id, name, description, category, price, stock, active)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, TRUE)
		ON CONFLICT (id) DO NOTHING
		RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.Category, p.Price.String(), p.Stock)
	created, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: product %s already exists", ErrInvalidProduct, p.ID)
	}
	if err != nil {
		return err
	}
	*p = *created
	return nil
}

// Update edits a product under a row lock so concurrent reservations see
// either the old or the new stock, never a torn write.
func (r *PGRepository) Update(ctx context.Context, id string, patch Patch) (*Product, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := scanProduct(tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := patch.apply(p); err != nil {
		return nil, err
	}

	updated, err := scanProduct(tx.QueryRow(ctx, `
		UPDATE products
		SET name=$2, description=$3, category=$4, price=$5::numeric, stock=$6, updated_at=now()
		WHERE id=$1
		RETURNING `+productColumns,
		id, p.Name, p.Description, p.Category, p.Price.String(), p.Stock))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PGRepository) Deactivate(ctx context.Context, id string) error {
	ct, err := postgres.Conn(ctx, r.DB).Exec(ctx, `UPDATE products SET active=FALSE, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *PGRepository) List(ctx context.Context, f ListFilter) ([]*Product, int, error) {
	f = normalizeFilter(f)
	db := postgres.Conn(ctx, r.DB)

	var total int
	if err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE active AND ($1 = '' OR category = $1)`, f.Category).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE active AND ($1 = '' OR category = $1)
		ORDER BY name, id
		OFFSET $2 LIMIT $3`, f.Category, f.Offset, f.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*Product, 0, f.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
