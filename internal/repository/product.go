package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	getProductByIDSQL = `SELECT id, name, title, category, image, mrp, discount_percent, selling_price, tags
		FROM products WHERE id = $1`

	listProductsSQL = `SELECT id, name, title, category, image, mrp, discount_percent, selling_price, tags
		FROM products ORDER BY category, id`

	listAllSizesSQL = `SELECT product_id, name, available FROM product_sizes
		WHERE product_id = ANY($1) ORDER BY product_id, name`

	listProductSizesSQL = `SELECT name, available FROM product_sizes WHERE product_id = $1 ORDER BY name`

	upsertProductSQL = `INSERT INTO products (id, name, title, category, image, mrp, discount_percent, selling_price, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, title = EXCLUDED.title, category = EXCLUDED.category,
			image = EXCLUDED.image, mrp = EXCLUDED.mrp, discount_percent = EXCLUDED.discount_percent,
			selling_price = EXCLUDED.selling_price, tags = EXCLUDED.tags`

	upsertProductSizeSQL = `INSERT INTO product_sizes (product_id, name, available) VALUES ($1, $2, $3)
		ON CONFLICT (product_id, name) DO UPDATE SET available = EXCLUDED.available`
)

var _ product.Catalog = (*ProductRepository)(nil)

// ProductRepository implements product.Catalog backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a product together with its sizes.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	rows, err = r.pool.Query(ctx, listProductSizesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing sizes of %q: %w", id, err)
	}
	p.Sizes, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Size, error) {
		var s product.Size
		err := row.Scan(&s.Name, &s.Available)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing sizes of %q: %w", id, err)
	}
	return &p, nil
}

// List returns every product in the catalog with its sizes.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]string, len(list))
	byID := make(map[string]int, len(list))
	for i, p := range list {
		ids[i] = p.ID
		byID[p.ID] = i
	}
	rows, err = r.pool.Query(ctx, listAllSizesSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing product sizes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			s  product.Size
		)
		if err := rows.Scan(&id, &s.Name, &s.Available); err != nil {
			return nil, fmt.Errorf("scanning product size: %w", err)
		}
		i := byID[id]
		list[i].Sizes = append(list[i].Sizes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing product sizes: %w", err)
	}
	return list, nil
}

// Upsert inserts or replaces a product and its sizes.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Title, p.Category, p.Image,
			p.MRP, p.DiscountPercent, p.SellingPrice, p.Tags,
		); err != nil {
			return fmt.Errorf("upserting product %q: %w", p.ID, err)
		}
		for _, s := range p.Sizes {
			if _, err := tx.Exec(ctx, upsertProductSizeSQL, p.ID, s.Name, s.Available); err != nil {
				return fmt.Errorf("upserting size %q of %q: %w", s.Name, p.ID, err)
			}
		}
		return nil
	})
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Title, &p.Category, &p.Image,
		&p.MRP, &p.DiscountPercent, &p.SellingPrice, &p.Tags,
	)
	return p, err
}
