package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a category or product does not exist.
var ErrNotFound = errors.New("catalog: not found")

// ErrDuplicateSlug is returned when a slug is already used within the tenant.
var ErrDuplicateSlug = errors.New("catalog: slug already exists")

// Category groups products for filtering and reporting.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

// Product is a sellable item. SellingPrice is tax inclusive and TaxPercent is
// the GST percentage embedded in that price.
type Product struct {
	ID           string    `json:"id"`
	CategoryID   *string   `json:"categoryId,omitempty"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	SellingPrice float64   `json:"sellingPrice"`
	TaxPercent   float64   `json:"taxPercent"`
	ItemsPerBox  int       `json:"itemsPerBox"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store persists categories and products.
type Store struct {
	Pool *pgxpool.Pool
}

const productCols = `id, category_id, name, slug, selling_price, tax_percent, items_per_box,
	active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Slug, &p.SellingPrice, &p.TaxPercent,
		&p.ItemsPerBox, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

func mapInsertErr(err error, wrap string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateSlug
	}
	return fmt.Errorf("%s: %w", wrap, err)
}

func (s *Store) ListCategories(ctx context.Context, tenantID string) ([]Category, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, name, slug, created_at FROM categories WHERE tenant_id = $1 ORDER BY name`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, tenantID, name, slug string) (Category, error) {
	var c Category
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO categories (tenant_id, name, slug) VALUES ($1, $2, $3)
		RETURNING id, name, slug, created_at`,
		tenantID, name, slug,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt)
	if err != nil {
		return Category{}, mapInsertErr(err, "insert category")
	}
	return c, nil
}

// ListProducts returns active-or-not products filtered by free-text query and
// category, newest first.
func (s *Store) ListProducts(ctx context.Context, tenantID, query, categoryID string, limit, offset int) ([]Product, int, error) {
	where := `tenant_id = $1
		AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		AND ($3 = '' OR category_id::text = $3)`

	var total int
	if err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM products WHERE `+where,
		tenantID, query, categoryID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT `+productCols+` FROM products WHERE `+where+`
		 ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		tenantID, query, categoryID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, tenantID, productID string) (Product, error) {
	return scanProduct(s.Pool.QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE tenant_id = $1 AND id = $2`,
		tenantID, productID))
}

func (s *Store) CreateProduct(ctx context.Context, tenantID string, p Product) (Product, error) {
	created, err := scanProduct(s.Pool.QueryRow(ctx, `
		INSERT INTO products (tenant_id, category_id, name, slug, selling_price, tax_percent, items_per_box, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING `+productCols,
		tenantID, p.CategoryID, p.Name, p.Slug, p.SellingPrice, p.TaxPercent, p.ItemsPerBox))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Product{}, err
		}
		return Product{}, mapInsertErr(err, "insert product")
	}
	return created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, tenantID string, p Product) (Product, error) {
	updated, err := scanProduct(s.Pool.QueryRow(ctx, `
		UPDATE products SET
			category_id = $3, name = $4, selling_price = $5, tax_percent = $6,
			items_per_box = $7, active = $8, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+productCols,
		tenantID, p.ID, p.CategoryID, p.Name, p.SellingPrice, p.TaxPercent, p.ItemsPerBox, p.Active))
	if err != nil {
		return Product{}, err
	}
	return updated, nil
}
