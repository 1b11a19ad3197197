// Package customer tracks bill recipients, deduplicated per tenant by phone
// number.
package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-billing/internal/common"
)

// ErrNotFound is returned when no customer matches.
var ErrNotFound = errors.New("customer: not found")

// Customer is a bill recipient.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address,omitempty"`
	GSTNumber string    `json:"gstNumber,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx so upserts can run inside
// the bill-creation transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists customers.
type Store struct {
	Pool *pgxpool.Pool
}

const cols = `id, name, phone, COALESCE(address, ''), COALESCE(gst_number, ''), created_at, updated_at`

func scan(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.GSTNumber, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("scan customer: %w", err)
	}
	return c, nil
}

// Upsert inserts the customer or refreshes name and address when the phone
// already exists in the tenant.
func (s *Store) Upsert(ctx context.Context, q Querier, tenantID string, in Customer) (Customer, error) {
	name := strings.TrimSpace(in.Name)
	phone := NormalizePhone(in.Phone)
	if name == "" {
		return Customer{}, common.BadRequest("VALIDATION_ERROR", "customer name is required", nil)
	}
	if phone == "" {
		return Customer{}, common.BadRequest("VALIDATION_ERROR", "customer phone is required", nil)
	}
	return scan(q.QueryRow(ctx, `
		INSERT INTO customers (tenant_id, name, phone, address, gst_number)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		ON CONFLICT (tenant_id, phone) DO UPDATE SET
			name = EXCLUDED.name,
			address = COALESCE(EXCLUDED.address, customers.address),
			gst_number = COALESCE(EXCLUDED.gst_number, customers.gst_number),
			updated_at = now()
		RETURNING `+cols,
		tenantID, name, phone, strings.TrimSpace(in.Address), strings.TrimSpace(in.GSTNumber)))
}

// Get loads one customer by id.
func (s *Store) Get(ctx context.Context, tenantID, customerID string) (Customer, error) {
	return scan(s.Pool.QueryRow(ctx,
		`SELECT `+cols+` FROM customers WHERE tenant_id = $1 AND id = $2`,
		tenantID, customerID))
}

// Search lists customers matching a name or phone fragment, newest first.
func (s *Store) Search(ctx context.Context, tenantID, query string, limit, offset int) ([]Customer, int, error) {
	where := `tenant_id = $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR phone LIKE '%' || $2 || '%')`

	var total int
	if err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM customers WHERE `+where,
		tenantID, query).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT `+cols+` FROM customers WHERE `+where+`
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		tenantID, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search customers: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// NormalizePhone strips formatting characters so the per-tenant unique
// constraint matches numbers however they were typed.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
