// Package warehouse manages storage locations and their stock entries.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-billing/internal/common"
)

// ErrNotFound is returned when a warehouse does not exist.
var ErrNotFound = errors.New("warehouse: not found")

// Warehouse is a physical storage location (shop floor, godown, van).
type Warehouse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists warehouses.
type Store struct {
	Pool *pgxpool.Pool
}

const cols = `id, name, COALESCE(address, ''), created_at`

func scan(row pgx.Row) (Warehouse, error) {
	var wh Warehouse
	err := row.Scan(&wh.ID, &wh.Name, &wh.Address, &wh.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, ErrNotFound
	}
	if err != nil {
		return Warehouse{}, fmt.Errorf("scan warehouse: %w", err)
	}
	return wh, nil
}

// Create adds a warehouse to the tenant.
func (s *Store) Create(ctx context.Context, tenantID string, in Warehouse) (Warehouse, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Warehouse{}, common.BadRequest("VALIDATION_ERROR", "warehouse name is required", nil)
	}
	return scan(s.Pool.QueryRow(ctx, `
		INSERT INTO warehouses (tenant_id, name, address)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING `+cols,
		tenantID, name, strings.TrimSpace(in.Address)))
}

// Get loads one warehouse.
func (s *Store) Get(ctx context.Context, tenantID, warehouseID string) (Warehouse, error) {
	return scan(s.Pool.QueryRow(ctx,
		`SELECT `+cols+` FROM warehouses WHERE tenant_id = $1 AND id = $2`,
		tenantID, warehouseID))
}

// List returns all warehouses of the tenant.
func (s *Store) List(ctx context.Context, tenantID string) ([]Warehouse, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+cols+` FROM warehouses WHERE tenant_id = $1 ORDER BY name`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	defer rows.Close()

	var out []Warehouse
	for rows.Next() {
		wh, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	return out, rows.Err()
}
