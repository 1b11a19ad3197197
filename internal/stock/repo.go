package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx so reservations can
// run inside the bill-creation transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo persists stock records. All queries are tenant scoped.
type Repo struct {
	Pool *pgxpool.Pool
}

const recordCols = `id, product_id, warehouse_id, boxes, items_per_box, loose_items,
	low_stock_boxes, low_stock_items, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.ProductID, &rec.WarehouseID, &rec.Boxes, &rec.ItemsPerBox,
		&rec.LooseItems, &rec.LowStockBoxes, &rec.LowStockItems, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("scan stock record: %w", err)
	}
	return rec, nil
}

// Get loads one stock record by id.
func (r *Repo) Get(ctx context.Context, tenantID, stockID string) (Record, error) {
	return scanRecord(r.Pool.QueryRow(ctx,
		`SELECT `+recordCols+` FROM stock_records WHERE id = $1 AND tenant_id = $2`,
		stockID, tenantID))
}

// GetForProduct loads the record for a (product, warehouse) pair.
func (r *Repo) GetForProduct(ctx context.Context, tenantID, productID, warehouseID string) (Record, error) {
	return scanRecord(r.Pool.QueryRow(ctx,
		`SELECT `+recordCols+` FROM stock_records
		 WHERE product_id = $1 AND warehouse_id = $2 AND tenant_id = $3`,
		productID, warehouseID, tenantID))
}

// Reserve atomically deducts units (loose-equivalent) from a stock record.
// The availability check and the decrement happen in a single statement, so
// two concurrent reservations can never both succeed on the same last units.
// The residual is re-split against items_per_box in the same statement.
func (r *Repo) Reserve(ctx context.Context, q Querier, tenantID, stockID string, units int) error {
	if units <= 0 {
		return nil
	}
	tag, err := q.Exec(ctx, `
		UPDATE stock_records SET
			boxes       = ((boxes*items_per_box + loose_items) - $1) / items_per_box,
			loose_items = ((boxes*items_per_box + loose_items) - $1) % items_per_box,
			updated_at  = now()
		WHERE id = $2 AND tenant_id = $3
		  AND boxes*items_per_box + loose_items >= $1`,
		units, stockID, tenantID)
	if err != nil {
		return fmt.Errorf("reserve stock %s: %w", stockID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// Distinguish a missing record from a shortfall.
	var exists bool
	if err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_records WHERE id = $1 AND tenant_id = $2)`,
		stockID, tenantID).Scan(&exists); err != nil {
		return fmt.Errorf("reserve stock %s: %w", stockID, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInsufficientStock
}

// Restock adds units (loose-equivalent) back to a record, normalizing the
// boxes/loose split. Used by purchase receipts and accepted returns.
func (r *Repo) Restock(ctx context.Context, q Querier, tenantID, stockID string, units int) error {
	if units <= 0 {
		return nil
	}
	tag, err := q.Exec(ctx, `
		UPDATE stock_records SET
			boxes       = ((boxes*items_per_box + loose_items) + $1) / items_per_box,
			loose_items = ((boxes*items_per_box + loose_items) + $1) % items_per_box,
			updated_at  = now()
		WHERE id = $2 AND tenant_id = $3`,
		units, stockID, tenantID)
	if err != nil {
		return fmt.Errorf("restock %s: %w", stockID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReceiveInto adds units (loose-equivalent) to the record for a
// (product, warehouse) pair, creating the record when the product has never
// been stocked in the warehouse. Runs on the caller's Querier so purchase
// receipts stay transactional.
func (r *Repo) ReceiveInto(ctx context.Context, q Querier, tenantID, productID, warehouseID string, itemsPerBox, units int) error {
	if units <= 0 {
		return nil
	}
	if itemsPerBox <= 0 {
		itemsPerBox = 1
	}
	_, err := q.Exec(ctx, `
		INSERT INTO stock_records (tenant_id, product_id, warehouse_id, boxes, items_per_box, loose_items)
		VALUES ($1, $2, $3, $4 / $5, $5, $4 % $5)
		ON CONFLICT (tenant_id, product_id, warehouse_id) DO UPDATE SET
			boxes       = ((stock_records.boxes*stock_records.items_per_box + stock_records.loose_items) + $4) / stock_records.items_per_box,
			loose_items = ((stock_records.boxes*stock_records.items_per_box + stock_records.loose_items) + $4) % stock_records.items_per_box,
			updated_at  = now()`,
		tenantID, productID, warehouseID, units, itemsPerBox)
	if err != nil {
		return fmt.Errorf("receive into %s/%s: %w", productID, warehouseID, err)
	}
	return nil
}

// Upsert creates or replaces the record for a (product, warehouse) pair,
// normalizing loose items into boxes first.
func (r *Repo) Upsert(ctx context.Context, tenantID string, rec Record) (Record, error) {
	boxes, loose := Normalize(rec.Boxes, rec.ItemsPerBox, rec.LooseItems)
	return scanRecord(r.Pool.QueryRow(ctx, `
		INSERT INTO stock_records
			(tenant_id, product_id, warehouse_id, boxes, items_per_box, loose_items,
			 low_stock_boxes, low_stock_items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, product_id, warehouse_id) DO UPDATE SET
			boxes = EXCLUDED.boxes,
			items_per_box = EXCLUDED.items_per_box,
			loose_items = EXCLUDED.loose_items,
			low_stock_boxes = EXCLUDED.low_stock_boxes,
			low_stock_items = EXCLUDED.low_stock_items,
			updated_at = now()
		RETURNING `+recordCols,
		tenantID, rec.ProductID, rec.WarehouseID, boxes, rec.ItemsPerBox, loose,
		rec.LowStockBoxes, rec.LowStockItems))
}

// ListByWarehouse returns all records in a warehouse ordered by product.
func (r *Repo) ListByWarehouse(ctx context.Context, tenantID, warehouseID string, limit, offset int) ([]Record, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+recordCols+` FROM stock_records
		 WHERE warehouse_id = $1 AND tenant_id = $2
		 ORDER BY product_id LIMIT $3 OFFSET $4`,
		warehouseID, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListLow returns every record at or below its low-stock threshold, plus
// out-of-stock ones, across all warehouses of the tenant.
func (r *Repo) ListLow(ctx context.Context, tenantID string) ([]Record, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+recordCols+` FROM stock_records
		 WHERE tenant_id = $1
		   AND boxes*items_per_box + loose_items <=
		       COALESCE(low_stock_boxes, 0)*items_per_box + COALESCE(low_stock_items, 0)
		 ORDER BY warehouse_id, product_id`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// LowAlert is a low-stock row joined with product and warehouse names for
// alerting.
type LowAlert struct {
	TenantID      string
	ProductName   string
	WarehouseName string
	Remaining     int
	AlertPhone    string
}

// ListLowAlerts returns alertable low and out-of-stock rows across all
// tenants, joined with the names the alert message needs.
func (r *Repo) ListLowAlerts(ctx context.Context) ([]LowAlert, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT s.tenant_id, p.name, w.name,
		       s.boxes*s.items_per_box + s.loose_items,
		       COALESCE(t.alert_phone, '')
		FROM stock_records s
		JOIN products p ON p.id = s.product_id
		JOIN warehouses w ON w.id = s.warehouse_id
		JOIN tenants t ON t.id = s.tenant_id
		WHERE s.boxes*s.items_per_box + s.loose_items <=
		      COALESCE(s.low_stock_boxes, 0)*s.items_per_box + COALESCE(s.low_stock_items, 0)
		ORDER BY s.tenant_id, w.name, p.name`)
	if err != nil {
		return nil, fmt.Errorf("list low stock alerts: %w", err)
	}
	defer rows.Close()

	var out []LowAlert
	for rows.Next() {
		var a LowAlert
		if err := rows.Scan(&a.TenantID, &a.ProductName, &a.WarehouseName, &a.Remaining, &a.AlertPhone); err != nil {
			return nil, fmt.Errorf("scan low stock alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
