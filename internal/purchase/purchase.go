// Package purchase manages inbound purchase orders: drafting, ordering, and
// receiving stock into a warehouse.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/stock"
)

// ErrNotFound is returned when no purchase order matches.
var ErrNotFound = errors.New("purchase: order not found")

// Status is the purchase order lifecycle state. Orders move forward only:
// DRAFT -> ORDERED -> RECEIVED.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusOrdered  Status = "ORDERED"
	StatusReceived Status = "RECEIVED"
)

// Item is one product line on a purchase order.
type Item struct {
	ID            string  `json:"id"`
	ProductID     string  `json:"productId"`
	ProductName   string  `json:"productName,omitempty"`
	QuantityBoxes int     `json:"quantityBoxes"`
	QuantityLoose int     `json:"quantityLoose"`
	ItemsPerBox   int     `json:"itemsPerBox"`
	UnitCost      float64 `json:"unitCost"`
}

// Order is a purchase order with its items.
type Order struct {
	ID          string `json:"id"`
	DealerName  string `json:"dealerName"`
	DealerPhone string `json:"dealerPhone,omitempty"`
	WarehouseID string `json:"warehouseId"`
	Status      Status `json:"status"`
	Items       []Item `json:"items,omitempty"`
	CreatedBy   string `json:"createdBy,omitempty"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// ItemInput is one requested line when drafting an order.
type ItemInput struct {
	ProductID     string  `json:"productId" validate:"required"`
	QuantityBoxes int     `json:"quantityBoxes" validate:"gte=0"`
	QuantityLoose int     `json:"quantityLoose" validate:"gte=0"`
	ItemsPerBox   int     `json:"itemsPerBox" validate:"gte=1"`
	UnitCost      float64 `json:"unitCost" validate:"gte=0"`
}

// CreateInput drafts a new purchase order.
type CreateInput struct {
	DealerName  string      `json:"dealerName" validate:"required"`
	DealerPhone string      `json:"dealerPhone"`
	WarehouseID string      `json:"warehouseId" validate:"required"`
	Items       []ItemInput `json:"items" validate:"min=1,dive"`
}

// Service persists purchase orders and applies received stock.
type Service struct {
	Pool  *pgxpool.Pool
	Stock *stock.Repo
	Bus   *events.Bus
}

// Create drafts a purchase order with its items.
func (s *Service) Create(ctx context.Context, tenantID, userID string, in CreateInput) (Order, error) {
	if strings.TrimSpace(in.DealerName) == "" || in.WarehouseID == "" {
		return Order{}, common.BadRequest("VALIDATION_ERROR", "dealerName and warehouseId are required", nil)
	}
	if len(in.Items) == 0 {
		return Order{}, common.BadRequest("VALIDATION_ERROR", "order must contain at least one item", nil)
	}
	for i, item := range in.Items {
		if item.ProductID == "" {
			return Order{}, common.BadRequest("VALIDATION_ERROR",
				fmt.Sprintf("item %d: productId is required", i+1), nil)
		}
		if item.ItemsPerBox < 1 {
			return Order{}, common.BadRequest("VALIDATION_ERROR",
				fmt.Sprintf("item %d: itemsPerBox must be at least 1", i+1), nil)
		}
		if item.QuantityBoxes < 0 || item.QuantityLoose < 0 || item.UnitCost < 0 {
			return Order{}, common.BadRequest("VALIDATION_ERROR",
				fmt.Sprintf("item %d: amounts must not be negative", i+1), nil)
		}
		if item.QuantityBoxes == 0 && item.QuantityLoose == 0 {
			return Order{}, common.BadRequest("VALIDATION_ERROR",
				fmt.Sprintf("item %d: quantity must be positive", i+1), nil)
		}
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("begin create order: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID string
	err = tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (tenant_id, dealer_name, dealer_phone, warehouse_id, created_by)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, '')::uuid)
		RETURNING id`,
		tenantID, strings.TrimSpace(in.DealerName), strings.TrimSpace(in.DealerPhone), in.WarehouseID, userID,
	).Scan(&orderID)
	if err != nil {
		return Order{}, fmt.Errorf("insert purchase order: %w", err)
	}

	for i, item := range in.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, product_id, quantity_boxes, quantity_loose, items_per_box, unit_cost)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			orderID, item.ProductID, item.QuantityBoxes, item.QuantityLoose, item.ItemsPerBox, item.UnitCost)
		if err != nil {
			return Order{}, fmt.Errorf("insert purchase order item %d: %w", i+1, err)
		}
	}

	order, err := s.get(ctx, tx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit create order: %w", err)
	}
	return order, nil
}

// MarkOrdered moves a DRAFT order to ORDERED.
func (s *Service) MarkOrdered(ctx context.Context, tenantID, orderID string) (Order, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE purchase_orders SET status = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3 AND status = $4`,
		string(StatusOrdered), orderID, tenantID, string(StatusDraft))
	if err != nil {
		return Order{}, fmt.Errorf("mark ordered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Order{}, s.transitionError(ctx, tenantID, orderID, StatusDraft)
	}
	return s.Get(ctx, tenantID, orderID)
}

// Receive moves an ORDERED order to RECEIVED and adds every item's quantity
// to the warehouse stock. The status flip and the restocks run in one
// transaction; the status condition makes a double receive a no-op error
// instead of a double restock.
func (s *Service) Receive(ctx context.Context, tenantID, orderID string) (Order, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("begin receive: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE purchase_orders SET status = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3 AND status = $4`,
		string(StatusReceived), orderID, tenantID, string(StatusOrdered))
	if err != nil {
		return Order{}, fmt.Errorf("receive order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Order{}, s.transitionError(ctx, tenantID, orderID, StatusOrdered)
	}

	order, err := s.get(ctx, tx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}
	for _, item := range order.Items {
		units := stock.LooseEquivalent(item.QuantityBoxes, item.ItemsPerBox, item.QuantityLoose)
		if err := s.Stock.ReceiveInto(ctx, tx, tenantID, item.ProductID, order.WarehouseID, item.ItemsPerBox, units); err != nil {
			return Order{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit receive: %w", err)
	}

	if s.Bus != nil {
		_, _ = s.Bus.Emit(ctx, tenantID, events.TopicPurchaseReceived, order.ID, map[string]any{
			"orderId":     order.ID,
			"dealerName":  order.DealerName,
			"warehouseId": order.WarehouseID,
			"items":       len(order.Items),
		})
	}
	return order, nil
}

// transitionError distinguishes a missing order from one in the wrong state.
func (s *Service) transitionError(ctx context.Context, tenantID, orderID string, want Status) error {
	var current string
	err := s.Pool.QueryRow(ctx,
		`SELECT status FROM purchase_orders WHERE id = $1 AND tenant_id = $2`,
		orderID, tenantID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return common.NotFoundErr("purchase order not found")
	}
	if err != nil {
		return fmt.Errorf("check order status: %w", err)
	}
	return common.NewAppError("INVALID_STATE",
		fmt.Sprintf("order is %s, expected %s", current, want), http.StatusConflict, nil)
}

// Get loads one order with items.
func (s *Service) Get(ctx context.Context, tenantID, orderID string) (Order, error) {
	return s.get(ctx, s.Pool, tenantID, orderID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Service) get(ctx context.Context, q querier, tenantID, orderID string) (Order, error) {
	var o Order
	var status string
	err := q.QueryRow(ctx, `
		SELECT id, dealer_name, COALESCE(dealer_phone, ''), warehouse_id, status,
			COALESCE(created_by::text, ''), created_at::text, updated_at::text
		FROM purchase_orders
		WHERE id = $1 AND tenant_id = $2`,
		orderID, tenantID,
	).Scan(&o.ID, &o.DealerName, &o.DealerPhone, &o.WarehouseID, &status, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, common.NotFoundErr("purchase order not found")
	}
	if err != nil {
		return Order{}, fmt.Errorf("get purchase order: %w", err)
	}
	o.Status = Status(status)

	rows, err := q.Query(ctx, `
		SELECT poi.id, poi.product_id, p.name, poi.quantity_boxes, poi.quantity_loose, poi.items_per_box, poi.unit_cost
		FROM purchase_order_items poi
		JOIN products p ON p.id = poi.product_id
		WHERE poi.purchase_order_id = $1
		ORDER BY poi.id`,
		orderID)
	if err != nil {
		return Order{}, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.QuantityBoxes, &it.QuantityLoose, &it.ItemsPerBox, &it.UnitCost); err != nil {
			return Order{}, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Order{}, fmt.Errorf("iterate order items: %w", err)
	}
	return o, nil
}

// List returns order headers for the tenant, newest first, optionally
// filtered by status.
func (s *Service) List(ctx context.Context, tenantID, status string, limit, offset int) ([]Order, int, error) {
	where := "tenant_id = $1"
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := s.Pool.QueryRow(ctx,
		"SELECT count(*) FROM purchase_orders WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count purchase orders: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
		SELECT id, dealer_name, COALESCE(dealer_phone, ''), warehouse_id, status,
			COALESCE(created_by::text, ''), created_at::text, updated_at::text
		FROM purchase_orders
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list purchase orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0, limit)
	for rows.Next() {
		var o Order
		var st string
		if err := rows.Scan(&o.ID, &o.DealerName, &o.DealerPhone, &o.WarehouseID, &st, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan purchase order: %w", err)
		}
		o.Status = Status(st)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate purchase orders: %w", err)
	}
	return orders, total, nil
}
