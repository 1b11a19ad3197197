// Package returns handles post-sale item returns against a bill. Returned
// quantities go back into warehouse stock and the refund is valued at the
// tax-inclusive selling price each item was billed at.
package returns

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/stock"
)

// ErrExceedsBilled is returned when a return asks for more items than the
// bill line has left to return.
var ErrExceedsBilled = errors.New("returns: quantity exceeds billed items")

// BilledLine is a bill line with its remaining returnable quantity.
type BilledLine struct {
	BillItemID    string
	StockID       string
	SellingPrice  float64
	BilledItems   int
	ReturnedItems int
}

// ItemInput requests a return of some items from one bill line.
type ItemInput struct {
	BillItemID    string `json:"billItemId" validate:"required"`
	QuantityItems int    `json:"quantityItems" validate:"gt=0"`
}

// CreateInput is a return request against one bill.
type CreateInput struct {
	Reason string      `json:"reason"`
	Items  []ItemInput `json:"items" validate:"min=1,dive"`
}

// Line is one valued return line.
type Line struct {
	BillItemID    string  `json:"billItemId"`
	StockID       string  `json:"stockId"`
	QuantityItems int     `json:"quantityItems"`
	Amount        float64 `json:"amount"`
}

// Return is a persisted return with its refund value.
type Return struct {
	ID           string  `json:"id"`
	BillID       string  `json:"billId"`
	Reason       string  `json:"reason,omitempty"`
	RefundAmount float64 `json:"refundAmount"`
	Lines        []Line  `json:"lines"`
	CreatedBy    string  `json:"createdBy,omitempty"`
	CreatedAt    string  `json:"createdAt"`
}

// Value validates the requested quantities against what each bill line has
// left and prices every accepted line at its billed selling price.
func Value(billed []BilledLine, reqs []ItemInput) ([]Line, float64, error) {
	byID := make(map[string]BilledLine, len(billed))
	for _, b := range billed {
		byID[b.BillItemID] = b
	}

	lines := make([]Line, 0, len(reqs))
	var total float64
	requested := map[string]int{}
	for i, req := range reqs {
		if req.QuantityItems <= 0 {
			return nil, 0, common.BadRequest("VALIDATION_ERROR",
				fmt.Sprintf("item %d: quantityItems must be positive", i+1), nil)
		}
		b, ok := byID[req.BillItemID]
		if !ok {
			return nil, 0, common.NotFoundErr("bill item not found")
		}
		requested[req.BillItemID] += req.QuantityItems
		if requested[req.BillItemID] > b.BilledItems-b.ReturnedItems {
			return nil, 0, fmt.Errorf("item %d: %w", i+1, ErrExceedsBilled)
		}
		amount := float64(req.QuantityItems) * b.SellingPrice
		lines = append(lines, Line{
			BillItemID:    req.BillItemID,
			StockID:       b.StockID,
			QuantityItems: req.QuantityItems,
			Amount:        amount,
		})
		total += amount
	}
	return lines, total, nil
}

// Service persists returns and restocks returned items.
type Service struct {
	Pool  *pgxpool.Pool
	Stock *stock.Repo
	Bus   *events.Bus
}

// Create records a return against a bill, restocks the returned quantities,
// and values the refund. Everything runs in one transaction.
func (s *Service) Create(ctx context.Context, tenantID, billID, userID string, in CreateInput) (Return, error) {
	if len(in.Items) == 0 {
		return Return{}, common.BadRequest("VALIDATION_ERROR", "return must contain at least one item", nil)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Return{}, fmt.Errorf("begin create return: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row lock on the bill serializes concurrent returns so the remaining
	// returnable quantity cannot be oversubscribed.
	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT true FROM bills WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		billID, tenantID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return Return{}, common.NotFoundErr("bill not found")
	}
	if err != nil {
		return Return{}, fmt.Errorf("lock bill: %w", err)
	}

	billed, err := billedLines(ctx, tx, billID)
	if err != nil {
		return Return{}, err
	}

	lines, refund, err := Value(billed, in.Items)
	if err != nil {
		if errors.Is(err, ErrExceedsBilled) {
			return Return{}, common.NewAppError("EXCEEDS_BILLED", err.Error(), http.StatusConflict, err)
		}
		return Return{}, err
	}

	var ret Return
	err = tx.QueryRow(ctx, `
		INSERT INTO bill_returns (tenant_id, bill_id, reason, refund_amount, created_by)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, '')::uuid)
		RETURNING id, created_at::text`,
		tenantID, billID, in.Reason, refund, userID,
	).Scan(&ret.ID, &ret.CreatedAt)
	if err != nil {
		return Return{}, fmt.Errorf("insert return: %w", err)
	}
	ret.BillID = billID
	ret.Reason = in.Reason
	ret.RefundAmount = refund
	ret.CreatedBy = userID

	for i, line := range lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO bill_return_items (return_id, bill_item_id, stock_id, quantity_items, amount)
			VALUES ($1, $2, $3, $4, $5)`,
			ret.ID, line.BillItemID, line.StockID, line.QuantityItems, line.Amount)
		if err != nil {
			return Return{}, fmt.Errorf("insert return item %d: %w", i+1, err)
		}
		if err := s.Stock.Restock(ctx, tx, tenantID, line.StockID, line.QuantityItems); err != nil {
			return Return{}, err
		}
	}
	ret.Lines = lines

	if err := tx.Commit(ctx); err != nil {
		return Return{}, fmt.Errorf("commit create return: %w", err)
	}

	if s.Bus != nil {
		_, _ = s.Bus.Emit(ctx, tenantID, events.TopicBillReturned, billID, map[string]any{
			"returnId":     ret.ID,
			"billId":       billID,
			"refundAmount": refund,
		})
	}
	return ret, nil
}

func billedLines(ctx context.Context, tx pgx.Tx, billID string) ([]BilledLine, error) {
	rows, err := tx.Query(ctx, `
		SELECT bi.id, bi.stock_id, bi.selling_price, bi.total_items,
			COALESCE((
				SELECT SUM(bri.quantity_items)
				FROM bill_return_items bri
				JOIN bill_returns br ON br.id = bri.return_id
				WHERE bri.bill_item_id = bi.id
			), 0)
		FROM bill_items bi
		WHERE bi.bill_id = $1`,
		billID)
	if err != nil {
		return nil, fmt.Errorf("list billed lines: %w", err)
	}
	defer rows.Close()

	var billed []BilledLine
	for rows.Next() {
		var b BilledLine
		if err := rows.Scan(&b.BillItemID, &b.StockID, &b.SellingPrice, &b.BilledItems, &b.ReturnedItems); err != nil {
			return nil, fmt.Errorf("scan billed line: %w", err)
		}
		billed = append(billed, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate billed lines: %w", err)
	}
	return billed, nil
}

// ListForBill returns all returns recorded against one bill.
func (s *Service) ListForBill(ctx context.Context, tenantID, billID string) ([]Return, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, bill_id, COALESCE(reason, ''), refund_amount,
			COALESCE(created_by::text, ''), created_at::text
		FROM bill_returns
		WHERE bill_id = $1 AND tenant_id = $2
		ORDER BY created_at`,
		billID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list returns: %w", err)
	}
	defer rows.Close()

	var out []Return
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.BillID, &ret.Reason, &ret.RefundAmount, &ret.CreatedBy, &ret.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan return: %w", err)
		}
		out = append(out, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate returns: %w", err)
	}

	for i := range out {
		lines, err := s.returnLines(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Lines = lines
	}
	return out, nil
}

func (s *Service) returnLines(ctx context.Context, returnID string) ([]Line, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT bill_item_id, stock_id, quantity_items, amount
		FROM bill_return_items
		WHERE return_id = $1
		ORDER BY id`,
		returnID)
	if err != nil {
		return nil, fmt.Errorf("list return items: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.BillItemID, &l.StockID, &l.QuantityItems, &l.Amount); err != nil {
			return nil, fmt.Errorf("scan return item: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
