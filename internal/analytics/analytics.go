// Package analytics aggregates sales and stock figures for dashboards.
// Queries are read-only and cached briefly in Redis; a slightly stale
// dashboard beats hammering the bills table.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-billing/internal/cache"
)

// SalesPoint is one day of sales.
type SalesPoint struct {
	Date       string  `json:"date"`
	Bills      int     `json:"bills"`
	GrossSales float64 `json:"grossSales"`
	TaxTotal   float64 `json:"taxTotal"`
	Collected  float64 `json:"collected"`
}

// SalesSummary covers a date range.
type SalesSummary struct {
	From        string       `json:"from"`
	To          string       `json:"to"`
	Bills       int          `json:"bills"`
	GrossSales  float64      `json:"grossSales"`
	TaxTotal    float64      `json:"taxTotal"`
	Collected   float64      `json:"collected"`
	Outstanding float64      `json:"outstanding"`
	Daily       []SalesPoint `json:"daily"`
}

// TopProduct is one entry of the best-seller list.
type TopProduct struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	UnitsSold   int     `json:"unitsSold"`
	GrossSales  float64 `json:"grossSales"`
}

// ModeBreakdown sums collections per payment instrument.
type ModeBreakdown struct {
	CashAmount float64 `json:"cashAmount"`
	UPIAmount  float64 `json:"upiAmount"`
	CardAmount float64 `json:"cardAmount"`
}

// StockOverview summarises warehouse inventory health.
type StockOverview struct {
	Products     int `json:"products"`
	StockRecords int `json:"stockRecords"`
	OutOfStock   int `json:"outOfStock"`
	LowStock     int `json:"lowStock"`
}

// Service runs the aggregate queries.
type Service struct {
	Pool  *pgxpool.Pool
	Cache *cache.Cache

	// DefaultRangeDays is the window used when a request carries no explicit
	// from/to bounds. Zero means 30 days.
	DefaultRangeDays int
}

func (s *Service) defaultRange() int {
	if s.DefaultRangeDays <= 0 {
		return 30
	}
	return s.DefaultRangeDays
}

func rangeKey(tenantID, name string, from, to time.Time) string {
	return fmt.Sprintf("analytics:%s:%s:%s:%s", tenantID, name, from.Format("20060102"), to.Format("20060102"))
}

// SalesRange aggregates bills in [from, to] by day.
func (s *Service) SalesRange(ctx context.Context, tenantID string, from, to time.Time) (SalesSummary, error) {
	key := rangeKey(tenantID, "sales", from, to)
	var cached SalesSummary
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	end := to.AddDate(0, 0, 1)
	summary := SalesSummary{From: from.Format("2006-01-02"), To: to.Format("2006-01-02")}

	rows, err := s.Pool.Query(ctx, `
		SELECT bill_date::date::text, count(*), COALESCE(SUM(grand_total), 0),
			COALESCE(SUM(total_tax), 0), COALESCE(SUM(amount_collected), 0)
		FROM bills
		WHERE tenant_id = $1 AND bill_date >= $2 AND bill_date < $3
		GROUP BY bill_date::date
		ORDER BY bill_date::date`,
		tenantID, from, end)
	if err != nil {
		return SalesSummary{}, fmt.Errorf("sales range: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p SalesPoint
		if err := rows.Scan(&p.Date, &p.Bills, &p.GrossSales, &p.TaxTotal, &p.Collected); err != nil {
			return SalesSummary{}, fmt.Errorf("scan sales point: %w", err)
		}
		summary.Daily = append(summary.Daily, p)
		summary.Bills += p.Bills
		summary.GrossSales += p.GrossSales
		summary.TaxTotal += p.TaxTotal
		summary.Collected += p.Collected
	}
	if err := rows.Err(); err != nil {
		return SalesSummary{}, fmt.Errorf("iterate sales points: %w", err)
	}
	summary.Outstanding = summary.GrossSales - summary.Collected

	_ = s.Cache.SetJSON(ctx, key, summary)
	return summary, nil
}

// TopProducts lists the best sellers by units in [from, to].
func (s *Service) TopProducts(ctx context.Context, tenantID string, from, to time.Time, limit int) ([]TopProduct, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	key := fmt.Sprintf("%s:%d", rangeKey(tenantID, "top", from, to), limit)
	var cached []TopProduct
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	rows, err := s.Pool.Query(ctx, `
		SELECT bi.product_id, p.name, SUM(bi.total_items)::int, COALESCE(SUM(bi.gross_amount), 0)
		FROM bill_items bi
		JOIN bills b ON b.id = bi.bill_id
		JOIN products p ON p.id = bi.product_id
		WHERE b.tenant_id = $1 AND b.bill_date >= $2 AND b.bill_date < $3
		GROUP BY bi.product_id, p.name
		ORDER BY SUM(bi.total_items) DESC
		LIMIT $4`,
		tenantID, from, to.AddDate(0, 0, 1), limit)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	defer rows.Close()

	out := make([]TopProduct, 0, limit)
	for rows.Next() {
		var tp TopProduct
		if err := rows.Scan(&tp.ProductID, &tp.ProductName, &tp.UnitsSold, &tp.GrossSales); err != nil {
			return nil, fmt.Errorf("scan top product: %w", err)
		}
		out = append(out, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top products: %w", err)
	}

	_ = s.Cache.SetJSON(ctx, key, out)
	return out, nil
}

// PaymentModes sums collected amounts per instrument in [from, to].
func (s *Service) PaymentModes(ctx context.Context, tenantID string, from, to time.Time) (ModeBreakdown, error) {
	key := rangeKey(tenantID, "modes", from, to)
	var cached ModeBreakdown
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	var mb ModeBreakdown
	err := s.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(cash_amount), 0), COALESCE(SUM(upi_amount), 0), COALESCE(SUM(card_amount), 0)
		FROM bills
		WHERE tenant_id = $1 AND bill_date >= $2 AND bill_date < $3`,
		tenantID, from, to.AddDate(0, 0, 1),
	).Scan(&mb.CashAmount, &mb.UPIAmount, &mb.CardAmount)
	if err != nil {
		return ModeBreakdown{}, fmt.Errorf("payment modes: %w", err)
	}

	_ = s.Cache.SetJSON(ctx, key, mb)
	return mb, nil
}

// WarmSalesCaches drops and recomputes the default-range sales and
// payment-mode aggregates for every tenant. Returns the number of tenants
// refreshed.
func (s *Service) WarmSalesCaches(ctx context.Context) (int, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id FROM tenants`)
	if err != nil {
		return 0, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate tenants: %w", err)
	}

	to := time.Now()
	from := to.AddDate(0, 0, -s.defaultRange())
	warmed := 0
	for _, id := range tenants {
		s.Cache.Invalidate(ctx, rangeKey(id, "sales", from, to), rangeKey(id, "modes", from, to))
		if _, err := s.SalesRange(ctx, id, from, to); err != nil {
			return warmed, err
		}
		if _, err := s.PaymentModes(ctx, id, from, to); err != nil {
			return warmed, err
		}
		warmed++
	}
	return warmed, nil
}

// Stock summarises current inventory without a cache: operators look at it
// right after receiving or billing and expect fresh numbers.
func (s *Service) Stock(ctx context.Context, tenantID string) (StockOverview, error) {
	var so StockOverview
	err := s.Pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM products WHERE tenant_id = $1 AND active),
			count(*),
			count(*) FILTER (WHERE boxes*items_per_box + loose_items = 0),
			count(*) FILTER (WHERE
				(low_stock_boxes IS NOT NULL OR low_stock_items IS NOT NULL)
				AND boxes*items_per_box + loose_items <=
					COALESCE(low_stock_boxes, 0)*items_per_box + COALESCE(low_stock_items, 0)
				AND boxes*items_per_box + loose_items > 0)
		FROM stock_records
		WHERE tenant_id = $1`,
		tenantID,
	).Scan(&so.Products, &so.StockRecords, &so.OutOfStock, &so.LowStock)
	if err != nil {
		return StockOverview{}, fmt.Errorf("stock overview: %w", err)
	}
	return so, nil
}
