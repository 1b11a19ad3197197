package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-billing/internal/customer"
	"github.com/noah-isme/backend-billing/internal/payment"
	"github.com/noah-isme/backend-billing/internal/pricing"
	"github.com/noah-isme/backend-billing/internal/stock"
)

// PGStore persists bills in Postgres. CreateBill runs customer upsert,
// invoice numbering, stock reservation, and the bill inserts in a single
// transaction so partial bills can never be observed.
type PGStore struct {
	Pool      *pgxpool.Pool
	Customers *customer.Store
	Stock     *stock.Repo

	// InvoicePrefix leads every invoice number, e.g. INV-20250830-00001.
	InvoicePrefix string
}

// ResolveLines joins each requested product and warehouse to its stock
// record, filling in the tenant's current selling price, tax percent, and
// box size. A product without a stock record in the warehouse maps to
// stock.ErrNotFound.
func (s *PGStore) ResolveLines(ctx context.Context, tenantID string, reqs []LineRequest) ([]pricing.LineInput, error) {
	inputs := make([]pricing.LineInput, 0, len(reqs))
	for i, req := range reqs {
		var in pricing.LineInput
		err := s.Pool.QueryRow(ctx, `
			SELECT sr.id, p.id, sr.warehouse_id, p.selling_price, p.tax_percent, p.items_per_box
			FROM stock_records sr
			JOIN products p ON p.id = sr.product_id
			WHERE sr.tenant_id = $1 AND sr.product_id = $2 AND sr.warehouse_id = $3 AND p.active`,
			tenantID, req.ProductID, req.WarehouseID,
		).Scan(&in.StockID, &in.ProductID, &in.WarehouseID, &in.SellingPrice, &in.TaxPercent, &in.ItemsPerBox)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("line %d: %w", i+1, stock.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve line %d: %w", i+1, err)
		}
		in.QuantityBoxes = req.QuantityBoxes
		in.QuantityLoose = req.QuantityLoose
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func (s *PGStore) CreateBill(ctx context.Context, tenantID string, draft Draft) (Bill, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Bill{}, fmt.Errorf("begin create bill: %w", err)
	}
	defer tx.Rollback(ctx)

	cust, err := s.Customers.Upsert(ctx, tx, tenantID, customer.Customer{
		Name:      draft.Customer.Name,
		Phone:     draft.Customer.Phone,
		Address:   draft.Customer.Address,
		GSTNumber: draft.Customer.GSTNumber,
	})
	if err != nil {
		return Bill{}, err
	}

	billDate := time.Now()
	if draft.BillDate != nil && !draft.BillDate.IsZero() {
		billDate = *draft.BillDate
	}
	invoiceNumber, err := s.nextInvoiceNumber(ctx, tx, tenantID, billDate)
	if err != nil {
		return Bill{}, err
	}

	deliveryStatus := DeliveryNotDispatched
	if draft.DriverID != "" {
		deliveryStatus = DeliveryAssigned
	}

	// Reservations run grouped per stock record so two lines hitting the
	// same record contend once, with their combined quantity.
	requested := make([]stock.RequestedLine, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		requested = append(requested, stock.RequestedLine{
			StockID:       line.StockID,
			QuantityBoxes: line.QuantityBoxes,
			QuantityLoose: line.QuantityLoose,
			ItemsPerBox:   line.ItemsPerBox,
		})
	}
	for _, req := range stock.GroupRequests(requested) {
		if err := s.Stock.Reserve(ctx, tx, tenantID, req.StockID, req.Units); err != nil {
			return Bill{}, err
		}
	}

	var billID string
	err = tx.QueryRow(ctx, `
		INSERT INTO bills (
			tenant_id, invoice_number, bill_date, customer_id, company_gst_number,
			total_items, total_before_tax, total_tax, grand_total,
			payment_mode, cash_amount, upi_amount, card_amount,
			amount_collected, balance_amount, payment_status,
			delivery_status, driver_id, notes, created_by
		) VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NULLIF($18,'')::uuid,NULLIF($19,''),NULLIF($20,'')::uuid)
		RETURNING id`,
		tenantID, invoiceNumber, billDate, cust.ID, draft.CompanyGST,
		draft.Totals.TotalItems, draft.Totals.TotalBeforeTax, draft.Totals.TotalTax, draft.Totals.GrandTotal,
		string(draft.Payment.Mode), draft.Payment.CashAmount, draft.Payment.UPIAmount, draft.Payment.CardAmount,
		draft.Summary.AmountCollected, draft.Summary.BalanceAmount, string(draft.Summary.Status),
		string(deliveryStatus), draft.DriverID, draft.Notes, draft.CreatedBy,
	).Scan(&billID)
	if err != nil {
		return Bill{}, fmt.Errorf("insert bill: %w", err)
	}

	for i, line := range draft.Lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO bill_items (
				bill_id, stock_id, product_id, warehouse_id, position,
				quantity_boxes, quantity_loose, items_per_box, total_items,
				selling_price, tax_percent, gross_amount, tax_amount, total_before_tax
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			billID, line.StockID, line.ProductID, line.WarehouseID, i+1,
			line.QuantityBoxes, line.QuantityLoose, line.ItemsPerBox, line.TotalItems,
			line.SellingPrice, line.TaxPercent, line.GrossAmount, line.TaxAmount, line.TotalBeforeTax,
		)
		if err != nil {
			return Bill{}, fmt.Errorf("insert bill item %d: %w", i+1, err)
		}
	}

	bill, err := s.getBill(ctx, tx, tenantID, billID)
	if err != nil {
		return Bill{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Bill{}, fmt.Errorf("commit create bill: %w", err)
	}
	return bill, nil
}

// nextInvoiceNumber allocates the next per-tenant daily sequence. The upsert
// holds a row lock until the surrounding transaction ends, so concurrent
// bills on the same day get distinct numbers.
func (s *PGStore) nextInvoiceNumber(ctx context.Context, q customer.Querier, tenantID string, at time.Time) (string, error) {
	var seq int64
	err := q.QueryRow(ctx, `
		INSERT INTO invoice_sequences (tenant_id, seq_date, last_seq)
		VALUES ($1, $2::date, 1)
		ON CONFLICT (tenant_id, seq_date)
		DO UPDATE SET last_seq = invoice_sequences.last_seq + 1
		RETURNING last_seq`,
		tenantID, at.Format("2006-01-02"),
	).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("next invoice number: %w", err)
	}
	prefix := s.InvoicePrefix
	if prefix == "" {
		prefix = "INV"
	}
	return fmt.Sprintf("%s-%s-%05d", prefix, at.Format("20060102"), seq), nil
}

const billCols = `
	b.id, b.invoice_number, b.bill_date, b.customer_id, c.name, c.phone,
	COALESCE(b.company_gst_number, ''),
	b.total_items, b.total_before_tax, b.total_tax, b.grand_total,
	b.payment_mode, b.cash_amount, b.upi_amount, b.card_amount,
	b.amount_collected, b.balance_amount, b.payment_status,
	b.delivery_status, b.driver_id, COALESCE(b.notes, ''),
	COALESCE(b.created_by::text, ''), b.created_at, b.updated_at`

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	var mode, status, delivery string
	err := row.Scan(
		&b.ID, &b.InvoiceNumber, &b.BillDate, &b.CustomerID, &b.CustomerName, &b.CustomerPhone,
		&b.CompanyGST,
		&b.TotalItems, &b.TotalBeforeTax, &b.TotalTax, &b.GrandTotal,
		&mode, &b.Payment.CashAmount, &b.Payment.UPIAmount, &b.Payment.CardAmount,
		&b.Collected, &b.Balance, &status,
		&delivery, &b.DriverID, &b.Notes,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Bill{}, ErrBillNotFound
	}
	if err != nil {
		return Bill{}, fmt.Errorf("scan bill: %w", err)
	}
	b.Payment.Mode = payment.Mode(mode)
	b.PaymentStatus = payment.Status(status)
	b.DeliveryStatus = DeliveryStatus(delivery)
	return b, nil
}

func (s *PGStore) GetBill(ctx context.Context, tenantID, billID string) (Bill, error) {
	return s.getBill(ctx, s.Pool, tenantID, billID)
}

func (s *PGStore) getBill(ctx context.Context, q customer.Querier, tenantID, billID string) (Bill, error) {
	bill, err := scanBill(q.QueryRow(ctx, `
		SELECT `+billCols+`
		FROM bills b
		JOIN customers c ON c.id = b.customer_id
		WHERE b.id = $1 AND b.tenant_id = $2`,
		billID, tenantID))
	if err != nil {
		return Bill{}, err
	}

	rows, err := q.Query(ctx, `
		SELECT bi.id, bi.position, bi.stock_id, bi.product_id, p.name, bi.warehouse_id,
			bi.quantity_boxes, bi.quantity_loose, bi.items_per_box, bi.total_items,
			bi.selling_price, bi.tax_percent, bi.gross_amount, bi.tax_amount, bi.total_before_tax
		FROM bill_items bi
		JOIN products p ON p.id = bi.product_id
		WHERE bi.bill_id = $1
		ORDER BY bi.position`,
		billID)
	if err != nil {
		return Bill{}, fmt.Errorf("list bill items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		err := rows.Scan(&it.ID, &it.Position, &it.StockID, &it.ProductID, &it.ProductName, &it.WarehouseID,
			&it.QuantityBoxes, &it.QuantityLoose, &it.ItemsPerBox, &it.TotalItems,
			&it.SellingPrice, &it.TaxPercent, &it.GrossAmount, &it.TaxAmount, &it.TotalBeforeTax)
		if err != nil {
			return Bill{}, fmt.Errorf("scan bill item: %w", err)
		}
		it.LineTotal = it.GrossAmount
		bill.Items = append(bill.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Bill{}, fmt.Errorf("iterate bill items: %w", err)
	}
	return bill, nil
}

// ListBills returns bill headers matching the filter, newest first. Items are
// not loaded; GetBill fetches them for one bill.
func (s *PGStore) ListBills(ctx context.Context, tenantID string, filter ListFilter) ([]Bill, int, error) {
	where := []string{"b.tenant_id = $1"}
	args := []any{tenantID}
	add := func(clause string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.PaymentStatus != "" {
		add("b.payment_status = $%d", filter.PaymentStatus)
	}
	if filter.DeliveryStatus != "" {
		add("b.delivery_status = $%d", filter.DeliveryStatus)
	}
	if filter.CustomerID != "" {
		add("b.customer_id = $%d", filter.CustomerID)
	}
	if filter.From != nil {
		add("b.bill_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("b.bill_date < $%d", *filter.To)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.Pool.QueryRow(ctx,
		"SELECT count(*) FROM bills b WHERE "+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bills: %w", err)
	}

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := (filter.Page - 1) * limit
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM bills b
		JOIN customers c ON c.id = b.customer_id
		WHERE %s
		ORDER BY b.bill_date DESC, b.id DESC
		LIMIT $%d OFFSET $%d`,
		billCols, cond, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	bills := make([]Bill, 0, limit)
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate bills: %w", err)
	}
	return bills, total, nil
}

func (s *PGStore) UpdatePayment(ctx context.Context, tenantID, billID string, split payment.Split, summary payment.Summary) (Bill, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE bills SET
			payment_mode = $1, cash_amount = $2, upi_amount = $3, card_amount = $4,
			amount_collected = $5, balance_amount = $6, payment_status = $7,
			updated_at = now()
		WHERE id = $8 AND tenant_id = $9`,
		string(split.Mode), split.CashAmount, split.UPIAmount, split.CardAmount,
		summary.AmountCollected, summary.BalanceAmount, string(summary.Status),
		billID, tenantID)
	if err != nil {
		return Bill{}, fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Bill{}, ErrBillNotFound
	}
	return s.GetBill(ctx, tenantID, billID)
}

func (s *PGStore) SetDelivery(ctx context.Context, tenantID, billID string, status DeliveryStatus, driverID *string) (Bill, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE bills SET
			delivery_status = $1,
			driver_id = COALESCE($2::uuid, driver_id),
			updated_at = now()
		WHERE id = $3 AND tenant_id = $4`,
		string(status), driverID, billID, tenantID)
	if err != nil {
		return Bill{}, fmt.Errorf("set delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Bill{}, ErrBillNotFound
	}
	return s.GetBill(ctx, tenantID, billID)
}
