// Package billing implements bill creation and its follow-up operations:
// payment top-ups, delivery updates, and bill queries. Creating a bill
// prices the requested lines, reconciles the tendered payment, and reserves
// stock inside one transaction so a failure at any step leaves nothing
// behind.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/lock"
	"github.com/noah-isme/backend-billing/internal/payment"
	"github.com/noah-isme/backend-billing/internal/pricing"
	"github.com/noah-isme/backend-billing/internal/stock"
)

// Store is the persistence boundary for bills. CreateBill runs its whole
// pipeline, customer upsert, invoice numbering, stock reservation, and row
// inserts, in one transaction.
type Store interface {
	ResolveLines(ctx context.Context, tenantID string, reqs []LineRequest) ([]pricing.LineInput, error)
	CreateBill(ctx context.Context, tenantID string, draft Draft) (Bill, error)
	GetBill(ctx context.Context, tenantID, billID string) (Bill, error)
	ListBills(ctx context.Context, tenantID string, filter ListFilter) ([]Bill, int, error)
	UpdatePayment(ctx context.Context, tenantID, billID string, split payment.Split, summary payment.Summary) (Bill, error)
	SetDelivery(ctx context.Context, tenantID, billID string, status DeliveryStatus, driverID *string) (Bill, error)
}

// Service coordinates the bill lifecycle.
type Service struct {
	Store   Store
	Locker  lock.Locker
	Bus     *events.Bus
	Log     zerolog.Logger
	LockTTL time.Duration

	// CreateTimeout bounds the whole create pipeline, transaction included.
	// Zero disables the bound.
	CreateTimeout time.Duration

	BillsCreated *prometheus.CounterVec
	Reservations *prometheus.CounterVec
	TopUps       *prometheus.CounterVec
	Collected    *prometheus.CounterVec
}

// Create prices, reconciles, and persists a new bill. Validation and pricing
// run before any database work; the store call is all-or-nothing.
func (s *Service) Create(ctx context.Context, tenantID, userID string, in CreateInput) (Bill, error) {
	if s.CreateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.CreateTimeout)
		defer cancel()
	}
	bill, err := s.create(ctx, tenantID, userID, in)
	s.count(s.BillsCreated, resultLabel(err))
	return bill, err
}

func (s *Service) create(ctx context.Context, tenantID, userID string, in CreateInput) (Bill, error) {
	if len(in.Lines) == 0 {
		return Bill{}, common.BadRequest("VALIDATION_ERROR", "bill must contain at least one item", nil)
	}
	if strings.TrimSpace(in.Customer.Name) == "" || strings.TrimSpace(in.Customer.Phone) == "" {
		return Bill{}, common.BadRequest("VALIDATION_ERROR", "customer name and phone are required", nil)
	}
	for i, line := range in.Lines {
		if line.ProductID == "" || line.WarehouseID == "" {
			return Bill{}, common.BadRequest("VALIDATION_ERROR",
				fmt.Sprintf("line %d: productId and warehouseId are required", i+1), nil)
		}
		if line.QuantityBoxes < 0 || line.QuantityLoose < 0 {
			return Bill{}, common.BadRequest("VALIDATION_ERROR",
				fmt.Sprintf("line %d: quantities must not be negative", i+1), nil)
		}
		if line.QuantityBoxes == 0 && line.QuantityLoose == 0 {
			return Bill{}, common.BadRequest("VALIDATION_ERROR",
				fmt.Sprintf("line %d: quantity must be positive", i+1), nil)
		}
	}

	inputs, err := s.Store.ResolveLines(ctx, tenantID, in.Lines)
	if err != nil {
		return Bill{}, mapStockErr(err)
	}

	computed := pricing.PriceLines(inputs)
	totals, err := pricing.Aggregate(computed)
	if err != nil {
		return Bill{}, common.BadRequest("VALIDATION_ERROR", err.Error(), nil)
	}

	split := in.Payment
	split.Mode = payment.NormalizeMode(split)
	summary, err := payment.Reconcile(split, totals.GrandTotal)
	if err != nil {
		return Bill{}, mapPaymentErr(err)
	}

	bill, err := s.Store.CreateBill(ctx, tenantID, Draft{
		Customer:   in.Customer,
		Lines:      computed,
		Totals:     totals,
		Payment:    split,
		Summary:    summary,
		CompanyGST: strings.TrimSpace(in.CompanyGST),
		BillDate:   in.BillDate,
		DriverID:   strings.TrimSpace(in.DriverID),
		Notes:      strings.TrimSpace(in.Notes),
		CreatedBy:  userID,
	})
	if err != nil {
		s.count(s.Reservations, resultLabel(err))
		return Bill{}, mapStockErr(err)
	}
	s.count(s.Reservations, "ok")
	s.observeCollected(split)

	s.emit(ctx, tenantID, events.TopicBillCreated, bill)
	if bill.PaymentStatus == payment.StatusFullyPaid {
		s.emit(ctx, tenantID, events.TopicBillPaid, bill)
	}
	s.Log.Info().
		Str("tenant_id", tenantID).
		Str("bill_id", bill.ID).
		Str("invoice_number", bill.InvoiceNumber).
		Float64("grand_total", bill.GrandTotal).
		Str("payment_status", string(bill.PaymentStatus)).
		Msg("bill created")
	return bill, nil
}

// TopUp applies an additional payment to an existing bill. The per-bill lock
// serializes concurrent top-ups so the cumulative amount can never exceed
// the grand total.
func (s *Service) TopUp(ctx context.Context, tenantID, billID string, delta payment.Split) (Bill, error) {
	var bill Bill
	err := s.Locker.WithLock(ctx, lock.BillKey(tenantID, billID), s.LockTTL, func(ctx context.Context) error {
		current, err := s.Store.GetBill(ctx, tenantID, billID)
		if err != nil {
			return mapStockErr(err)
		}
		wasFullyPaid := current.PaymentStatus == payment.StatusFullyPaid

		next, summary, err := payment.ApplyTopUp(current.Payment, delta, current.GrandTotal)
		if err != nil {
			return mapPaymentErr(err)
		}

		bill, err = s.Store.UpdatePayment(ctx, tenantID, billID, next, summary)
		if err != nil {
			return mapStockErr(err)
		}
		s.observeCollected(delta)

		if !wasFullyPaid && bill.PaymentStatus == payment.StatusFullyPaid {
			s.emit(ctx, tenantID, events.TopicBillPaid, bill)
		}
		return nil
	})
	s.count(s.TopUps, resultLabel(err))
	if err != nil {
		return Bill{}, err
	}
	return bill, nil
}

// AssignDriver moves the bill to ASSIGNED with the given driver.
func (s *Service) AssignDriver(ctx context.Context, tenantID, billID, driverID string) (Bill, error) {
	if strings.TrimSpace(driverID) == "" {
		return Bill{}, common.BadRequest("VALIDATION_ERROR", "driverId is required", nil)
	}
	return s.setDelivery(ctx, tenantID, billID, DeliveryAssigned, &driverID)
}

// MarkDelivered moves the bill to DELIVERED. Payment state is untouched;
// an unpaid delivered bill simply carries its balance.
func (s *Service) MarkDelivered(ctx context.Context, tenantID, billID string) (Bill, error) {
	return s.setDelivery(ctx, tenantID, billID, DeliveryDelivered, nil)
}

func (s *Service) setDelivery(ctx context.Context, tenantID, billID string, status DeliveryStatus, driverID *string) (Bill, error) {
	var bill Bill
	err := s.Locker.WithLock(ctx, lock.BillKey(tenantID, billID), s.LockTTL, func(ctx context.Context) error {
		current, err := s.Store.GetBill(ctx, tenantID, billID)
		if err != nil {
			return mapStockErr(err)
		}
		if current.DeliveryStatus == DeliveryDelivered {
			return common.NewAppError("ALREADY_DELIVERED", "bill is already delivered", http.StatusConflict, nil)
		}
		bill, err = s.Store.SetDelivery(ctx, tenantID, billID, status, driverID)
		if err != nil {
			return mapStockErr(err)
		}
		if status == DeliveryDelivered {
			s.emit(ctx, tenantID, events.TopicBillDelivered, bill)
		}
		return nil
	})
	if err != nil {
		return Bill{}, err
	}
	return bill, nil
}

// Get loads one bill with its items.
func (s *Service) Get(ctx context.Context, tenantID, billID string) (Bill, error) {
	bill, err := s.Store.GetBill(ctx, tenantID, billID)
	if err != nil {
		return Bill{}, mapStockErr(err)
	}
	return bill, nil
}

// List returns bills matching the filter, newest first.
func (s *Service) List(ctx context.Context, tenantID string, filter ListFilter) ([]Bill, int, error) {
	return s.Store.ListBills(ctx, tenantID, filter)
}

func (s *Service) emit(ctx context.Context, tenantID, topic string, bill Bill) {
	if s.Bus == nil {
		return
	}
	payloadBill := struct {
		TenantID      string  `json:"tenantId"`
		BillID        string  `json:"billId"`
		InvoiceNumber string  `json:"invoiceNumber"`
		CustomerName  string  `json:"customerName"`
		CustomerPhone string  `json:"customerPhone"`
		GrandTotal    float64 `json:"grandTotal"`
		Balance       float64 `json:"balance"`
	}{
		TenantID:      tenantID,
		BillID:        bill.ID,
		InvoiceNumber: bill.InvoiceNumber,
		CustomerName:  bill.CustomerName,
		CustomerPhone: bill.CustomerPhone,
		GrandTotal:    bill.GrandTotal,
		Balance:       bill.Balance,
	}
	if _, err := s.Bus.Emit(ctx, tenantID, topic, bill.ID, payloadBill); err != nil {
		s.Log.Error().Err(err).Str("topic", topic).Str("bill_id", bill.ID).Msg("emit event")
	}
}

func (s *Service) count(vec *prometheus.CounterVec, result string) {
	if vec != nil {
		vec.WithLabelValues(result).Inc()
	}
}

func (s *Service) observeCollected(split payment.Split) {
	if s.Collected == nil {
		return
	}
	if split.CashAmount > 0 {
		s.Collected.WithLabelValues(string(payment.ModeCash)).Add(split.CashAmount)
	}
	if split.UPIAmount > 0 {
		s.Collected.WithLabelValues(string(payment.ModeUPI)).Add(split.UPIAmount)
	}
	if split.CardAmount > 0 {
		s.Collected.WithLabelValues(string(payment.ModeCard)).Add(split.CardAmount)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

func mapStockErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stock.ErrInsufficientStock):
		return common.NewAppError("INSUFFICIENT_STOCK", "not enough stock to fulfil the bill", http.StatusBadRequest, err)
	case errors.Is(err, stock.ErrNotFound):
		return common.NewAppError("NOT_FOUND", "stock record not found", http.StatusNotFound, err)
	case errors.Is(err, ErrBillNotFound):
		return common.NotFoundErr("bill not found")
	default:
		return err
	}
}

func mapPaymentErr(err error) error {
	switch {
	case errors.Is(err, payment.ErrOverpayment):
		return common.NewAppError("OVERPAYMENT", "collected amount exceeds the bill total", http.StatusBadRequest, err)
	case errors.Is(err, payment.ErrInvalidPayment):
		return common.BadRequest("VALIDATION_ERROR", "payment amounts must not be negative", err)
	default:
		return err
	}
}

// ErrBillNotFound is returned by stores when the bill id is unknown.
var ErrBillNotFound = errors.New("billing: bill not found")
