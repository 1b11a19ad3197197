package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Task type identifiers routed through the asynq queue.
const (
	TaskBillCreated   = "notify:bill_created"
	TaskBillPaid      = "notify:bill_paid"
	TaskBillDelivered = "notify:bill_delivered"
	TaskStockLow      = "notify:stock_low"
)

// BillPayload carries the fields needed to compose bill notifications.
type BillPayload struct {
	TenantID      string  `json:"tenantId"`
	BillID        string  `json:"billId"`
	InvoiceNumber string  `json:"invoiceNumber"`
	CustomerName  string  `json:"customerName"`
	CustomerPhone string  `json:"customerPhone"`
	GrandTotal    float64 `json:"grandTotal"`
	Balance       float64 `json:"balance"`
}

// StockLowPayload carries one low-stock alert line.
type StockLowPayload struct {
	TenantID    string `json:"tenantId"`
	ProductName string `json:"productName"`
	Warehouse   string `json:"warehouse"`
	Remaining   int    `json:"remaining"`
	AlertPhone  string `json:"alertPhone"`
}

// NewBillTask builds an asynq task of the given bill-related type.
func NewBillTask(taskType string, p BillPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	return asynq.NewTask(taskType, data), nil
}

// NewStockLowTask builds a low-stock alert task.
func NewStockLowTask(p StockLowPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal stock low payload: %w", err)
	}
	return asynq.NewTask(TaskStockLow, data), nil
}

// Handler processes notification tasks by rendering a message and pushing it
// through the gateway. Register it on an asynq.ServeMux via Register.
type Handler struct {
	Sender        Sender
	Log           zerolog.Logger
	Notifications *prometheus.CounterVec

	// Currency prefixes amounts in outgoing messages. Empty means INR.
	Currency string
}

// Register mounts all notification task handlers on the mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskBillCreated, h.HandleBill)
	mux.HandleFunc(TaskBillPaid, h.HandleBill)
	mux.HandleFunc(TaskBillDelivered, h.HandleBill)
	mux.HandleFunc(TaskStockLow, h.HandleStockLow)
}

// HandleBill delivers a bill lifecycle notification to the bill's customer.
func (h *Handler) HandleBill(ctx context.Context, t *asynq.Task) error {
	var p BillPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %w", t.Type(), err)
	}
	if p.CustomerPhone == "" {
		// Walk-in customers without a phone simply get no message.
		return nil
	}
	err := h.Sender.SendText(ctx, p.CustomerPhone, h.billMessage(t.Type(), p))
	h.observe(t.Type(), err)
	if err != nil {
		h.Log.Error().Err(err).
			Str("tenant_id", p.TenantID).
			Str("bill_id", p.BillID).
			Str("task", t.Type()).
			Msg("bill notification failed")
		return err
	}
	return nil
}

// HandleStockLow delivers a low-stock alert to the tenant's alert phone.
func (h *Handler) HandleStockLow(ctx context.Context, t *asynq.Task) error {
	var p StockLowPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %w", t.Type(), err)
	}
	if p.AlertPhone == "" {
		return nil
	}
	body := fmt.Sprintf("Low stock: %s at %s has %d units left.", p.ProductName, p.Warehouse, p.Remaining)
	err := h.Sender.SendText(ctx, p.AlertPhone, body)
	h.observe(t.Type(), err)
	if err != nil {
		h.Log.Error().Err(err).
			Str("tenant_id", p.TenantID).
			Str("product", p.ProductName).
			Msg("stock alert failed")
		return err
	}
	return nil
}

func (h *Handler) observe(kind string, err error) {
	if h.Notifications == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.Notifications.WithLabelValues(kind, result).Inc()
}

func (h *Handler) billMessage(taskType string, p BillPayload) string {
	cur := h.Currency
	if cur == "" {
		cur = "INR"
	}
	switch taskType {
	case TaskBillPaid:
		return fmt.Sprintf("Hi %s, payment received for invoice %s. Balance due: %s %.2f.",
			p.CustomerName, p.InvoiceNumber, cur, p.Balance)
	case TaskBillDelivered:
		return fmt.Sprintf("Hi %s, your order %s has been delivered. Thank you!",
			p.CustomerName, p.InvoiceNumber)
	default:
		return fmt.Sprintf("Hi %s, invoice %s has been created for %s %.2f. Balance due: %s %.2f.",
			p.CustomerName, p.InvoiceNumber, cur, p.GrandTotal, cur, p.Balance)
	}
}
