package billing

import (
	"time"

	"github.com/noah-isme/backend-billing/internal/payment"
	"github.com/noah-isme/backend-billing/internal/pricing"
)

// DeliveryStatus tracks dispatch progress independently of payment state.
type DeliveryStatus string

const (
	DeliveryNotDispatched DeliveryStatus = "NOT_DISPATCHED"
	DeliveryAssigned      DeliveryStatus = "ASSIGNED"
	DeliveryDelivered     DeliveryStatus = "DELIVERED"
)

// Item is one persisted bill line with its computed amounts.
type Item struct {
	ID          string `json:"id"`
	Position    int    `json:"position"`
	ProductName string `json:"productName,omitempty"`
	pricing.LineComputed
}

// Bill is a finalized GST invoice.
type Bill struct {
	ID             string          `json:"id"`
	InvoiceNumber  string          `json:"invoiceNumber"`
	BillDate       time.Time       `json:"billDate"`
	CustomerID     string          `json:"customerId"`
	CustomerName   string          `json:"customerName,omitempty"`
	CustomerPhone  string          `json:"customerPhone,omitempty"`
	CompanyGST     string          `json:"companyGstNumber,omitempty"`
	Items          []Item          `json:"items,omitempty"`
	TotalItems     int             `json:"totalItems"`
	TotalBeforeTax float64         `json:"totalBeforeTax"`
	TotalTax       float64         `json:"totalTax"`
	GrandTotal     float64         `json:"grandTotal"`
	Payment        payment.Split   `json:"payment"`
	Collected      float64         `json:"amountCollected"`
	Balance        float64         `json:"balanceAmount"`
	PaymentStatus  payment.Status  `json:"paymentStatus"`
	DeliveryStatus DeliveryStatus  `json:"deliveryStatus"`
	DriverID       *string         `json:"driverId,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      string          `json:"createdBy,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// LineRequest is one requested purchase line in a create-bill call.
type LineRequest struct {
	ProductID     string `json:"productId" validate:"required"`
	WarehouseID   string `json:"warehouseId" validate:"required"`
	QuantityBoxes int    `json:"quantityBoxes" validate:"gte=0"`
	QuantityLoose int    `json:"quantityLoose" validate:"gte=0"`
}

// CustomerInput identifies or creates the bill's customer.
type CustomerInput struct {
	Name      string `json:"name" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
	Address   string `json:"address"`
	GSTNumber string `json:"gstNumber"`
}

// CreateInput is the full create-bill request. BillDate backdates the bill
// when set; DriverID assigns a driver at creation, skipping the separate
// delivery call.
type CreateInput struct {
	Customer   CustomerInput `json:"customer"`
	Lines      []LineRequest `json:"lines" validate:"min=1,dive"`
	Payment    payment.Split `json:"payment"`
	CompanyGST string        `json:"companyGstNumber"`
	BillDate   *time.Time    `json:"billDate"`
	DriverID   string        `json:"driverId"`
	Notes      string        `json:"notes"`
}

// Draft carries everything the store needs to persist a priced bill.
type Draft struct {
	Customer   CustomerInput
	Lines      []pricing.LineComputed
	Totals     pricing.Totals
	Payment    payment.Split
	Summary    payment.Summary
	CompanyGST string
	BillDate   *time.Time
	DriverID   string
	Notes      string
	CreatedBy  string
}

// ListFilter narrows bill listings.
type ListFilter struct {
	PaymentStatus  string
	DeliveryStatus string
	CustomerID     string
	From           *time.Time
	To             *time.Time
	Page           int
	PerPage        int
}
