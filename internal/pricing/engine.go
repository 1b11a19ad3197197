// Package pricing implements line-item pricing for GST bills. Selling prices
// are tax-inclusive: the tax component is extracted from the gross amount by
// division, never added on top of it.
package pricing

import "errors"

// ErrEmptyBill is returned when a bill is aggregated with no line items.
var ErrEmptyBill = errors.New("bill must contain at least one item")

// LineInput is one requested purchase line at bill-creation time.
type LineInput struct {
	StockID       string  `json:"stockId"`
	ProductID     string  `json:"productId"`
	WarehouseID   string  `json:"warehouseId"`
	SellingPrice  float64 `json:"sellingPrice"`
	TaxPercent    float64 `json:"taxPercent"`
	QuantityBoxes int     `json:"quantityBoxes"`
	QuantityLoose int     `json:"quantityLoose"`
	ItemsPerBox   int     `json:"itemsPerBox"`
}

// LineComputed extends a LineInput with its derived amounts.
type LineComputed struct {
	LineInput
	TotalItems     int     `json:"totalItems"`
	GrossAmount    float64 `json:"grossAmount"`
	TaxAmount      float64 `json:"taxAmount"`
	TotalBeforeTax float64 `json:"totalBeforeTax"`
	LineTotal      float64 `json:"lineTotal"`
}

// Totals aggregates computed lines into bill-level amounts.
type Totals struct {
	TotalItems     int     `json:"totalItems"`
	TotalBeforeTax float64 `json:"totalBeforeTax"`
	TotalTax       float64 `json:"totalTax"`
	GrandTotal     float64 `json:"grandTotal"`
}

// PriceLine converts one requested line into its computed amounts. It never
// fails: malformed inputs are clamped so they contribute zero-valued amounts,
// matching how existing invoices were produced.
func PriceLine(in LineInput) LineComputed {
	if in.ItemsPerBox <= 0 {
		in.ItemsPerBox = 1
	}
	if in.QuantityBoxes < 0 {
		in.QuantityBoxes = 0
	}
	if in.QuantityLoose < 0 {
		in.QuantityLoose = 0
	}
	if in.SellingPrice < 0 {
		in.SellingPrice = 0
	}
	if in.TaxPercent < 0 {
		in.TaxPercent = 0
	}

	totalItems := in.QuantityBoxes*in.ItemsPerBox + in.QuantityLoose
	gross := float64(totalItems) * in.SellingPrice
	var tax float64
	if in.TaxPercent > 0 {
		// Inclusive-tax extraction: the inverse of adding taxPercent onto a
		// base price. gross*taxPercent/100 would overstate the tax.
		tax = gross * in.TaxPercent / (100 + in.TaxPercent)
	}
	return LineComputed{
		LineInput:      in,
		TotalItems:     totalItems,
		GrossAmount:    gross,
		TaxAmount:      tax,
		TotalBeforeTax: gross - tax,
		LineTotal:      gross,
	}
}

// PriceLines prices every input line, preserving order.
func PriceLines(inputs []LineInput) []LineComputed {
	lines := make([]LineComputed, 0, len(inputs))
	for _, in := range inputs {
		lines = append(lines, PriceLine(in))
	}
	return lines
}

// Aggregate sums computed lines into bill totals in input order so invoice
// rendering is reproducible. An empty line list is rejected before any stock
// mutation can happen.
func Aggregate(lines []LineComputed) (Totals, error) {
	if len(lines) == 0 {
		return Totals{}, ErrEmptyBill
	}
	var t Totals
	for _, line := range lines {
		t.TotalItems += line.TotalItems
		t.TotalBeforeTax += line.TotalBeforeTax
		t.TotalTax += line.TaxAmount
		t.GrandTotal += line.LineTotal
	}
	return t, nil
}
