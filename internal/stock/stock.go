// Package stock tracks on-hand inventory per (product, warehouse) pair and
// implements the reservation math used at bill-creation time. Quantities are
// compared in loose-equivalent units: boxes*itemsPerBox + looseItems.
package stock

import (
	"errors"
	"time"
)

var (
	// ErrInsufficientStock is returned when a reservation exceeds availability.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNotFound is returned when a referenced stock record does not exist.
	ErrNotFound = errors.New("stock record not found")
)

// Record is the on-hand inventory for one (product, warehouse) pair.
// looseItems < itemsPerBox is the normalized form; denormalized reads are
// tolerated and LooseEquivalent stays correct either way.
type Record struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"productId"`
	WarehouseID   string    `json:"warehouseId"`
	Boxes         int       `json:"boxes"`
	ItemsPerBox   int       `json:"itemsPerBox"`
	LooseItems    int       `json:"looseItems"`
	LowStockBoxes *int      `json:"lowStockBoxes,omitempty"`
	LowStockItems *int      `json:"lowStockItems,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// LooseEquivalent normalizes a boxed/loose quantity to pieces.
func LooseEquivalent(boxes, itemsPerBox, loose int) int {
	if itemsPerBox <= 0 {
		itemsPerBox = 1
	}
	if boxes < 0 {
		boxes = 0
	}
	if loose < 0 {
		loose = 0
	}
	return boxes*itemsPerBox + loose
}

// Available returns the record's total stock in loose-equivalent units.
func (r Record) Available() int {
	return LooseEquivalent(r.Boxes, r.ItemsPerBox, r.LooseItems)
}

// Apply computes the residual boxes/loose split after deducting requested
// loose-equivalent units from the given availability.
func Apply(boxes, itemsPerBox, loose, requested int) (newBoxes, newLoose int, err error) {
	if itemsPerBox <= 0 {
		itemsPerBox = 1
	}
	available := LooseEquivalent(boxes, itemsPerBox, loose)
	if requested > available {
		return 0, 0, ErrInsufficientStock
	}
	remaining := available - requested
	return remaining / itemsPerBox, remaining % itemsPerBox, nil
}

// Normalize folds excess loose items into whole boxes.
func Normalize(boxes, itemsPerBox, loose int) (int, int) {
	if itemsPerBox <= 0 {
		itemsPerBox = 1
	}
	total := LooseEquivalent(boxes, itemsPerBox, loose)
	return total / itemsPerBox, total % itemsPerBox
}

// IsOutOfStock reports whether the record has no sellable units left.
func (r Record) IsOutOfStock() bool {
	return r.Available() <= 0
}

// IsLowStock reports whether the record is at or below its low-stock
// threshold. Records without a threshold are never low, only out.
func (r Record) IsLowStock() bool {
	if r.IsOutOfStock() {
		return false
	}
	threshold := 0
	if r.LowStockBoxes != nil || r.LowStockItems != nil {
		boxes := 0
		items := 0
		if r.LowStockBoxes != nil {
			boxes = *r.LowStockBoxes
		}
		if r.LowStockItems != nil {
			items = *r.LowStockItems
		}
		threshold = LooseEquivalent(boxes, r.ItemsPerBox, items)
	}
	if threshold <= 0 {
		return false
	}
	return r.Available() <= threshold
}

// Request is a reservation demand against one stock record, in
// loose-equivalent units.
type Request struct {
	StockID string
	Units   int
}

// RequestedLine is the subset of a bill line the grouping step needs.
type RequestedLine struct {
	StockID       string
	QuantityBoxes int
	QuantityLoose int
	ItemsPerBox   int
}

// GroupRequests sums requested quantities per distinct stock record, keeping
// first-appearance order so reservations apply deterministically. Multiple
// bill lines may reference the same record.
func GroupRequests(lines []RequestedLine) []Request {
	index := make(map[string]int, len(lines))
	grouped := make([]Request, 0, len(lines))
	for _, line := range lines {
		units := LooseEquivalent(line.QuantityBoxes, line.ItemsPerBox, line.QuantityLoose)
		if i, ok := index[line.StockID]; ok {
			grouped[i].Units += units
			continue
		}
		index[line.StockID] = len(grouped)
		grouped = append(grouped, Request{StockID: line.StockID, Units: units})
	}
	return grouped
}
