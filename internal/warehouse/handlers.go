package warehouse

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/stock"
	"github.com/noah-isme/backend-billing/internal/tenant"
)

// Handler exposes warehouse and stock-entry endpoints.
type Handler struct {
	Store          *Store
	Stock          *stock.Repo
	DefaultPerPage int
	MaxPerPage     int
}

// List handles GET /api/v1/warehouses.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	warehouses, err := h.Store.List(r.Context(), tenantID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": warehouses})
}

// Create handles POST /api/v1/warehouses.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	var in Warehouse
	if err := common.DecodeJSON(r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	wh, err := h.Store.Create(r.Context(), tenantID, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": wh})
}

type stockEntryRequest struct {
	ProductID     string `json:"productId"`
	Boxes         int    `json:"boxes"`
	ItemsPerBox   int    `json:"itemsPerBox"`
	LooseItems    int    `json:"looseItems"`
	LowStockBoxes *int   `json:"lowStockBoxes,omitempty"`
	LowStockItems *int   `json:"lowStockItems,omitempty"`
}

// UpsertStock handles PUT /api/v1/warehouses/{warehouseID}/stock. The entry
// is normalized so loose items never exceed a full box.
func (h *Handler) UpsertStock(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	warehouseID := chi.URLParam(r, "warehouseID")

	var in stockEntryRequest
	if err := common.DecodeJSON(r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if in.ProductID == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "productId is required", nil)
		return
	}
	if in.ItemsPerBox < 1 {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "itemsPerBox must be at least 1", nil)
		return
	}
	if in.Boxes < 0 || in.LooseItems < 0 {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "quantities must not be negative", nil)
		return
	}

	if _, err := h.Store.Get(r.Context(), tenantID, warehouseID); err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "warehouse not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}

	rec, err := h.Stock.Upsert(r.Context(), tenantID, stock.Record{
		ProductID:     in.ProductID,
		WarehouseID:   warehouseID,
		Boxes:         in.Boxes,
		ItemsPerBox:   in.ItemsPerBox,
		LooseItems:    in.LooseItems,
		LowStockBoxes: in.LowStockBoxes,
		LowStockItems: in.LowStockItems,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// ListStock handles GET /api/v1/warehouses/{warehouseID}/stock.
func (h *Handler) ListStock(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	page, perPage := common.ParsePagination(r, h.DefaultPerPage, h.MaxPerPage)
	records, err := h.Stock.ListByWarehouse(r.Context(), tenantID, chi.URLParam(r, "warehouseID"), perPage, (page-1)*perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": records})
}

// LowStock handles GET /api/v1/stock/low across all warehouses.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	records, err := h.Stock.ListLow(r.Context(), tenantID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": records})
}
