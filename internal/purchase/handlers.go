package purchase

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/tenant"
)

// Handler exposes purchase order endpoints.
type Handler struct {
	Service        *Service
	DefaultPerPage int
	MaxPerPage     int
}

// Create handles POST /api/v1/purchase-orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	userID, _ := common.UserID(r.Context())

	var in CreateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if err := common.ValidateStruct(in); err != nil {
		common.WriteError(w, err)
		return
	}
	order, err := h.Service.Create(r.Context(), tenantID, userID, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": order})
}

// List handles GET /api/v1/purchase-orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	page, perPage := common.ParsePagination(r, h.DefaultPerPage, h.MaxPerPage)
	orders, total, err := h.Service.List(r.Context(), tenantID, r.URL.Query().Get("status"), perPage, (page-1)*perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get handles GET /api/v1/purchase-orders/{orderID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	order, err := h.Service.Get(r.Context(), tenantID, chi.URLParam(r, "orderID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": order})
}

// MarkOrdered handles POST /api/v1/purchase-orders/{orderID}/order.
func (h *Handler) MarkOrdered(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	order, err := h.Service.MarkOrdered(r.Context(), tenantID, chi.URLParam(r, "orderID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": order})
}

// Receive handles POST /api/v1/purchase-orders/{orderID}/receive.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	order, err := h.Service.Receive(r.Context(), tenantID, chi.URLParam(r, "orderID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": order})
}
