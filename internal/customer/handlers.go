package customer

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/tenant"
)

// Handler exposes customer endpoints.
type Handler struct {
	Store          *Store
	DefaultPerPage int
	MaxPerPage     int
}

// List handles GET /api/v1/customers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	page, perPage := common.ParsePagination(r, h.DefaultPerPage, h.MaxPerPage)
	customers, total, err := h.Store.Search(r.Context(), tenantID, r.URL.Query().Get("q"), perPage, (page-1)*perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       customers,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get handles GET /api/v1/customers/{customerID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	c, err := h.Store.Get(r.Context(), tenantID, chi.URLParam(r, "customerID"))
	if err == ErrNotFound {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
		return
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Upsert handles POST /api/v1/customers.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	var in Customer
	if err := common.DecodeJSON(r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	c, err := h.Store.Upsert(r.Context(), h.Store.Pool, tenantID, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}
