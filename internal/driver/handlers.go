package driver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/tenant"
)

// Handler exposes driver endpoints.
type Handler struct {
	Store *Store
}

// List handles GET /api/v1/drivers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	drivers, err := h.Store.List(r.Context(), tenantID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": drivers})
}

// Create handles POST /api/v1/drivers.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	var in Driver
	if err := common.DecodeJSON(r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	d, err := h.Store.Create(r.Context(), tenantID, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": d})
}

// SetActive handles PUT /api/v1/drivers/{driverID}/active.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	var in struct {
		Active bool `json:"active"`
	}
	if err := common.DecodeJSON(r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	d, err := h.Store.SetActive(r.Context(), tenantID, chi.URLParam(r, "driverID"), in.Active)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": d})
}

// Workload handles GET /api/v1/drivers/{driverID}/workload.
func (h *Handler) Workload(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	assignments, err := h.Store.Workload(r.Context(), tenantID, chi.URLParam(r, "driverID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": assignments})
}
