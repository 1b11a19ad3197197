package returns

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/tenant"
)

// Handler exposes return endpoints nested under a bill.
type Handler struct {
	Service *Service
}

// Create handles POST /api/v1/bills/{billID}/returns.
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
	ret, err := h.Service.Create(r.Context(), tenantID, chi.URLParam(r, "billID"), userID, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": ret})
}

// List handles GET /api/v1/bills/{billID}/returns.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	list, err := h.Service.ListForBill(r.Context(), tenantID, chi.URLParam(r, "billID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": list})
}
