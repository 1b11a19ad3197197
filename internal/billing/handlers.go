package billing

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/payment"
	"github.com/noah-isme/backend-billing/internal/tenant"
)

// Handler exposes bill endpoints.
type Handler struct {
	Service        *Service
	DefaultPerPage int
	MaxPerPage     int
}

// Create handles POST /api/v1/bills.
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
	bill, err := h.Service.Create(r.Context(), tenantID, userID, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"bill": bill})
}

// List handles GET /api/v1/bills.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	page, perPage := common.ParsePagination(r, h.DefaultPerPage, h.MaxPerPage)

	filter := ListFilter{
		PaymentStatus:  r.URL.Query().Get("paymentStatus"),
		DeliveryStatus: r.URL.Query().Get("deliveryStatus"),
		CustomerID:     r.URL.Query().Get("customer"),
		Page:           page,
		PerPage:        perPage,
	}
	if from, err := time.Parse("2006-01-02", r.URL.Query().Get("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse("2006-01-02", r.URL.Query().Get("to")); err == nil {
		// The upper bound is exclusive so "to" includes the whole day.
		end := to.AddDate(0, 0, 1)
		filter.To = &end
	}

	bills, total, err := h.Service.List(r.Context(), tenantID, filter)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       bills,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get handles GET /api/v1/bills/{billID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	bill, err := h.Service.Get(r.Context(), tenantID, chi.URLParam(r, "billID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"bill": bill})
}

// TopUp handles POST /api/v1/bills/{billID}/payments.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	var in payment.Split
	if err := common.DecodeJSON(r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	bill, err := h.Service.TopUp(r.Context(), tenantID, chi.URLParam(r, "billID"), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"bill": bill})
}

type deliveryBody struct {
	Status   string `json:"status"`
	DriverID string `json:"driverId"`
}

// Delivery handles POST /api/v1/bills/{billID}/delivery. ASSIGNED requires a
// driverId; DELIVERED marks the bill delivered.
func (h *Handler) Delivery(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	var in deliveryBody
	if err := common.DecodeJSON(r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}

	billID := chi.URLParam(r, "billID")
	var (
		bill Bill
		err  error
	)
	switch DeliveryStatus(in.Status) {
	case DeliveryAssigned:
		bill, err = h.Service.AssignDriver(r.Context(), tenantID, billID, in.DriverID)
	case DeliveryDelivered:
		bill, err = h.Service.MarkDelivered(r.Context(), tenantID, billID)
	default:
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "status must be ASSIGNED or DELIVERED", nil)
		return
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"bill": bill})
}
