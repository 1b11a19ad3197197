package analytics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/tenant"
)

// Handler exposes dashboard endpoints.
type Handler struct {
	Service *Service
}

// parseRange reads from/to query params, falling back to the last
// defaultDays days.
func parseRange(r *http.Request, defaultDays int) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -defaultDays)
	to := now
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, common.BadRequest("VALIDATION_ERROR", "from must be YYYY-MM-DD", err)
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, common.BadRequest("VALIDATION_ERROR", "to must be YYYY-MM-DD", err)
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, common.BadRequest("VALIDATION_ERROR", "to must not precede from", nil)
	}
	return from, to, nil
}

// Sales handles GET /api/v1/analytics/sales.
func (h *Handler) Sales(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	from, to, err := parseRange(r, h.Service.defaultRange())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	summary, err := h.Service.SalesRange(r.Context(), tenantID, from, to)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}

// TopProducts handles GET /api/v1/analytics/top-products.
func (h *Handler) TopProducts(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	from, to, err := parseRange(r, h.Service.defaultRange())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	products, err := h.Service.TopProducts(r.Context(), tenantID, from, to, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": products})
}

// PaymentModes handles GET /api/v1/analytics/payment-modes.
func (h *Handler) PaymentModes(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	from, to, err := parseRange(r, h.Service.defaultRange())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	breakdown, err := h.Service.PaymentModes(r.Context(), tenantID, from, to)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": breakdown})
}

// Stock handles GET /api/v1/analytics/stock.
func (h *Handler) Stock(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant.From(r.Context())
	overview, err := h.Service.Stock(r.Context(), tenantID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": overview})
}
