// Package driver manages delivery drivers and their assigned bills.
package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-billing/internal/common"
)

// ErrNotFound is returned when no driver matches.
var ErrNotFound = errors.New("driver: not found")

// Driver is a delivery driver belonging to one tenant.
type Driver struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"createdAt"`
}

// Assignment is one bill on a driver's plate.
type Assignment struct {
	BillID         string  `json:"billId"`
	InvoiceNumber  string  `json:"invoiceNumber"`
	CustomerName   string  `json:"customerName"`
	CustomerPhone  string  `json:"customerPhone"`
	GrandTotal     float64 `json:"grandTotal"`
	BalanceAmount  float64 `json:"balanceAmount"`
	PaymentStatus  string  `json:"paymentStatus"`
	DeliveryStatus string  `json:"deliveryStatus"`
}

// Store persists drivers.
type Store struct {
	Pool *pgxpool.Pool
}

// Create registers a driver. Phone numbers are unique per tenant.
func (s *Store) Create(ctx context.Context, tenantID string, in Driver) (Driver, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Name == "" || in.Phone == "" {
		return Driver{}, common.BadRequest("VALIDATION_ERROR", "name and phone are required", nil)
	}
	var d Driver
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO drivers (tenant_id, name, phone)
		VALUES ($1, $2, $3)
		RETURNING id, name, phone, active, created_at::text`,
		tenantID, in.Name, in.Phone,
	).Scan(&d.ID, &d.Name, &d.Phone, &d.Active, &d.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Driver{}, common.NewAppError("DUPLICATE", "a driver with this phone already exists", http.StatusConflict, err)
	}
	if err != nil {
		return Driver{}, fmt.Errorf("create driver: %w", err)
	}
	return d, nil
}

// SetActive flips a driver's availability without losing delivery history.
func (s *Store) SetActive(ctx context.Context, tenantID, driverID string, active bool) (Driver, error) {
	var d Driver
	err := s.Pool.QueryRow(ctx, `
		UPDATE drivers SET active = $1
		WHERE id = $2 AND tenant_id = $3
		RETURNING id, name, phone, active, created_at::text`,
		active, driverID, tenantID,
	).Scan(&d.ID, &d.Name, &d.Phone, &d.Active, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Driver{}, common.NotFoundErr("driver not found")
	}
	if err != nil {
		return Driver{}, fmt.Errorf("set driver active: %w", err)
	}
	return d, nil
}

// List returns the tenant's drivers, active first.
func (s *Store) List(ctx context.Context, tenantID string) ([]Driver, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, phone, active, created_at::text
		FROM drivers
		WHERE tenant_id = $1
		ORDER BY active DESC, name`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	var drivers []Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.Phone, &d.Active, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

// Workload returns the driver's assigned, undelivered bills oldest first, so
// the route list matches assignment order.
func (s *Store) Workload(ctx context.Context, tenantID, driverID string) ([]Assignment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT b.id, b.invoice_number, c.name, c.phone,
			b.grand_total, b.balance_amount, b.payment_status, b.delivery_status
		FROM bills b
		JOIN customers c ON c.id = b.customer_id
		WHERE b.tenant_id = $1 AND b.driver_id = $2 AND b.delivery_status = 'ASSIGNED'
		ORDER BY b.updated_at`,
		tenantID, driverID)
	if err != nil {
		return nil, fmt.Errorf("driver workload: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		err := rows.Scan(&a.BillID, &a.InvoiceNumber, &a.CustomerName, &a.CustomerPhone,
			&a.GrandTotal, &a.BalanceAmount, &a.PaymentStatus, &a.DeliveryStatus)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
