// Package payment validates and classifies multi-mode payment splits against
// a bill's grand total.
package payment

import "errors"

// Tolerance absorbs floating-point noise when comparing collected amounts
// against the grand total.
const Tolerance = 0.001

var (
	// ErrInvalidPayment is returned when any split amount is negative.
	ErrInvalidPayment = errors.New("payment amounts must not be negative")
	// ErrOverpayment is returned when the collected amount exceeds the grand total.
	ErrOverpayment = errors.New("collected amount exceeds bill total")
)

// Mode identifies how a payment was tendered.
type Mode string

const (
	ModeCash  Mode = "CASH"
	ModeUPI   Mode = "UPI"
	ModeCard  Mode = "CARD"
	ModeSplit Mode = "SPLIT"
)

// Status is the payment state of a bill. It is deliberately independent of
// delivery state; a bill can be fully paid and still undelivered.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusFullyPaid     Status = "FULLY_PAID"
)

// Split is a cash/UPI/card breakdown of a payment.
type Split struct {
	Mode       Mode    `json:"mode"`
	CashAmount float64 `json:"cashAmount"`
	UPIAmount  float64 `json:"upiAmount"`
	CardAmount float64 `json:"cardAmount"`
}

// Total returns the sum of the three amounts.
func (s Split) Total() float64 {
	return s.CashAmount + s.UPIAmount + s.CardAmount
}

// Summary is the result of reconciling a split against a grand total.
type Summary struct {
	AmountCollected float64 `json:"amountCollected"`
	BalanceAmount   float64 `json:"balanceAmount"`
	Status          Status  `json:"status"`
}

// Reconcile validates a split against the grand total and derives the
// collected amount, outstanding balance, and payment status.
func Reconcile(split Split, grandTotal float64) (Summary, error) {
	if split.CashAmount < 0 || split.UPIAmount < 0 || split.CardAmount < 0 {
		return Summary{}, ErrInvalidPayment
	}
	collected := split.Total()
	if collected > grandTotal+Tolerance {
		return Summary{}, ErrOverpayment
	}
	return Summary{
		AmountCollected: collected,
		BalanceAmount:   grandTotal - collected,
		Status:          statusFor(collected, grandTotal),
	}, nil
}

// ApplyTopUp adds delta amounts onto an existing split and re-reconciles the
// cumulative split against the same grand total. A zero delta is a no-op:
// the returned split and summary match the current state.
func ApplyTopUp(existing Split, delta Split, grandTotal float64) (Split, Summary, error) {
	if delta.CashAmount < 0 || delta.UPIAmount < 0 || delta.CardAmount < 0 {
		return Split{}, Summary{}, ErrInvalidPayment
	}
	next := Split{
		Mode:       existing.Mode,
		CashAmount: existing.CashAmount + delta.CashAmount,
		UPIAmount:  existing.UPIAmount + delta.UPIAmount,
		CardAmount: existing.CardAmount + delta.CardAmount,
	}
	// The mode always reflects the cumulative amounts: a cash bill topped up
	// over UPI becomes a SPLIT even when the delta carries no explicit mode.
	next.Mode = NormalizeMode(next)
	summary, err := Reconcile(next, grandTotal)
	if err != nil {
		return Split{}, Summary{}, err
	}
	return next, summary, nil
}

// NormalizeMode derives the mode from which amounts are present. More than
// one non-zero amount makes the payment a SPLIT.
func NormalizeMode(s Split) Mode {
	nonZero := 0
	mode := ModeCash
	if s.CashAmount > 0 {
		nonZero++
		mode = ModeCash
	}
	if s.UPIAmount > 0 {
		nonZero++
		mode = ModeUPI
	}
	if s.CardAmount > 0 {
		nonZero++
		mode = ModeCard
	}
	if nonZero > 1 {
		return ModeSplit
	}
	if nonZero == 0 && s.Mode != "" {
		return s.Mode
	}
	return mode
}

func statusFor(collected, grandTotal float64) Status {
	switch {
	case collected <= 0:
		return StatusPending
	case collected < grandTotal:
		return StatusPartiallyPaid
	default:
		return StatusFullyPaid
	}
}
