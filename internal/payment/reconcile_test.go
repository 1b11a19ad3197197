package payment_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/payment"
)

func TestReconcileFullPayment(t *testing.T) {
	sum, err := payment.Reconcile(payment.Split{
		Mode:       payment.ModeSplit,
		CashAmount: 400,
		UPIAmount:  600,
	}, 1000)
	require.NoError(t, err)
	require.InDelta(t, 1000, sum.AmountCollected, 1e-9)
	require.InDelta(t, 0, sum.BalanceAmount, 1e-9)
	require.Equal(t, payment.StatusFullyPaid, sum.Status)
}

func TestReconcileStatusThresholds(t *testing.T) {
	cases := []struct {
		name      string
		collected float64
		want      payment.Status
	}{
		{"zero is pending", 0, payment.StatusPending},
		{"partial", 999.99, payment.StatusPartiallyPaid},
		{"exact is fully paid", 1000, payment.StatusFullyPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sum, err := payment.Reconcile(payment.Split{CashAmount: tc.collected}, 1000)
			require.NoError(t, err)
			require.Equal(t, tc.want, sum.Status)
		})
	}
}

func TestReconcileRejectsNegativeAmounts(t *testing.T) {
	_, err := payment.Reconcile(payment.Split{CashAmount: -1}, 100)
	require.ErrorIs(t, err, payment.ErrInvalidPayment)
	_, err = payment.Reconcile(payment.Split{UPIAmount: -0.01}, 100)
	require.ErrorIs(t, err, payment.ErrInvalidPayment)
}

func TestReconcileRejectsOverpayment(t *testing.T) {
	splits := []payment.Split{
		{CashAmount: 1001},
		{CashAmount: 500, UPIAmount: 400, CardAmount: 101},
		{UPIAmount: 1000.002},
	}
	for _, s := range splits {
		_, err := payment.Reconcile(s, 1000)
		require.ErrorIs(t, err, payment.ErrOverpayment, "split %+v", s)
	}

	// Inside the tolerance window is accepted.
	sum, err := payment.Reconcile(payment.Split{CashAmount: 1000.0005}, 1000)
	require.NoError(t, err)
	require.Equal(t, payment.StatusFullyPaid, sum.Status)
}

func TestApplyTopUpAccumulates(t *testing.T) {
	existing := payment.Split{Mode: payment.ModeCash, CashAmount: 400}
	next, sum, err := payment.ApplyTopUp(existing, payment.Split{Mode: payment.ModeUPI, UPIAmount: 600}, 1000)
	require.NoError(t, err)
	require.InDelta(t, 400, next.CashAmount, 1e-9)
	require.InDelta(t, 600, next.UPIAmount, 1e-9)
	require.Equal(t, payment.ModeSplit, next.Mode)
	require.Equal(t, payment.StatusFullyPaid, sum.Status)
	require.InDelta(t, 0, sum.BalanceAmount, 1e-9)
}

func TestApplyTopUpWithoutDeltaModeDerivesSplit(t *testing.T) {
	// A delta carrying only amounts still moves the mode: cash then UPI is a
	// split payment regardless of what the top-up request declared.
	existing := payment.Split{Mode: payment.ModeCash, CashAmount: 400}
	next, sum, err := payment.ApplyTopUp(existing, payment.Split{UPIAmount: 600}, 1000)
	require.NoError(t, err)
	require.Equal(t, payment.ModeSplit, next.Mode)
	require.Equal(t, payment.StatusFullyPaid, sum.Status)
}

func TestApplyTopUpZeroDeltaIsIdempotent(t *testing.T) {
	existing := payment.Split{Mode: payment.ModeCash, CashAmount: 250}
	next, sum, err := payment.ApplyTopUp(existing, payment.Split{}, 1000)
	require.NoError(t, err)
	require.Equal(t, existing, next)
	require.Equal(t, payment.StatusPartiallyPaid, sum.Status)
	require.InDelta(t, 750, sum.BalanceAmount, 1e-9)
}

func TestApplyTopUpRejectsOverpaymentAfterFullPayment(t *testing.T) {
	existing := payment.Split{Mode: payment.ModeSplit, CashAmount: 400, UPIAmount: 600}
	_, _, err := payment.ApplyTopUp(existing, payment.Split{Mode: payment.ModeCash, CashAmount: 1}, 1000)
	require.ErrorIs(t, err, payment.ErrOverpayment)
}

func TestApplyTopUpRejectsNegativeDelta(t *testing.T) {
	_, _, err := payment.ApplyTopUp(payment.Split{}, payment.Split{CardAmount: -5}, 100)
	require.ErrorIs(t, err, payment.ErrInvalidPayment)
}

func TestNormalizeMode(t *testing.T) {
	require.Equal(t, payment.ModeCash, payment.NormalizeMode(payment.Split{CashAmount: 10}))
	require.Equal(t, payment.ModeUPI, payment.NormalizeMode(payment.Split{UPIAmount: 10}))
	require.Equal(t, payment.ModeCard, payment.NormalizeMode(payment.Split{CardAmount: 10}))
	require.Equal(t, payment.ModeSplit, payment.NormalizeMode(payment.Split{CashAmount: 1, CardAmount: 1}))
	require.Equal(t, payment.ModeUPI, payment.NormalizeMode(payment.Split{Mode: payment.ModeUPI}))
}
