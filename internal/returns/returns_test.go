package returns_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/returns"
)

func TestValuePricesAtBilledSellingPrice(t *testing.T) {
	billed := []returns.BilledLine{
		{BillItemID: "bi-1", StockID: "stk-1", SellingPrice: 118, BilledItems: 13},
		{BillItemID: "bi-2", StockID: "stk-2", SellingPrice: 50, BilledItems: 10},
	}
	lines, total, err := returns.Value(billed, []returns.ItemInput{
		{BillItemID: "bi-1", QuantityItems: 2},
		{BillItemID: "bi-2", QuantityItems: 10},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.InDelta(t, 236, lines[0].Amount, 1e-9)
	require.InDelta(t, 500, lines[1].Amount, 1e-9)
	require.InDelta(t, 736, total, 1e-9)
	require.Equal(t, "stk-1", lines[0].StockID)
}

func TestValueRejectsMoreThanBilled(t *testing.T) {
	billed := []returns.BilledLine{
		{BillItemID: "bi-1", StockID: "stk-1", SellingPrice: 10, BilledItems: 5},
	}
	_, _, err := returns.Value(billed, []returns.ItemInput{
		{BillItemID: "bi-1", QuantityItems: 6},
	})
	require.ErrorIs(t, err, returns.ErrExceedsBilled)
}

func TestValueCountsEarlierReturns(t *testing.T) {
	billed := []returns.BilledLine{
		{BillItemID: "bi-1", StockID: "stk-1", SellingPrice: 10, BilledItems: 5, ReturnedItems: 3},
	}
	_, _, err := returns.Value(billed, []returns.ItemInput{
		{BillItemID: "bi-1", QuantityItems: 3},
	})
	require.ErrorIs(t, err, returns.ErrExceedsBilled)

	lines, total, err := returns.Value(billed, []returns.ItemInput{
		{BillItemID: "bi-1", QuantityItems: 2},
	})
	require.NoError(t, err)
	require.InDelta(t, 20, total, 1e-9)
	require.Len(t, lines, 1)
}

func TestValueSumsDuplicateLines(t *testing.T) {
	billed := []returns.BilledLine{
		{BillItemID: "bi-1", StockID: "stk-1", SellingPrice: 10, BilledItems: 5},
	}
	// Two requests for the same line count against the same remainder.
	_, _, err := returns.Value(billed, []returns.ItemInput{
		{BillItemID: "bi-1", QuantityItems: 3},
		{BillItemID: "bi-1", QuantityItems: 3},
	})
	require.ErrorIs(t, err, returns.ErrExceedsBilled)
}

func TestValueUnknownBillItem(t *testing.T) {
	_, _, err := returns.Value(nil, []returns.ItemInput{{BillItemID: "missing", QuantityItems: 1}})
	require.Error(t, err)
}
