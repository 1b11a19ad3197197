package pricing_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/pricing"
)

const eps = 1e-9

func TestPriceLineInclusiveTax(t *testing.T) {
	line := pricing.PriceLine(pricing.LineInput{
		QuantityBoxes: 2,
		QuantityLoose: 3,
		ItemsPerBox:   10,
		SellingPrice:  118,
		TaxPercent:    18,
	})
	require.Equal(t, 23, line.TotalItems)
	require.InDelta(t, 2714, line.GrossAmount, eps)
	require.InDelta(t, 2714*18.0/118.0, line.TaxAmount, eps)
	require.InDelta(t, 414.0, line.TaxAmount, eps)
	require.InDelta(t, 2300.0, line.TotalBeforeTax, eps)
	require.InDelta(t, 2714, line.LineTotal, eps)
}

func TestPriceLineZeroTax(t *testing.T) {
	line := pricing.PriceLine(pricing.LineInput{
		QuantityBoxes: 1,
		ItemsPerBox:   12,
		SellingPrice:  50,
	})
	require.Equal(t, 12, line.TotalItems)
	require.Zero(t, line.TaxAmount)
	require.InDelta(t, line.GrossAmount, line.TotalBeforeTax, eps)
}

func TestPriceLineSplitsGrossExactly(t *testing.T) {
	prices := []float64{0, 1, 99.99, 118, 1049.50}
	rates := []float64{0, 5, 12, 18, 28}
	for _, price := range prices {
		for _, rate := range rates {
			line := pricing.PriceLine(pricing.LineInput{
				QuantityBoxes: 3,
				QuantityLoose: 7,
				ItemsPerBox:   8,
				SellingPrice:  price,
				TaxPercent:    rate,
			})
			require.InDelta(t, line.GrossAmount, line.TotalBeforeTax+line.TaxAmount, 1e-6,
				"price=%v rate=%v", price, rate)
			if rate == 0 {
				require.Zero(t, line.TaxAmount)
			}
		}
	}
}

func TestPriceLineClampsMalformedInput(t *testing.T) {
	line := pricing.PriceLine(pricing.LineInput{
		QuantityBoxes: -4,
		QuantityLoose: -1,
		ItemsPerBox:   0,
		SellingPrice:  -10,
		TaxPercent:    -5,
	})
	require.Equal(t, 0, line.TotalItems)
	require.Zero(t, line.GrossAmount)
	require.Zero(t, line.TaxAmount)
	require.Zero(t, line.LineTotal)
	require.Equal(t, 1, line.ItemsPerBox)
}

func TestAggregateOrderAndSums(t *testing.T) {
	lines := pricing.PriceLines([]pricing.LineInput{
		{QuantityBoxes: 2, QuantityLoose: 3, ItemsPerBox: 10, SellingPrice: 118, TaxPercent: 18},
		{QuantityLoose: 5, ItemsPerBox: 1, SellingPrice: 40, TaxPercent: 5},
		{QuantityBoxes: 1, ItemsPerBox: 6, SellingPrice: 25},
	})
	totals, err := pricing.Aggregate(lines)
	require.NoError(t, err)

	var wantItems int
	var wantGrand, wantTax float64
	for _, l := range lines {
		wantItems += l.TotalItems
		wantGrand += l.LineTotal
		wantTax += l.TaxAmount
	}
	require.Equal(t, wantItems, totals.TotalItems)
	require.InDelta(t, wantGrand, totals.GrandTotal, eps)
	require.InDelta(t, wantTax, totals.TotalTax, eps)
	require.InDelta(t, wantGrand-wantTax, totals.TotalBeforeTax, 1e-6)
	require.False(t, math.IsNaN(totals.GrandTotal))
}

func TestAggregateRejectsEmptyBill(t *testing.T) {
	_, err := pricing.Aggregate(nil)
	require.ErrorIs(t, err, pricing.ErrEmptyBill)
}
