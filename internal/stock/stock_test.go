package stock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/stock"
)

func TestLooseEquivalent(t *testing.T) {
	assert.Equal(t, 125, stock.LooseEquivalent(10, 12, 5))
	assert.Equal(t, 0, stock.LooseEquivalent(0, 12, 0))
	// Non-positive pack size treated as unit packs, negatives clamp to zero.
	assert.Equal(t, 5, stock.LooseEquivalent(0, 0, 5))
	assert.Equal(t, 3, stock.LooseEquivalent(3, -4, -2))
}

func TestApply(t *testing.T) {
	t.Run("residual splits into boxes and loose", func(t *testing.T) {
		// 10 boxes of 12 plus 5 loose = 125 units. Taking 108 leaves 17,
		// which re-splits as 1 box and 5 loose.
		boxes, loose, err := stock.Apply(10, 12, 5, 108)
		require.NoError(t, err)
		assert.Equal(t, 1, boxes)
		assert.Equal(t, 5, loose)
	})

	t.Run("exact depletion", func(t *testing.T) {
		boxes, loose, err := stock.Apply(10, 12, 5, 125)
		require.NoError(t, err)
		assert.Equal(t, 0, boxes)
		assert.Equal(t, 0, loose)
	})

	t.Run("shortfall rejected", func(t *testing.T) {
		_, _, err := stock.Apply(10, 12, 5, 132)
		assert.ErrorIs(t, err, stock.ErrInsufficientStock)
	})
}

func TestNormalize(t *testing.T) {
	boxes, loose := stock.Normalize(2, 12, 30)
	assert.Equal(t, 4, boxes)
	assert.Equal(t, 6, loose)

	boxes, loose = stock.Normalize(0, 12, 12)
	assert.Equal(t, 1, boxes)
	assert.Equal(t, 0, loose)
}

func intPtr(v int) *int { return &v }

func TestLowAndOutOfStock(t *testing.T) {
	rec := stock.Record{Boxes: 0, ItemsPerBox: 12, LooseItems: 0}
	assert.True(t, rec.IsOutOfStock())
	assert.False(t, rec.IsLowStock())

	rec = stock.Record{Boxes: 1, ItemsPerBox: 12, LooseItems: 0, LowStockBoxes: intPtr(2)}
	assert.False(t, rec.IsOutOfStock())
	assert.True(t, rec.IsLowStock())

	rec = stock.Record{Boxes: 3, ItemsPerBox: 12, LooseItems: 0, LowStockBoxes: intPtr(2)}
	assert.False(t, rec.IsLowStock())

	// No threshold configured: never low, only out.
	rec = stock.Record{Boxes: 1, ItemsPerBox: 12}
	assert.False(t, rec.IsLowStock())
}

func TestGroupRequests(t *testing.T) {
	lines := []stock.RequestedLine{
		{StockID: "s1", QuantityBoxes: 1, QuantityLoose: 2, ItemsPerBox: 12},
		{StockID: "s2", QuantityBoxes: 0, QuantityLoose: 5, ItemsPerBox: 10},
		{StockID: "s1", QuantityBoxes: 0, QuantityLoose: 3, ItemsPerBox: 12},
	}
	got := stock.GroupRequests(lines)
	require.Len(t, got, 2)
	assert.Equal(t, stock.Request{StockID: "s1", Units: 17}, got[0])
	assert.Equal(t, stock.Request{StockID: "s2", Units: 5}, got[1])
}
