package core

import (
	"testing"
	"time"

	"gbs/src/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDiscountForLinearCurve(t *testing.T) {
	target := decimal.NewFromInt(10000)

	assert.InDelta(t, 30, DiscountFor(30, 80, decimal.Zero, target), 1e-9)
	assert.InDelta(t, 50, DiscountFor(30, 80, decimal.NewFromInt(4000), target), 1e-9)
	assert.InDelta(t, 70, DiscountFor(30, 80, decimal.NewFromInt(8000), target), 1e-9)
	assert.InDelta(t, 80, DiscountFor(30, 80, decimal.NewFromInt(10000), target), 1e-9)
}

func TestDiscountForClampsAboveTarget(t *testing.T) {
	target := decimal.NewFromInt(10000)
	assert.InDelta(t, 80, DiscountFor(30, 80, decimal.NewFromInt(11000), target), 1e-9)
	assert.InDelta(t, 80, DiscountFor(30, 80, decimal.NewFromInt(1000000), target), 1e-9)
}

func TestDiscountForDegenerateBounds(t *testing.T) {
	target := decimal.NewFromInt(1000)

	// min == max collapses the curve to a flat discount.
	assert.InDelta(t, 40, DiscountFor(40, 40, decimal.NewFromInt(500), target), 1e-9)

	// A non-positive target counts as already met.
	assert.InDelta(t, 80, DiscountFor(30, 80, decimal.NewFromInt(500), decimal.Zero), 1e-9)

	// Inverted bounds never produce a discount below min.
	assert.InDelta(t, 50, DiscountFor(50, 20, decimal.NewFromInt(500), target), 1e-9)
}

func TestDiscountForIsMonotonic(t *testing.T) {
	target := decimal.NewFromInt(5000)
	last := float64(-1)
	for v := int64(0); v <= 8000; v += 250 {
		d := DiscountFor(10, 60, decimal.NewFromInt(v), target)
		assert.GreaterOrEqual(t, d, last)
		assert.LessOrEqual(t, d, 60.0)
		last = d
	}
}

func TestPriceAfterDiscountRounding(t *testing.T) {
	assert.Equal(t, "30.00", priceAfterDiscount(decimal.NewFromInt(100), 70).StringFixed(2))
	assert.Equal(t, "33.33", priceAfterDiscount(decimal.RequireFromString("49.99"), 33.33).StringFixed(2))
	assert.Equal(t, "0.00", priceAfterDiscount(decimal.NewFromInt(100), 100).StringFixed(2))
}

func TestChangeKeyDistinguishesUpdates(t *testing.T) {
	now := time.Now()
	a := types.DropChange{ID: 1, CurrentDiscount: 50, CurrentValue: 4000, UpdatedAt: now}
	b := types.DropChange{ID: 1, CurrentDiscount: 70, CurrentValue: 8000, UpdatedAt: now}
	assert.NotEqual(t, changeKey(a), changeKey(b))
	assert.Equal(t, changeKey(a), changeKey(a))
}
