package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ============================================================================
// Cart.Subtotal Tests
// ============================================================================

func TestSubtotal_MultipleItems(t *testing.T) {
	c := &Cart{
		Items: []CartItem{
			{ID: 1, UnitPrice: price("18.90"), Quantity: 3},
			{ID: 2, UnitPrice: price("12.50"), Quantity: 1},
		},
	}
	// 56.70 + 12.50
	assert.Equal(t, "69.20", c.Subtotal().StringFixed(2))
}

func TestSubtotal_ExactForRepeatingBinaryFractions(t *testing.T) {
	c := &Cart{Items: []CartItem{{ID: 1, UnitPrice: price("0.10"), Quantity: 3}}}
	assert.True(t, c.Subtotal().Equal(price("0.30")))
}

func TestSubtotal_EmptyCart(t *testing.T) {
	c := &Cart{}
	assert.True(t, c.Subtotal().IsZero())
}

// ============================================================================
// Cart.ItemCount / FindItemIndex / Clone Tests
// ============================================================================

func TestItemCount(t *testing.T) {
	c := &Cart{Items: []CartItem{{ID: 1, Quantity: 2}, {ID: 7, Quantity: 5}}}
	assert.Equal(t, 7, c.ItemCount())
}

func TestFindItemIndex(t *testing.T) {
	c := &Cart{Items: []CartItem{{ID: 1}, {ID: 7}}}
	assert.Equal(t, 1, c.FindItemIndex(7))
	assert.Equal(t, -1, c.FindItemIndex(3))
}

func TestClone_IsIndependent(t *testing.T) {
	c := &Cart{Items: []CartItem{{ID: 1, Quantity: 1}}}
	clone := c.Clone()
	clone.Items[0].Quantity = 9

	assert.Equal(t, 1, c.Items[0].Quantity)
}
