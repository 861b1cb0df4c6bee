package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type line struct {
	price int64
	qty   int
}

func (l line) PriceParts() (int64, int) { return l.price, l.qty }

func TestLineTotal(t *testing.T) {
	total, err := LineTotal(line{price: 250, qty: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(750), total)

	total, err = LineTotal(line{price: 250, qty: 0})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = LineTotal(line{price: 250, qty: -1})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCartTotal(t *testing.T) {
	lines := []line{{price: 250, qty: 3}, {price: 90, qty: 2}, {price: 1200, qty: 1}}
	total, err := CartTotal(lines)
	require.NoError(t, err)

	var sum int64
	for _, l := range lines {
		lt, err := LineTotal(l)
		require.NoError(t, err)
		sum += lt
	}
	assert.Equal(t, sum, total)
	assert.Equal(t, int64(2130), total)

	empty, err := CartTotal([]line(nil))
	require.NoError(t, err)
	assert.Zero(t, empty)

	_, err = CartTotal([]line{{price: 1, qty: 1}, {price: 1, qty: -2}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestDiscountedAmount(t *testing.T) {
	assert.Equal(t, int64(1200), DiscountedAmount(1500, LoyaltyCard))
	assert.Equal(t, int64(1500), DiscountedAmount(1500, BankCard))
	assert.Equal(t, int64(0), DiscountedAmount(0, LoyaltyCard))
	// 999 * 0.8 = 799.2
	assert.Equal(t, int64(799), DiscountedAmount(999, LoyaltyCard))
	// 1001 * 0.8 = 800.8
	assert.Equal(t, int64(801), DiscountedAmount(1001, LoyaltyCard))
}

func TestDiscountedAmount_MatchesRoundedEightyPercent(t *testing.T) {
	for base := int64(0); base <= 5000; base += 7 {
		assert.Equal(t, int64(math.Round(float64(base)*0.8)), DiscountedAmount(base, LoyaltyCard), "base %d", base)
		assert.Equal(t, base, DiscountedAmount(base, BankCard), "base %d", base)
	}
}

func TestPaymentMethod(t *testing.T) {
	assert.True(t, LoyaltyCard.Valid())
	assert.True(t, BankCard.Valid())
	assert.False(t, PaymentMethod("cash").Valid())
	assert.Equal(t, "Golden card", LoyaltyCard.Label())
	assert.Equal(t, "cash", PaymentMethod("cash").Label())
}
