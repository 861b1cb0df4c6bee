// Package pricing holds the pure price computations of the checkout: line and cart
// totals, the loyalty-card discount and the fixed tariffs for service bookings.
// Amounts are whole currency units (dinars); no fractional currency exists in the domain.
package pricing

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidQuantity is returned when a negative quantity reaches a price computation.
var ErrInvalidQuantity = errors.New("quantity must not be negative")

// PaymentMethod selects how an order is paid.
type PaymentMethod string

const (
	// LoyaltyCard is the "golden card" tier that earns the fixed discount.
	LoyaltyCard PaymentMethod = "loyalty-card"
	// BankCard is a regular bank card paid at full price.
	BankCard PaymentMethod = "bank-card"
)

// Valid reports whether the method is one the checkout accepts.
func (m PaymentMethod) Valid() bool {
	return m == LoyaltyCard || m == BankCard
}

// Label is the human readable name stored on order records.
func (m PaymentMethod) Label() string {
	switch m {
	case LoyaltyCard:
		return "Golden card"
	case BankCard:
		return "Bank card"
	default:
		return string(m)
	}
}

// LoyaltyDiscountPercent is the discount granted to loyalty-card payments.
const LoyaltyDiscountPercent = 20

// Line is anything priced as unit price times quantity.
type Line interface {
	PriceParts() (unitPrice int64, quantity int)
}

// LineTotal multiplies the unit price by the quantity.
func LineTotal(line Line) (int64, error) {
	unitPrice, quantity := line.PriceParts()
	if quantity < 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	return unitPrice * int64(quantity), nil
}

// CartTotal sums the line totals.
func CartTotal[L Line](lines []L) (int64, error) {
	var total int64
	for _, line := range lines {
		lt, err := LineTotal(line)
		if err != nil {
			return 0, err
		}
		total += lt
	}
	return total, nil
}

// DiscountedAmount applies the loyalty-card discount, rounding to the nearest unit.
func DiscountedAmount(base int64, method PaymentMethod) int64 {
	if method != LoyaltyCard {
		return base
	}
	return int64(math.Round(float64(base) * float64(100-LoyaltyDiscountPercent) / 100))
}
