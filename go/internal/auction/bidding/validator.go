package bidding

import (
	"fmt"
	"math"
	"strings"

	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places a bid amount may carry (whole cents).
const AmountScale = 2

var one = decimal.NewFromInt(1)

// MinAllowed returns the smallest acceptable next bid.
//
// An increment strictly between 0 and 1 is a fractional bump: the minimum is
// current*(1+increment) rounded up to a whole currency unit. Any other value is an
// absolute step, with zero (or a negative value) falling back to a step of 1.
// A configured increment of exactly 1 therefore means +1, not +100%.
func MinAllowed(current, increment decimal.Decimal) decimal.Decimal {
	if current.IsNegative() {
		current = decimal.Zero
	}
	if increment.IsPositive() && increment.LessThan(one) {
		return current.Mul(one.Add(increment)).Ceil()
	}
	if !increment.IsPositive() {
		increment = one
	}
	return current.Add(increment)
}

// ValidateBid checks a proposed amount against the room's current price and status.
// It returns nil when the bid may be submitted.
func ValidateBid(proposed, current, increment decimal.Decimal, status models.RoomStatus) error {
	if status != models.RoomStatusActive {
		return ErrAuctionNotActive
	}
	if !proposed.IsPositive() || !hasAmountScale(proposed) {
		return ErrInvalidAmount
	}
	minimum := MinAllowed(current, increment)
	if proposed.LessThan(minimum) {
		return &BelowMinimumError{Proposed: proposed, Minimum: minimum}
	}
	return nil
}

// ParseAmount parses user input into an amount. Empty, non-numeric and
// non-finite inputs are rejected with ErrInvalidAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !hasAmountScale(d) {
		return decimal.Zero, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, AmountScale)
	}
	return d, nil
}

// hasAmountScale reports whether d is exact at AmountScale places. Trailing zeros are fine.
func hasAmountScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale))
}

// AmountFromFloat converts a float input, rejecting NaN and infinities.
func AmountFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, ErrInvalidAmount
	}
	return decimal.NewFromFloat(f), nil
}
