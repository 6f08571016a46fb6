package bidding

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrInvalidAmount    = errors.New("invalid bid amount")
	ErrBelowMinimum     = errors.New("bid amount below minimum")
)

// BelowMinimumError carries the minimum the rejected bid had to reach.
// It matches ErrBelowMinimum with errors.Is.
type BelowMinimumError struct {
	Proposed decimal.Decimal
	Minimum  decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("bid amount %s below minimum %s", e.Proposed, e.Minimum)
}

func (e *BelowMinimumError) Unwrap() error { return ErrBelowMinimum }
