package escrow

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrConfigurationMissing = errors.New("admin set not initialized")
	ErrAlreadyInitialized   = errors.New("admin set already initialized")
	ErrInvalidAdmins        = errors.New("invalid admins")
	ErrNoActivePeriod       = errors.New("no active bidding period")
	ErrBiddingPeriodActive  = errors.New("bidding period active")
	ErrInvalidTerms         = errors.New("invalid bidding period terms")
	ErrBiddingPeriodExpired = errors.New("bidding period expired")
	ErrTooManyAccepted      = errors.New("too many accepted bids")
	ErrBidNotFound          = errors.New("bid not found")
)

// ErrPayment is wrapped by every attached-funds validation failure.
var ErrPayment = errors.New("payment error")

var (
	ErrNoFunds         = fmt.Errorf("%w: no funds sent", ErrPayment)
	ErrMultipleDenoms  = fmt.Errorf("%w: sent more than one denomination", ErrPayment)
	ErrMissingDenom    = fmt.Errorf("%w: must send funds in the period denomination", ErrPayment)
	ErrBelowMinimumBid = fmt.Errorf("%w: below minimum bid", ErrPayment)
)
