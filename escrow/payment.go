package escrow

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// mustPay returns the amount of the single coin attached to a command,
// which must be in denom. Zero-amount coins are ignored, as the bank module
// never delivers them.
func mustPay(funds sdk.Coins, denom string) (sdkmath.Int, error) {
	var paid []sdk.Coin
	for _, c := range funds {
		switch {
		case c.Amount.IsNil() || c.Amount.IsZero():
			continue
		case c.Amount.IsNegative():
			return sdkmath.Int{}, fmt.Errorf("%w: negative amount %s%s", ErrPayment, c.Amount, c.Denom)
		}
		paid = append(paid, c)
	}

	switch len(paid) {
	case 0:
		return sdkmath.Int{}, ErrNoFunds
	case 1:
		// good
	default:
		return sdkmath.Int{}, ErrMultipleDenoms
	}

	if paid[0].Denom != denom {
		return sdkmath.Int{}, fmt.Errorf("%w (%s)", ErrMissingDenom, denom)
	}

	return paid[0].Amount, nil
}
