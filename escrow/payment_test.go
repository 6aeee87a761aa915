package escrow

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

func TestMustPay(t *testing.T) {
	t.Parallel()

	coin := func(denom string, amount int64) sdk.Coin {
		return sdk.Coin{Denom: denom, Amount: sdkmath.NewInt(amount)}
	}

	for _, tc := range []struct {
		name    string
		funds   sdk.Coins
		want    int64
		wantErr error
	}{
		{"single coin", sdk.Coins{coin("ujuno", 1000)}, 1000, nil},
		{"zero coin ignored", sdk.Coins{coin("uatom", 0), coin("ujuno", 5)}, 5, nil},
		{"no funds", nil, 0, ErrNoFunds},
		{"only zero", sdk.Coins{coin("ujuno", 0)}, 0, ErrNoFunds},
		{"two denoms", sdk.Coins{coin("uatom", 1), coin("ujuno", 1)}, 0, ErrMultipleDenoms},
		{"same denom twice", sdk.Coins{coin("ujuno", 1), coin("ujuno", 1)}, 0, ErrMultipleDenoms},
		{"wrong denom", sdk.Coins{coin("uatom", 1000)}, 0, ErrMissingDenom},
		{"negative", sdk.Coins{coin("ujuno", -1)}, 0, ErrPayment},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			amount, err := mustPay(tc.funds, "ujuno")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("error: want %v, have %v", tc.wantErr, err)
			}

			if tc.wantErr != nil {
				if !errors.Is(err, ErrPayment) {
					t.Errorf("%v does not wrap %v", err, ErrPayment)
				}
				return
			}

			if !amount.Equal(sdkmath.NewInt(tc.want)) {
				t.Errorf("amount: want %d, have %s", tc.want, amount)
			}
		})
	}
}
