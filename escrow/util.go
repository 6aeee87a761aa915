package escrow

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
)

func boolString(b bool, ifTrue, ifFalse string) string {
	if b {
		return ifTrue
	}
	return ifFalse
}

// amountFloat is lossy, and only meant for metrics.
func amountFloat(i sdkmath.Int) float64 {
	if i.IsNil() {
		return 0
	}
	f, _ := new(big.Float).SetInt(i.BigInt()).Float64()
	return f
}

func stringOr(s *string, dflt string) string {
	if s == nil {
		return dflt
	}
	return *s
}
