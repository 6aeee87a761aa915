package ledger

import (
	"context"
	"fmt"
	"time"

	sdk_types_bech32 "github.com/cosmos/cosmos-sdk/types/bech32"
)

// Bech32Ledger validates Cosmos account addresses with a fixed human
// readable part.
type Bech32Ledger struct {
	prefix string
}

var _ Ledger = (*Bech32Ledger)(nil)

func NewBech32Ledger(prefix string) (*Bech32Ledger, error) {
	if prefix == "" {
		return nil, fmt.Errorf("bech32 prefix is required")
	}
	return &Bech32Ledger{prefix: prefix}, nil
}

func (l *Bech32Ledger) Network() string { return l.prefix }

func (l *Bech32Ledger) ValidateAddress(ctx context.Context, addr string) error {
	hrp, bz, err := sdk_types_bech32.DecodeAndConvert(addr)
	if err != nil {
		return fmt.Errorf("%w: decode as Bech32: %v", ErrInvalidAddress, err)
	}

	if hrp != l.prefix {
		return fmt.Errorf("%w: address (%s) has prefix %q, want %q", ErrInvalidAddress, addr, hrp, l.prefix)
	}

	switch n := len(bz); n {
	case 20, 32:
		// good
	default:
		return fmt.Errorf("%w: address length (%d) invalid: must be 20 or 32", ErrInvalidAddress, n)
	}

	return nil
}

func (l *Bech32Ledger) Now(ctx context.Context) time.Time { return time.Now().UTC() }
