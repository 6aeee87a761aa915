package storetest

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"bidvault/store"

	sdkmath "cosmossdk.io/math"
	sdk_types_bech32 "github.com/cosmos/cosmos-sdk/types/bech32"
	tm_crypto_secp256k1 "github.com/tendermint/tendermint/crypto/secp256k1"
)

const (
	Denom           = "ujuno"
	Network         = "juno"
	ContractName    = "bidvault-storetest"
	ContractVersion = "0.1.0"
)

func NewAdminSet(t *testing.T, s store.Store, admins ...string) *store.AdminSet {
	t.Helper()

	if len(admins) == 0 {
		admins = []string{GenBech32Addr(t, Network), GenBech32Addr(t, Network)}
	}

	a := &store.AdminSet{
		Admins:          admins,
		ContractName:    ContractName,
		ContractVersion: ContractVersion,
	}

	if err := s.InsertAdminSet(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	return a
}

func NewBiddingPeriod(t *testing.T, s store.Store) *store.BiddingPeriod {
	t.Helper()

	description := fmt.Sprintf("period %d", rand.Int())
	p := &store.BiddingPeriod{
		Name:            getFunName(t),
		Description:     &description,
		ExpiresAt:       time.Now().UTC().Add(time.Hour),
		MinimumBid:      sdkmath.NewInt(500),
		AcceptedBidders: 2,
		Denom:           Denom,
	}

	if err := s.InsertBiddingPeriod(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	return p
}

func NewBid(t *testing.T, s store.Store, amount int64) *store.Bid {
	t.Helper()

	b, err := s.AddBid(context.Background(), GenBech32Addr(t, Network), sdkmath.NewInt(amount))
	if err != nil {
		t.Fatal(err)
	}

	return b
}

func NewSettlement(t *testing.T, s store.Store, winner, loser *store.Bid) *store.Settlement {
	t.Helper()

	caller := GenBech32Addr(t, Network)
	st := &store.Settlement{
		PeriodName: getFunName(t),
		Denom:      Denom,
		Caller:     caller,
		Accepted:   []string{winner.Bidder},
		Transfers: []store.Transfer{
			{Kind: store.TransferKindRefund, Recipient: loser.Bidder, Denom: Denom, Amount: loser.Amount},
			{Kind: store.TransferKindProceeds, Recipient: caller, Denom: Denom, Amount: winner.Amount},
		},
		Withdrawn: winner.Amount,
	}

	if err := s.InsertSettlement(context.Background(), st); err != nil {
		t.Fatal(err)
	}

	return st
}

func GetBech32Addr(t *testing.T, prefix string, addr []byte) string {
	bech32Addr, err := sdk_types_bech32.ConvertAndEncode(prefix, addr)
	if err != nil {
		t.Fatal(err)
	}
	return bech32Addr
}

func GetBech32AddrString(t *testing.T, prefix string, s string) string {
	addr, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex.DecodeString: %v", err)
	}
	return GetBech32Addr(t, prefix, addr)
}

func GenBech32Addr(t *testing.T, prefix string) string {
	return GetBech32Addr(t, prefix, tm_crypto_secp256k1.GenPrivKey().PubKey().Address())
}

func getFunName(t *testing.T) string {
	t.Helper()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	buf := make([]byte, 8)
	if _, err := rng.Read(buf); err != nil {
		t.Fatal("randomness is invalid")
	}

	return fmt.Sprintf("period-%x", buf)
}
