package escrow

import (
	"errors"
	"math/rand"
	"testing"

	"bidvault/store"

	sdkmath "cosmossdk.io/math"
	"github.com/google/go-cmp/cmp"
)

func TestSettle(t *testing.T) {
	t.Parallel()

	var (
		period = &BiddingPeriod{Name: "p", Denom: "X", AcceptedBidders: 2}
		bids   = []*Bid{
			{Bidder: "alice", Amount: sdkmath.NewInt(1000)},
			{Bidder: "bob", Amount: sdkmath.NewInt(500)},
			{Bidder: "carol", Amount: sdkmath.NewInt(700)},
		}
		target = "treasury"
	)

	for _, tc := range []struct {
		name       string
		accepted   []string
		withdrawal *string
		want       []Transfer
		wantErr    error
	}{
		{
			name:     "one winner",
			accepted: []string{"alice"},
			want: []Transfer{
				{Kind: store.TransferKindRefund, Recipient: "bob", Denom: "X", Amount: sdkmath.NewInt(500)},
				{Kind: store.TransferKindRefund, Recipient: "carol", Denom: "X", Amount: sdkmath.NewInt(700)},
				{Kind: store.TransferKindProceeds, Recipient: "admin", Denom: "X", Amount: sdkmath.NewInt(1000)},
			},
		},
		{
			name:       "two winners to withdrawal address",
			accepted:   []string{"carol", "bob"},
			withdrawal: &target,
			want: []Transfer{
				{Kind: store.TransferKindRefund, Recipient: "alice", Denom: "X", Amount: sdkmath.NewInt(1000)},
				{Kind: store.TransferKindProceeds, Recipient: "treasury", Denom: "X", Amount: sdkmath.NewInt(1200)},
			},
		},
		{
			name:     "nobody accepted",
			accepted: nil,
			want: []Transfer{
				{Kind: store.TransferKindRefund, Recipient: "alice", Denom: "X", Amount: sdkmath.NewInt(1000)},
				{Kind: store.TransferKindRefund, Recipient: "bob", Denom: "X", Amount: sdkmath.NewInt(500)},
				{Kind: store.TransferKindRefund, Recipient: "carol", Denom: "X", Amount: sdkmath.NewInt(700)},
				{Kind: store.TransferKindProceeds, Recipient: "admin", Denom: "X", Amount: sdkmath.ZeroInt()},
			},
		},
		{
			name:     "unknown bidder",
			accepted: []string{"alice", "mallory"},
			wantErr:  ErrBidNotFound,
		},
		{
			name:     "duplicate accepted",
			accepted: []string{"alice", "alice"},
			wantErr:  ErrBidNotFound,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			plan, err := settle(period, bids, tc.accepted, "admin", tc.withdrawal)
			if want, have := tc.wantErr, err; !errors.Is(have, want) {
				t.Fatalf("error: want %v, have %v", want, have)
			}
			if err != nil {
				return
			}

			if diff := cmp.Diff(tc.want, plan.transfers()); diff != "" {
				t.Errorf("transfers: %s", diff)
			}
		})
	}
}

func TestSettleConservation(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	period := &BiddingPeriod{Denom: "X"}

	for i := 0; i < 200; i++ {
		var (
			n        = 1 + rng.Intn(20)
			bids     = make([]*Bid, n)
			held     = sdkmath.ZeroInt()
			accepted []string
		)
		for j := range bids {
			bids[j] = &Bid{Bidder: string(rune('a'+j)) + "-bidder", Amount: sdkmath.NewInt(1 + rng.Int63n(1e12))}
			held = held.Add(bids[j].Amount)
			if rng.Intn(3) == 0 {
				accepted = append(accepted, bids[j].Bidder)
			}
		}

		plan, err := settle(period, bids, accepted, "admin", nil)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}

		paid := sdkmath.ZeroInt()
		for _, tr := range plan.transfers() {
			paid = paid.Add(tr.Amount)
		}

		if !paid.Equal(held) {
			t.Fatalf("iteration %d: held %s, paid %s", i, held, paid)
		}

		if want, have := n-len(accepted), len(plan.refunds); want != have {
			t.Fatalf("iteration %d: refunds: want %d, have %d", i, want, have)
		}
	}
}
