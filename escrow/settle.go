package escrow

import (
	"fmt"

	"bidvault/store"

	sdkmath "cosmossdk.io/math"
)

type settlementPlan struct {
	refunds   []Transfer
	proceeds  Transfer
	withdrawn sdkmath.Int
}

// transfers returns the refunds followed by the proceeds transfer.
func (p *settlementPlan) transfers() []Transfer {
	out := make([]Transfer, 0, len(p.refunds)+1)
	out = append(out, p.refunds...)
	return append(out, p.proceeds)
}

// settle partitions the ledger into accepted and refunded bids. bids must
// be in ascending bidder order; the refunds keep that order. Nothing is
// mutated: the caller applies the plan only if settle succeeds.
func settle(period *BiddingPeriod, bids []*Bid, accepted []string, caller string, withdrawalAddr *string) (*settlementPlan, error) {
	var (
		held  = sdkmath.ZeroInt()
		owned = make(map[string]sdkmath.Int, len(bids))
	)
	for _, b := range bids {
		held = held.Add(b.Amount)
		owned[b.Bidder] = b.Amount
	}

	withdrawn := sdkmath.ZeroInt()
	for _, addr := range accepted {
		amount, ok := owned[addr]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBidNotFound, addr)
		}
		withdrawn = withdrawn.Add(amount)
		delete(owned, addr)
	}

	plan := &settlementPlan{withdrawn: withdrawn}

	refunded := sdkmath.ZeroInt()
	for _, b := range bids {
		amount, ok := owned[b.Bidder]
		if !ok {
			continue
		}
		plan.refunds = append(plan.refunds, Transfer{
			Kind:      store.TransferKindRefund,
			Recipient: b.Bidder,
			Denom:     period.Denom,
			Amount:    amount,
		})
		refunded = refunded.Add(amount)
	}

	recipient := caller
	if withdrawalAddr != nil {
		recipient = *withdrawalAddr
	}

	plan.proceeds = Transfer{
		Kind:      store.TransferKindProceeds,
		Recipient: recipient,
		Denom:     period.Denom,
		Amount:    withdrawn,
	}

	if total := refunded.Add(withdrawn); !total.Equal(held) {
		return nil, fmt.Errorf("settlement does not conserve funds: held %s, paying out %s", held, total)
	}

	return plan, nil
}
