package store

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Store persists the contract state: the admin set, the (at most one) live
// bidding period, the bid ledger, and the settlement history. Every command
// must run inside Transact, so that all of its reads and writes commit
// together or not at all.
type Store interface {
	Transact(context.Context, func(Store) error) error

	Ping(ctx context.Context) error
	Cleanup(ctx context.Context, retention time.Duration) error

	InsertAdminSet(ctx context.Context, a *AdminSet) error
	SelectAdminSet(ctx context.Context) (*AdminSet, error)

	InsertBiddingPeriod(ctx context.Context, p *BiddingPeriod) error
	SelectBiddingPeriod(ctx context.Context) (*BiddingPeriod, error)
	DeleteBiddingPeriod(ctx context.Context) error

	AddBid(ctx context.Context, bidder string, amount sdkmath.Int) (*Bid, error)
	SelectBid(ctx context.Context, bidder string) (*Bid, error)
	ListBids(ctx context.Context, order Order) ([]*Bid, error)
	DeleteBid(ctx context.Context, bidder string) error
	ClearBids(ctx context.Context) error

	InsertSettlement(ctx context.Context, s *Settlement) error
	ListSettlements(ctx context.Context) ([]*Settlement, error)
}
