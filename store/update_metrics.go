package store

import (
	"context"
	"errors"
	"fmt"

	"bidvault/metrics"
)

func UpdateMetrics(ctx context.Context, s Store) (err error) {
	return s.Transact(ctx, func(tx Store) error {
		switch a, err := tx.SelectAdminSet(ctx); {
		case err == nil:
			metrics.AdminCount.Set(float64(len(a.Admins)))
			metrics.ContractInfo.WithLabelValues(a.ContractName, a.ContractVersion).Set(1)
		case errors.Is(err, ErrNotFound):
			metrics.AdminCount.Set(0)
		default:
			return fmt.Errorf("select admin set: %w", err)
		}

		switch p, err := tx.SelectBiddingPeriod(ctx); {
		case err == nil:
			metrics.BiddingPeriodOpen.Set(1)
			metrics.BiddingPeriodExpiresAt.Set(float64(p.ExpiresAt.Unix()))
		case errors.Is(err, ErrNotFound):
			metrics.BiddingPeriodOpen.Set(0)
			metrics.BiddingPeriodExpiresAt.Set(0)
		default:
			return fmt.Errorf("select bidding period: %w", err)
		}

		bids, err := tx.ListBids(ctx, Ascending)
		if err != nil {
			return fmt.Errorf("list bids: %w", err)
		}

		metrics.BidLedgerSize.Set(float64(len(bids)))

		return nil
	})
}
