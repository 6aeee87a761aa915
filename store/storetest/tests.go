package storetest

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"bidvault/store"

	sdkmath "cosmossdk.io/math"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestStore(t *testing.T, makeStore func(*testing.T) store.Store) {
	ctx := context.Background()

	t.Run("SelectAdminSet", func(t *testing.T) {
		s := makeStore(t)

		if _, err := s.SelectAdminSet(ctx); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("select before insert: want %v, have %v", store.ErrNotFound, err)
		}

		want := NewAdminSet(t, s)
		have, err := s.SelectAdminSet(ctx)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("InsertAdminSet twice", func(t *testing.T) {
		s := makeStore(t)
		NewAdminSet(t, s)

		err := s.InsertAdminSet(ctx, &store.AdminSet{Admins: []string{"someone"}})
		if want, have := store.ErrAlreadyExists, err; !errors.Is(have, want) {
			t.Fatalf("want %v, have %v", want, have)
		}
	})

	t.Run("SelectBiddingPeriod", func(t *testing.T) {
		s := makeStore(t)

		if _, err := s.SelectBiddingPeriod(ctx); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("select before insert: want %v, have %v", store.ErrNotFound, err)
		}

		want := NewBiddingPeriod(t, s)
		have, err := s.SelectBiddingPeriod(ctx)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("BiddingPeriod without description", func(t *testing.T) {
		s := makeStore(t)

		want := &store.BiddingPeriod{
			Name:            "plain",
			ExpiresAt:       time.Unix(0, 1_700_000_000_123_456_789).UTC(),
			MinimumBid:      sdkmath.NewInt(1),
			AcceptedBidders: 1,
			Denom:           Denom,
		}
		if err := s.InsertBiddingPeriod(ctx, want); err != nil {
			t.Fatal(err)
		}

		have, err := s.SelectBiddingPeriod(ctx)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("InsertBiddingPeriod twice", func(t *testing.T) {
		s := makeStore(t)
		NewBiddingPeriod(t, s)

		err := s.InsertBiddingPeriod(ctx, &store.BiddingPeriod{
			Name:            "second",
			ExpiresAt:       time.Now().Add(time.Hour),
			MinimumBid:      sdkmath.NewInt(1),
			AcceptedBidders: 1,
			Denom:           Denom,
		})
		if want, have := store.ErrAlreadyExists, err; !errors.Is(have, want) {
			t.Fatalf("want %v, have %v", want, have)
		}
	})

	t.Run("DeleteBiddingPeriod", func(t *testing.T) {
		s := makeStore(t)

		if want, have := store.ErrNotFound, s.DeleteBiddingPeriod(ctx); !errors.Is(have, want) {
			t.Fatalf("delete missing period: want %v, have %v", want, have)
		}

		NewBiddingPeriod(t, s)
		if err := s.DeleteBiddingPeriod(ctx); err != nil {
			t.Fatal(err)
		}

		if _, err := s.SelectBiddingPeriod(ctx); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("select after delete: want %v, have %v", store.ErrNotFound, err)
		}

		NewBiddingPeriod(t, s) // the slot is reusable
	})

	t.Run("AddBid accumulates", func(t *testing.T) {
		s := makeStore(t)
		bid := NewBid(t, s, 1000)

		if want, have := int64(1000), bid.Amount.Int64(); want != have {
			t.Fatalf("first amount: want %d, have %d", want, have)
		}

		updated, err := s.AddBid(ctx, bid.Bidder, sdkmath.NewInt(250))
		if err != nil {
			t.Fatal(err)
		}

		if want, have := int64(1250), updated.Amount.Int64(); want != have {
			t.Fatalf("accumulated amount: want %d, have %d", want, have)
		}

		have, err := s.SelectBid(ctx, bid.Bidder)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, updated); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("AddBid rejects negative amounts", func(t *testing.T) {
		s := makeStore(t)

		if _, err := s.AddBid(ctx, "someone", sdkmath.NewInt(-1)); err == nil {
			t.Fatalf("want error, have none")
		}
	})

	t.Run("SelectBid missing", func(t *testing.T) {
		s := makeStore(t)

		_, err := s.SelectBid(ctx, "nobody")
		if want, have := store.ErrNotFound, err; !errors.Is(have, want) {
			t.Fatalf("want %v, have %v", want, have)
		}
	})

	t.Run("ListBids", func(t *testing.T) {
		s := makeStore(t)

		have, err := s.ListBids(ctx, store.Ascending)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, []*store.Bid(nil)); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}

		want := []*store.Bid{
			NewBid(t, s, 500),
			NewBid(t, s, 600),
			NewBid(t, s, 700),
		}

		sort.SliceStable(want, func(i, j int) bool {
			return want[i].Bidder < want[j].Bidder
		})

		have, err = s.ListBids(ctx, store.Ascending)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("ascending mismatch: %s", diff)
		}

		sort.SliceStable(want, func(i, j int) bool {
			return want[i].Bidder > want[j].Bidder
		})

		have, err = s.ListBids(ctx, store.Descending)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("descending mismatch: %s", diff)
		}
	})

	t.Run("DeleteBid", func(t *testing.T) {
		s := makeStore(t)

		if err := s.DeleteBid(ctx, "nobody"); err != nil {
			t.Fatalf("delete missing bid: %v", err)
		}

		bid := NewBid(t, s, 500)
		if err := s.DeleteBid(ctx, bid.Bidder); err != nil {
			t.Fatal(err)
		}

		if _, err := s.SelectBid(ctx, bid.Bidder); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("select after delete: want %v, have %v", store.ErrNotFound, err)
		}
	})

	t.Run("ClearBids", func(t *testing.T) {
		s := makeStore(t)
		NewBid(t, s, 500)
		NewBid(t, s, 600)

		if err := s.ClearBids(ctx); err != nil {
			t.Fatal(err)
		}

		bids, err := s.ListBids(ctx, store.Ascending)
		if err != nil {
			t.Fatal(err)
		}

		if len(bids) != 0 {
			t.Fatalf("want no bids, have %d", len(bids))
		}
	})

	t.Run("ListSettlements", func(t *testing.T) {
		s := makeStore(t)

		first := NewSettlement(t, s, NewBid(t, s, 1000), NewBid(t, s, 500))
		second := NewSettlement(t, s, NewBid(t, s, 2000), NewBid(t, s, 700))

		have, err := s.ListSettlements(ctx)
		if err != nil {
			t.Fatal(err)
		}

		want := []*store.Settlement{second, first}
		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("Cleanup", func(t *testing.T) {
		s := makeStore(t)
		NewSettlement(t, s, NewBid(t, s, 1000), NewBid(t, s, 500))

		if err := s.Cleanup(ctx, 0); err != nil {
			t.Fatal(err)
		}

		if settlements, err := s.ListSettlements(ctx); err != nil {
			t.Fatal(err)
		} else if want, have := 1, len(settlements); want != have {
			t.Fatalf("zero retention: want %d settlements, have %d", want, have)
		}

		time.Sleep(10 * time.Millisecond)

		if err := s.Cleanup(ctx, time.Millisecond); err != nil {
			t.Fatal(err)
		}

		if settlements, err := s.ListSettlements(ctx); err != nil {
			t.Fatal(err)
		} else if want, have := 0, len(settlements); want != have {
			t.Fatalf("after cleanup: want %d settlements, have %d", want, have)
		}
	})

	t.Run("Transact commits", func(t *testing.T) {
		s := makeStore(t)

		var bidder string
		if err := s.Transact(ctx, func(tx store.Store) error {
			NewBiddingPeriod(t, tx)
			bidder = NewBid(t, tx, 800).Bidder
			return nil
		}); err != nil {
			t.Fatal(err)
		}

		if _, err := s.SelectBiddingPeriod(ctx); err != nil {
			t.Fatalf("select committed period: %v", err)
		}

		if _, err := s.SelectBid(ctx, bidder); err != nil {
			t.Fatalf("select committed bid: %v", err)
		}
	})

	t.Run("Transact rolls back", func(t *testing.T) {
		s := makeStore(t)
		kept := NewBid(t, s, 500)

		sigil := errors.New("sigil")
		err := s.Transact(ctx, func(tx store.Store) error {
			NewBiddingPeriod(t, tx)
			NewBid(t, tx, 900)
			if _, err := tx.AddBid(ctx, kept.Bidder, sdkmath.NewInt(100)); err != nil {
				return err
			}
			if err := tx.ClearBids(ctx); err != nil {
				return err
			}
			return sigil
		})
		if want, have := sigil, err; !errors.Is(have, want) {
			t.Fatalf("want %v, have %v", want, have)
		}

		if _, err := s.SelectBiddingPeriod(ctx); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("period after rollback: want %v, have %v", store.ErrNotFound, err)
		}

		bids, err := s.ListBids(ctx, store.Ascending)
		if err != nil {
			t.Fatal(err)
		}

		ignore := cmpopts.IgnoreFields(store.Bid{}, "UpdatedAt")
		if diff := cmp.Diff(bids, []*store.Bid{kept}, ignore); diff != "" {
			t.Fatalf("bids after rollback: %s", diff)
		}
	})
}
