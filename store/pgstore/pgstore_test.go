package pgstore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"bidvault/store"
	"bidvault/store/pgstore"
	"bidvault/store/storetest"

	sdkmath "cosmossdk.io/math"
)

func TestStore(t *testing.T) {
	t.Parallel()

	if os.Getenv("PGCONNSTRING") == "" {
		t.Skipf("set PGCONNSTRING to run this test")
	}

	storetest.TestStore(t, pgstore.NewTestStore)
}

func TestPGStoreTransactionIsolation(t *testing.T) {
	t.Parallel()

	if os.Getenv("PGCONNSTRING") == "" {
		t.Skipf("set PGCONNSTRING to run this test")
	}

	var (
		ctx = context.Background()
		s   = pgstore.NewTestStore(t)
	)

	// Both transactions observe no open period and try to open one. Steps
	// are only consumed on the first attempt, so a retried transaction runs
	// straight through.
	open := func(name string, stepch <-chan int) error {
		var attempt int
		step := func() {
			if attempt == 1 {
				t.Logf("%s: step %d", name, <-stepch)
			}
		}

		return s.Transact(ctx, func(tx store.Store) error {
			attempt++
			step()

			switch _, err := tx.SelectBiddingPeriod(ctx); {
			case err == nil:
				return fmt.Errorf("%s: period already open", name)
			case !errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("%s: SelectBiddingPeriod: %w", name, err)
			}

			step()

			return tx.InsertBiddingPeriod(ctx, &store.BiddingPeriod{
				Name:            name,
				ExpiresAt:       time.Now().Add(time.Hour),
				MinimumBid:      sdkmath.NewInt(1),
				AcceptedBidders: 1,
				Denom:           storetest.Denom,
			})
		})
	}

	var (
		stepc1 = make(chan int, 100)
		errc1  = make(chan error, 1)
		stepc2 = make(chan int, 100)
		errc2  = make(chan error, 1)
	)
	go func() { errc1 <- open("first", stepc1) }()
	go func() { errc2 <- open("second", stepc2) }()

	stepc1 <- 1     // first reads no period
	stepc2 <- 2     // second reads no period
	stepc1 <- 3     // first inserts and commits
	err1 := <-errc1 // first should succeed
	stepc2 <- 4     // second inserts after the commit
	err2 := <-errc2 // second should fail

	if err1 != nil {
		t.Errorf("first transaction should have succeeded, but had error: %v", err1)
	}

	if err2 == nil {
		t.Errorf("second transaction should have failed, but succeeded")
	}

	p, err := s.SelectBiddingPeriod(ctx)
	if err != nil {
		t.Fatalf("SelectBiddingPeriod: %v", err)
	}

	if want, have := "first", p.Name; want != have {
		t.Errorf("period name: want %q, have %q", want, have)
	}
}

func TestPGStoreConcurrentBids(t *testing.T) {
	t.Parallel()

	if os.Getenv("PGCONNSTRING") == "" {
		t.Skipf("set PGCONNSTRING to run this test")
	}

	var (
		ctx    = context.Background()
		s      = pgstore.NewTestStore(t)
		bidder = storetest.GenBech32Addr(t, storetest.Network)
		n      = 8
		errc   = make(chan error, n)
	)

	// Plain AddBid calls outside Transact are single-statement upserts and
	// must never lose an increment.
	for i := 0; i < n; i++ {
		go func() {
			_, err := s.AddBid(ctx, bidder, sdkmath.NewInt(25))
			errc <- err
		}()
	}

	for i := 0; i < n; i++ {
		if err := <-errc; err != nil {
			t.Fatalf("AddBid: %v", err)
		}
	}

	b, err := s.SelectBid(ctx, bidder)
	if err != nil {
		t.Fatalf("SelectBid: %v", err)
	}

	if want, have := sdkmath.NewInt(int64(25*n)), b.Amount; !want.Equal(have) {
		t.Errorf("amount: want %s, have %s", want, have)
	}
}
