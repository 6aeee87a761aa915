package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bidvault/store"

	sdkmath "cosmossdk.io/math"
	"github.com/gofrs/uuid"
	"github.com/google/btree"
	"golang.org/x/exp/slices"
)

// Store keeps all state in memory. Transact runs the callback against a
// copy of the state and swaps it in only if the callback succeeds, so a
// failed command leaves no trace. Transactions are serialized.
type Store struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	admins      *store.AdminSet
	period      *store.BiddingPeriod
	bids        *btree.BTreeG[*store.Bid]
	settlements []*store.Settlement
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		state: &state{
			bids: btree.NewG(16, lessBidder),
		},
	}
}

func lessBidder(a, b *store.Bid) bool {
	return a.Bidder < b.Bidder
}

// clone is shallow: records are never mutated in place, only replaced.
func (st *state) clone() *state {
	return &state{
		admins:      st.admins,
		period:      st.period,
		bids:        st.bids.Clone(),
		settlements: slices.Clone(st.settlements),
	}
}

func (s *Store) Transact(ctx context.Context, tx func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := &Store{state: s.state.clone()}
	if err := tx(next); err != nil {
		return err
	}

	s.state = next.state
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Cleanup(ctx context.Context, retention time.Duration) error {
	if retention <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-retention)
	kept := s.state.settlements[:0:0]
	for _, st := range s.state.settlements {
		if st.CreatedAt.After(cutoff) {
			kept = append(kept, st)
		}
	}
	s.state.settlements = kept

	return nil
}

//
// admins
//

func (s *Store) InsertAdminSet(ctx context.Context, a *store.AdminSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.admins != nil {
		return store.ErrAlreadyExists
	}

	a.CreatedAt = time.Now().UTC()

	newAdmins := *a
	newAdmins.Admins = slices.Clone(a.Admins)
	s.state.admins = &newAdmins

	return nil
}

func (s *Store) SelectAdminSet(ctx context.Context) (*store.AdminSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.admins == nil {
		return nil, store.ErrNotFound
	}

	a := *s.state.admins
	a.Admins = slices.Clone(a.Admins)
	return &a, nil
}

//
// bidding period
//

func (s *Store) InsertBiddingPeriod(ctx context.Context, p *store.BiddingPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.period != nil {
		return store.ErrAlreadyExists
	}

	p.CreatedAt = time.Now().UTC()

	newPeriod := *p
	s.state.period = &newPeriod

	return nil
}

func (s *Store) SelectBiddingPeriod(ctx context.Context) (*store.BiddingPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.period == nil {
		return nil, store.ErrNotFound
	}

	p := *s.state.period
	return &p, nil
}

func (s *Store) DeleteBiddingPeriod(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.period == nil {
		return store.ErrNotFound
	}

	s.state.period = nil
	return nil
}

//
// bids
//

func (s *Store) AddBid(ctx context.Context, bidder string, amount sdkmath.Int) (*store.Bid, error) {
	if amount.IsNil() || amount.IsNegative() {
		return nil, fmt.Errorf("bid amount must be non-negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	var b store.Bid
	if existing, ok := s.state.bids.Get(&store.Bid{Bidder: bidder}); ok { // update
		b = *existing
		b.Amount = existing.Amount.Add(amount)
		b.UpdatedAt = now
	} else { // create
		b = store.Bid{
			Bidder:    bidder,
			Amount:    amount,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	s.state.bids.ReplaceOrInsert(&b)

	bb := b
	return &bb, nil
}

func (s *Store) SelectBid(ctx context.Context, bidder string) (*store.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.state.bids.Get(&store.Bid{Bidder: bidder})
	if !ok {
		return nil, store.ErrNotFound
	}

	bb := *b
	return &bb, nil
}

func (s *Store) ListBids(ctx context.Context, order store.Order) ([]*store.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bids []*store.Bid
	collect := func(b *store.Bid) bool {
		bb := *b
		bids = append(bids, &bb)
		return true
	}

	switch order {
	case store.Descending:
		s.state.bids.Descend(collect)
	default:
		s.state.bids.Ascend(collect)
	}

	return bids, nil
}

func (s *Store) DeleteBid(ctx context.Context, bidder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.bids.Delete(&store.Bid{Bidder: bidder})
	return nil
}

func (s *Store) ClearBids(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.bids.Clear(false)
	return nil
}

//
// settlements
//

func (s *Store) InsertSettlement(ctx context.Context, st *store.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == uuid.Nil {
		var err error
		if st.ID, err = uuid.NewV4(); err != nil {
			return fmt.Errorf("generate settlement ID: %w", err)
		}
	}

	st.CreatedAt = time.Now().UTC()

	newSettlement := *st
	newSettlement.Accepted = slices.Clone(st.Accepted)
	newSettlement.Transfers = slices.Clone(st.Transfers)
	s.state.settlements = append(s.state.settlements, &newSettlement)

	return nil
}

func (s *Store) ListSettlements(ctx context.Context) ([]*store.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// newest first
	settlements := make([]*store.Settlement, 0, len(s.state.settlements))
	for i := len(s.state.settlements) - 1; i >= 0; i-- {
		settlements = append(settlements, s.state.settlements[i])
	}

	return settlements, nil
}
