package escrow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"bidvault/build"
	"bidvault/ledger"
	"bidvault/metrics"
	"bidvault/store"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const ContractName = "bidvault"

type Service interface {
	Ping(ctx context.Context) error
	Info(ctx context.Context) (*Info, error)

	Initialize(ctx context.Context, admins []string) (*Response, error)
	StartBidding(ctx context.Context, sender string, terms Terms) (*Response, error)
	PlaceBid(ctx context.Context, sender string, funds sdk.Coins, beneficiary *string) (*BidReceipt, error)
	EndBidding(ctx context.Context, sender string, accepted []string, withdrawalAddr *string) (*SettlementReceipt, error)

	BiddingPeriod(ctx context.Context) (*BiddingPeriod, error)
	Bids(ctx context.Context) ([]*Bid, error)
	Bid(ctx context.Context, addr string) (*Bid, error)
	Settlements(ctx context.Context) ([]*Settlement, error)
}

//
//
//

type CoreService struct {
	ledger ledger.Ledger
	store  store.Store
	logger log.Logger
	policy MinimumBidPolicy
}

var _ Service = (*CoreService)(nil)

type Option func(*CoreService)

func WithLogger(logger log.Logger) Option {
	return func(s *CoreService) { s.logger = logger }
}

func WithMinimumBidPolicy(p MinimumBidPolicy) Option {
	return func(s *CoreService) { s.policy = p }
}

func NewCoreService(l ledger.Ledger, s store.Store, options ...Option) *CoreService {
	cs := &CoreService{
		ledger: l,
		store:  s,
		logger: log.NewNopLogger(),
		policy: MinimumPerPayment,
	}
	for _, option := range options {
		option(cs)
	}
	return cs
}

func (s *CoreService) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}

func (s *CoreService) Info(ctx context.Context) (*Info, error) {
	admins, err := s.store.SelectAdminSet(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrConfigurationMissing
	case err != nil:
		return nil, fmt.Errorf("select admin set: %w", err)
	}

	return &Info{
		ContractName:     admins.ContractName,
		ContractVersion:  admins.ContractVersion,
		Admins:           admins.Admins,
		Network:          s.ledger.Network(),
		MinimumBidPolicy: s.policy,
	}, nil
}

func (s *CoreService) Initialize(ctx context.Context, admins []string) (_ *Response, err error) {
	defer func() {
		metrics.CommandsTotal.WithLabelValues("initialize", boolString(err == nil, "success", "error")).Inc()
	}()

	set := &AdminSet{
		ContractName:    ContractName,
		ContractVersion: build.Version,
	}

	if err := s.store.Transact(ctx, func(tx store.Store) error {
		switch _, err := tx.SelectAdminSet(ctx); {
		case err == nil:
			return ErrAlreadyInitialized
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("select admin set: %w", err)
		}

		unique, err := uniqueAdmins(ctx, s.ledger, admins)
		if err != nil {
			return err
		}
		set.Admins = unique

		switch err := tx.InsertAdminSet(ctx, set); {
		case errors.Is(err, store.ErrAlreadyExists):
			return ErrAlreadyInitialized
		case err != nil:
			return fmt.Errorf("insert admin set: %w", err)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	level.Info(s.logger).Log("msg", "initialized", "admins", len(set.Admins), "contract", set.ContractName, "version", set.ContractVersion)

	resp := &Response{}
	resp.add("method", "instantiate")
	return resp, nil
}

func (s *CoreService) StartBidding(ctx context.Context, sender string, terms Terms) (_ *Response, err error) {
	defer func() {
		metrics.CommandsTotal.WithLabelValues("start_bidding", boolString(err == nil, "success", "error")).Inc()
	}()

	level.Debug(s.logger).Log("method", "StartBidding", "sender", sender, "name", terms.Name, "expires_at", terms.ExpiresAt, "denom", terms.Denom)

	period := &BiddingPeriod{
		Name:            terms.Name,
		Description:     terms.Description,
		ExpiresAt:       terms.ExpiresAt.UTC(),
		MinimumBid:      terms.MinimumBid,
		AcceptedBidders: terms.AcceptedBidders,
		Denom:           terms.Denom,
	}

	if err := s.store.Transact(ctx, func(tx store.Store) error {
		if err := authorize(ctx, tx, sender); err != nil {
			return err
		}

		switch _, err := tx.SelectBiddingPeriod(ctx); {
		case err == nil:
			return ErrBiddingPeriodActive
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("select bidding period: %w", err)
		}

		if err := validateTerms(period, s.ledger.Now(ctx)); err != nil {
			return err
		}

		switch err := tx.InsertBiddingPeriod(ctx, period); {
		case errors.Is(err, store.ErrAlreadyExists):
			return ErrBiddingPeriodActive
		case err != nil:
			return fmt.Errorf("insert bidding period: %w", err)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	level.Info(s.logger).Log("msg", "bidding period opened", "name", period.Name, "expires_at", period.ExpiresAt, "denom", period.Denom, "minimum_bid", period.MinimumBid, "accepted_bidders", period.AcceptedBidders)

	resp := &Response{}
	resp.add("method", "start_bidding").
		add("bidding_period_name", period.Name).
		add("bidding_period_description", stringOr(period.Description, "null")).
		add("bidding_period_expires_at", strconv.FormatInt(period.ExpiresAt.UnixNano(), 10)).
		add("bidding_period_accepted_bidders", strconv.FormatUint(period.AcceptedBidders, 10))
	return resp, nil
}

func validateTerms(p *BiddingPeriod, now time.Time) error {
	switch {
	case !p.ExpiresAt.After(now):
		return fmt.Errorf("%w: bidding period end time is in the past", ErrInvalidTerms)
	case p.AcceptedBidders < 1:
		return fmt.Errorf("%w: at least 1 bid needs to be able to be accepted", ErrInvalidTerms)
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTerms)
	case p.MinimumBid.IsNil() || !p.MinimumBid.IsPositive():
		return fmt.Errorf("%w: minimum bid must be positive", ErrInvalidTerms)
	case p.Denom == "" || strings.IndexFunc(p.Denom, unicode.IsSpace) >= 0:
		return fmt.Errorf("%w: invalid denom %q", ErrInvalidTerms, p.Denom)
	}

	return nil
}

func (s *CoreService) PlaceBid(ctx context.Context, sender string, funds sdk.Coins, beneficiary *string) (_ *BidReceipt, err error) {
	var denom string
	defer func() {
		metrics.CommandsTotal.WithLabelValues("bid", boolString(err == nil, "success", "error")).Inc()
	}()

	level.Debug(s.logger).Log("method", "PlaceBid", "sender", sender, "funds", funds.String(), "beneficiary", stringOr(beneficiary, "<sender>"))

	var (
		bidder = stringOr(beneficiary, sender)
		paid   sdkmath.Int
		bid    *Bid
	)

	if err := s.store.Transact(ctx, func(tx store.Store) error {
		period, err := tx.SelectBiddingPeriod(ctx)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return ErrNoActivePeriod
		case err != nil:
			return fmt.Errorf("select bidding period: %w", err)
		}

		if period.Expired(s.ledger.Now(ctx)) {
			return ErrBiddingPeriodExpired
		}

		amount, err := mustPay(funds, period.Denom)
		if err != nil {
			return err
		}

		if err := s.ledger.ValidateAddress(ctx, bidder); err != nil {
			return fmt.Errorf("bidder: %w", err)
		}

		if err := s.checkMinimum(ctx, tx, period, bidder, amount); err != nil {
			return err
		}

		b, err := tx.AddBid(ctx, bidder, amount)
		if err != nil {
			return fmt.Errorf("add bid: %w", err)
		}

		denom, paid, bid = period.Denom, amount, b
		return nil
	}); err != nil {
		return nil, err
	}

	metrics.BidsPlacedTotal.WithLabelValues(denom).Inc()
	metrics.BidAmountTotal.WithLabelValues(denom).Add(amountFloat(paid))

	receipt := &BidReceipt{
		Address:    bidder,
		AmountPaid: paid,
		NewTotal:   bid.Amount,
	}
	receipt.add("method", "bid").
		add("address", bidder).
		add("amount", paid.String()).
		add("new_amount", bid.Amount.String())
	return receipt, nil
}

func (s *CoreService) checkMinimum(ctx context.Context, tx store.Store, period *BiddingPeriod, bidder string, amount sdkmath.Int) error {
	total := amount
	if s.policy == MinimumCumulative {
		switch existing, err := tx.SelectBid(ctx, bidder); {
		case err == nil:
			total = existing.Amount.Add(amount)
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("select bid: %w", err)
		}
	}

	if total.LT(period.MinimumBid) {
		return fmt.Errorf("%w (%s%s)", ErrBelowMinimumBid, period.MinimumBid, period.Denom)
	}

	return nil
}

func (s *CoreService) EndBidding(ctx context.Context, sender string, accepted []string, withdrawalAddr *string) (_ *SettlementReceipt, err error) {
	defer func() {
		metrics.CommandsTotal.WithLabelValues("end_bidding", boolString(err == nil, "success", "error")).Inc()
	}()

	level.Debug(s.logger).Log("method", "EndBidding", "sender", sender, "accepted", len(accepted), "withdrawal_address", stringOr(withdrawalAddr, "<sender>"))

	var (
		period     *BiddingPeriod
		plan       *settlementPlan
		settlement *Settlement
	)

	if err := s.store.Transact(ctx, func(tx store.Store) error {
		if err := authorize(ctx, tx, sender); err != nil {
			return err
		}

		p, err := tx.SelectBiddingPeriod(ctx)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return ErrNoActivePeriod
		case err != nil:
			return fmt.Errorf("select bidding period: %w", err)
		}

		if n := uint64(len(accepted)); n > p.AcceptedBidders {
			return fmt.Errorf("%w: %d accepted, period allows %d", ErrTooManyAccepted, n, p.AcceptedBidders)
		}

		if withdrawalAddr != nil {
			if err := s.ledger.ValidateAddress(ctx, *withdrawalAddr); err != nil {
				return fmt.Errorf("withdrawal address: %w", err)
			}
		}

		bids, err := tx.ListBids(ctx, store.Ascending)
		if err != nil {
			return fmt.Errorf("list bids: %w", err)
		}

		pl, err := settle(p, bids, accepted, sender, withdrawalAddr)
		if err != nil {
			return err
		}

		// Everything below mutates. Validation is complete.

		if err := tx.DeleteBiddingPeriod(ctx); err != nil {
			return fmt.Errorf("delete bidding period: %w", err)
		}

		if err := tx.ClearBids(ctx); err != nil {
			return fmt.Errorf("clear bids: %w", err)
		}

		st := &Settlement{
			PeriodName: p.Name,
			Denom:      p.Denom,
			Caller:     sender,
			Accepted:   accepted,
			Transfers:  pl.transfers(),
			Withdrawn:  pl.withdrawn,
		}
		if err := tx.InsertSettlement(ctx, st); err != nil {
			return fmt.Errorf("insert settlement: %w", err)
		}

		period, plan, settlement = p, pl, st
		return nil
	}); err != nil {
		return nil, err
	}

	metrics.SettlementsTotal.WithLabelValues(period.Denom).Inc()
	for _, t := range settlement.Transfers {
		metrics.TransfersTotal.WithLabelValues(t.Denom, string(t.Kind)).Inc()
		metrics.TransferAmountTotal.WithLabelValues(t.Denom, string(t.Kind)).Add(amountFloat(t.Amount))
	}

	level.Info(s.logger).Log("msg", "bidding period settled", "name", period.Name, "settlement", settlement.ID, "refunds", len(plan.refunds), "withdrawn", plan.withdrawn, "recipient", plan.proceeds.Recipient)

	receipt := &SettlementReceipt{
		SettlementID: settlement.ID,
		Withdrawn:    plan.withdrawn,
	}
	receipt.Transfers = settlement.Transfers
	receipt.add("method", "end_bidding").
		add("withdrawn", plan.withdrawn.String())
	return receipt, nil
}

func (s *CoreService) BiddingPeriod(ctx context.Context) (*BiddingPeriod, error) {
	p, err := s.store.SelectBiddingPeriod(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("select bidding period: %w", err)
	}
	return p, nil
}

func (s *CoreService) Bids(ctx context.Context) ([]*Bid, error) {
	bids, err := s.store.ListBids(ctx, store.Descending)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	return bids, nil
}

func (s *CoreService) Bid(ctx context.Context, addr string) (*Bid, error) {
	b, err := s.store.SelectBid(ctx, addr)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("select bid: %w", err)
	}
	return b, nil
}

func (s *CoreService) Settlements(ctx context.Context) ([]*Settlement, error) {
	settlements, err := s.store.ListSettlements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	return settlements, nil
}
