package escrow

import (
	"context"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

type MockService struct {
	PingFunc          func(ctx context.Context) error
	InfoFunc          func(ctx context.Context) (*Info, error)
	InitializeFunc    func(ctx context.Context, admins []string) (*Response, error)
	StartBiddingFunc  func(ctx context.Context, sender string, terms Terms) (*Response, error)
	PlaceBidFunc      func(ctx context.Context, sender string, funds sdk.Coins, beneficiary *string) (*BidReceipt, error)
	EndBiddingFunc    func(ctx context.Context, sender string, accepted []string, withdrawalAddr *string) (*SettlementReceipt, error)
	BiddingPeriodFunc func(ctx context.Context) (*BiddingPeriod, error)
	BidsFunc          func(ctx context.Context) ([]*Bid, error)
	BidFunc           func(ctx context.Context, addr string) (*Bid, error)
	SettlementsFunc   func(ctx context.Context) ([]*Settlement, error)
}

var _ Service = (*MockService)(nil)

// NewMockServiceErr returns a mock where every method fails with err.
func NewMockServiceErr(err error) *MockService {
	return &MockService{
		PingFunc: func(ctx context.Context) error {
			return err
		},
		InfoFunc: func(ctx context.Context) (*Info, error) {
			return nil, err
		},
		InitializeFunc: func(ctx context.Context, admins []string) (*Response, error) {
			return nil, err
		},
		StartBiddingFunc: func(ctx context.Context, sender string, terms Terms) (*Response, error) {
			return nil, err
		},
		PlaceBidFunc: func(ctx context.Context, sender string, funds sdk.Coins, beneficiary *string) (*BidReceipt, error) {
			return nil, err
		},
		EndBiddingFunc: func(ctx context.Context, sender string, accepted []string, withdrawalAddr *string) (*SettlementReceipt, error) {
			return nil, err
		},
		BiddingPeriodFunc: func(ctx context.Context) (*BiddingPeriod, error) {
			return nil, err
		},
		BidsFunc: func(ctx context.Context) ([]*Bid, error) {
			return nil, err
		},
		BidFunc: func(ctx context.Context, addr string) (*Bid, error) {
			return nil, err
		},
		SettlementsFunc: func(ctx context.Context) ([]*Settlement, error) {
			return nil, err
		},
	}
}

func (m *MockService) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}

func (m *MockService) Info(ctx context.Context) (*Info, error) {
	return m.InfoFunc(ctx)
}

func (m *MockService) Initialize(ctx context.Context, admins []string) (*Response, error) {
	return m.InitializeFunc(ctx, admins)
}

func (m *MockService) StartBidding(ctx context.Context, sender string, terms Terms) (*Response, error) {
	return m.StartBiddingFunc(ctx, sender, terms)
}

func (m *MockService) PlaceBid(ctx context.Context, sender string, funds sdk.Coins, beneficiary *string) (*BidReceipt, error) {
	return m.PlaceBidFunc(ctx, sender, funds, beneficiary)
}

func (m *MockService) EndBidding(ctx context.Context, sender string, accepted []string, withdrawalAddr *string) (*SettlementReceipt, error) {
	return m.EndBiddingFunc(ctx, sender, accepted, withdrawalAddr)
}

func (m *MockService) BiddingPeriod(ctx context.Context) (*BiddingPeriod, error) {
	return m.BiddingPeriodFunc(ctx)
}

func (m *MockService) Bids(ctx context.Context) ([]*Bid, error) {
	return m.BidsFunc(ctx)
}

func (m *MockService) Bid(ctx context.Context, addr string) (*Bid, error) {
	return m.BidFunc(ctx, addr)
}

func (m *MockService) Settlements(ctx context.Context) ([]*Settlement, error) {
	return m.SettlementsFunc(ctx)
}
