package escrow

import (
	"fmt"
	"strings"
	"time"

	"bidvault/store"

	sdkmath "cosmossdk.io/math"
	"github.com/gofrs/uuid"
)

// These aliases keep the API of package escrow free of package store types.
type (
	AdminSet      = store.AdminSet
	BiddingPeriod = store.BiddingPeriod
	Bid           = store.Bid
	Settlement    = store.Settlement
	Transfer      = store.Transfer
)

// Terms of a new bidding period, as submitted by an admin.
type Terms struct {
	Name            string
	Description     *string
	ExpiresAt       time.Time
	MinimumBid      sdkmath.Int
	AcceptedBidders uint64
	Denom           string
}

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response is what a successful command hands back to the host: reporting
// attributes, and the transfers the host must execute atomically with the
// commit.
type Response struct {
	Attributes []Attribute `json:"attributes"`
	Transfers  []Transfer  `json:"transfers"`
}

func (r *Response) add(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

// Attribute returns the value of the first attribute with the given key.
func (r *Response) Attribute(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

type BidReceipt struct {
	Response

	Address    string
	AmountPaid sdkmath.Int
	NewTotal   sdkmath.Int
}

type SettlementReceipt struct {
	Response

	SettlementID uuid.UUID
	Withdrawn    sdkmath.Int
}

type Info struct {
	ContractName     string
	ContractVersion  string
	Admins           []string
	Network          string
	MinimumBidPolicy MinimumBidPolicy
}

// MinimumBidPolicy decides what the period's minimum bid is compared with.
type MinimumBidPolicy int

const (
	// MinimumPerPayment checks every individual payment, so a top-up
	// smaller than the minimum is rejected even for an existing bidder.
	MinimumPerPayment MinimumBidPolicy = iota

	// MinimumCumulative checks the bidder's running total after the payment.
	MinimumCumulative
)

func (p MinimumBidPolicy) String() string {
	switch p {
	case MinimumCumulative:
		return "total"
	default:
		return "payment"
	}
}

func ParseMinimumBidPolicy(s string) (MinimumBidPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "payment", "":
		return MinimumPerPayment, nil
	case "total", "cumulative":
		return MinimumCumulative, nil
	default:
		return MinimumPerPayment, fmt.Errorf("unknown minimum bid policy %q", s)
	}
}
