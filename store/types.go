package store

import (
	"errors"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gofrs/uuid"
	"golang.org/x/exp/slices"
)

type AdminSet struct {
	Admins          []string
	ContractName    string
	ContractVersion string
	CreatedAt       time.Time
}

// IsAdmin is an exact string comparison, with no address normalization.
func (a *AdminSet) IsAdmin(addr string) bool {
	return slices.Contains(a.Admins, addr)
}

type BiddingPeriod struct {
	Name            string
	Description     *string
	ExpiresAt       time.Time
	MinimumBid      sdkmath.Int
	AcceptedBidders uint64
	Denom           string
	CreatedAt       time.Time
}

// Expired reports whether bids are no longer accepted at time now.
func (p *BiddingPeriod) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

type Bid struct {
	Bidder    string
	Amount    sdkmath.Int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Settlement struct {
	ID         uuid.UUID
	PeriodName string
	Denom      string
	Caller     string
	Accepted   []string
	Transfers  []Transfer
	Withdrawn  sdkmath.Int
	CreatedAt  time.Time
}

// Transfer is an outbound payment instruction for the host to execute.
type Transfer struct {
	Kind      TransferKind `json:"kind"`
	Recipient string       `json:"recipient"`
	Denom     string       `json:"denom"`
	Amount    sdkmath.Int  `json:"amount"`
}

type TransferKind string

const (
	TransferKindRefund   TransferKind = "refund"
	TransferKindProceeds TransferKind = "proceeds"
)

func ParseTransferKind(s string) TransferKind {
	switch strings.ToLower(s) {
	case string(TransferKindProceeds):
		return TransferKindProceeds
	default:
		return TransferKindRefund
	}
}

// Order of bid enumeration, by bidder identity.
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	switch o {
	case Descending:
		return "descending"
	default:
		return "ascending"
	}
}

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)
