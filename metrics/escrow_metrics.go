package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "commands_total",
	Help:      "Total number of escrow commands handled, by result.",
}, []string{"command", "result"})

var BidsPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "bids_placed_total",
	Help:      "Total number of accepted bid payments.",
}, []string{"denom"})

var BidAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "bid_amount_total",
	Help:      "Sum of accepted bid payments, in base units.",
}, []string{"denom"})

var SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "settlements_total",
	Help:      "Total number of bidding periods settled.",
}, []string{"denom"})

var TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "transfers_total",
	Help:      "Total number of outgoing transfers emitted by settlements.",
}, []string{"denom", "kind"})

var TransferAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "transfer_amount_total",
	Help:      "Sum of outgoing transfer amounts, in base units.",
}, []string{"denom", "kind"})
