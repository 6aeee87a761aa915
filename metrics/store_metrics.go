package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var AdminCount = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "admin_count",
	Help:      "Number of configured admins, zero if uninitialized.",
})

var ContractInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "contract_info",
	Help:      "Contract name and version recorded at initialization.",
}, []string{"contract", "version"})

var BiddingPeriodOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "bidding_period_open",
	Help:      "1 if a bidding period exists, 0 otherwise.",
})

var BiddingPeriodExpiresAt = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "bidding_period_expires_at",
	Help:      "UNIX timestamp when the current bidding period expires.",
})

var BidLedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "bid_ledger_size",
	Help:      "Number of bidders with an outstanding bid.",
})
