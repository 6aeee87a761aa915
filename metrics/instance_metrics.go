package metrics

import (
	"time"

	"bidvault/build"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var startTimeUnix = time.Now().UTC().Unix()

var _ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "build_info",
	Help:      "Build-time const metadata for this instance.",
	ConstLabels: prometheus.Labels{
		"build_version": build.Version,
		"build_date":    build.Date,
	},
}, func() float64 { return 1.0 })

// InstanceInfo carries run-time configuration, set once at startup.
var InstanceInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "instance_info",
	Help:      "Run-time const metadata for this instance.",
}, []string{"network", "store", "minimum_bid_policy"})

var _ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "start_timestamp",
	Help:      "UNIX timestamp (UTC) when instance started.",
}, func() float64 { return float64(startTimeUnix) })

var _ = promauto.NewCounterFunc(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "up_seconds_total",
	Help:      "Total seconds this instance has been up, meant for use with `resets()`.",
}, func() float64 { return float64(time.Now().UTC().Unix() - startTimeUnix) })
