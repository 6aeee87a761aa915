package pgstore

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// stat is the subset of *pgxpool.Stat exported as metrics.
type stat interface {
	AcquireCount() int64
	AcquireDuration() time.Duration
	AcquiredConns() int32
	CanceledAcquireCount() int64
	ConstructingConns() int32
	EmptyAcquireCount() int64
	IdleConns() int32
	MaxConns() int32
	TotalConns() int32
}

type poolMetric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(stat) float64
}

type poolCollector struct {
	stat    func() stat
	metrics []poolMetric
}

var poolCollectorID uint64

func newPoolCollector(user, host, name string, fn func() stat) *poolCollector {
	constLabels := prometheus.Labels{
		"db_user":       user,
		"db_host":       host,
		"db_name":       name,
		"db_procpoolid": strconv.FormatUint(atomic.AddUint64(&poolCollectorID, 1), 10),
	}

	metric := func(name, help string, vt prometheus.ValueType, value func(stat) float64) poolMetric {
		return poolMetric{
			desc:      prometheus.NewDesc("bidvault_pgxpool_"+name, help, nil, constLabels),
			valueType: vt,
			value:     value,
		}
	}

	return &poolCollector{
		stat: fn,
		metrics: []poolMetric{
			metric("acquire_count_total", "Cumulative count of successful acquires from the pool.",
				prometheus.CounterValue, func(s stat) float64 { return float64(s.AcquireCount()) }),
			metric("acquire_duration_seconds_total", "Total duration of all successful acquires from the pool.",
				prometheus.CounterValue, func(s stat) float64 { return s.AcquireDuration().Seconds() }),
			metric("canceled_acquire_count_total", "Cumulative count of acquires canceled by a context.",
				prometheus.CounterValue, func(s stat) float64 { return float64(s.CanceledAcquireCount()) }),
			metric("empty_acquire_count_total", "Cumulative count of acquires that waited because the pool was empty.",
				prometheus.CounterValue, func(s stat) float64 { return float64(s.EmptyAcquireCount()) }),
			metric("acquired_conns", "Connections currently acquired.",
				prometheus.GaugeValue, func(s stat) float64 { return float64(s.AcquiredConns()) }),
			metric("constructing_conns", "Connections currently being constructed.",
				prometheus.GaugeValue, func(s stat) float64 { return float64(s.ConstructingConns()) }),
			metric("idle_conns", "Connections currently idle.",
				prometheus.GaugeValue, func(s stat) float64 { return float64(s.IdleConns()) }),
			metric("max_conns", "Maximum size of the pool.",
				prometheus.GaugeValue, func(s stat) float64 { return float64(s.MaxConns()) }),
			metric("total_conns", "Constructing, acquired and idle connections.",
				prometheus.GaugeValue, func(s stat) float64 { return float64(s.TotalConns()) }),
		},
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.valueType, m.value(s))
	}
}
