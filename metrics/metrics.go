// Package metrics exposes consensus round timing and host resource
// gauges to prometheus, so an operator scraping the status API can
// see both how this shard's instances are performing and how loaded
// the machine they're running on is.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of collectors one process registers once. PollHost
// updates the host gauges; nothing in the consensus or host packages
// updates the round collectors.
type Metrics struct {
	Registry prometheus.Registerer

	RoundDuration  prometheus.Histogram
	RoundsStarted  prometheus.Counter
	RoundsFinished prometheus.Counter
	RoundsFailed   prometheus.Counter
	Participation  prometheus.Gauge
	SubsetsRaced   prometheus.Histogram

	HostCPUPercent   prometheus.Gauge
	HostMemUsedBytes prometheus.Gauge
	HostLoad1        prometheus.Gauge
}

// New builds and registers every collector against reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Registry: reg,
		RoundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shardconsensus",
			Name:      "round_duration_seconds",
			Help:      "Wall-clock duration of a finished consensus instance, ANNOUNCE to FINALCOLLECTIVESIG.",
			Buckets:   prometheus.DefBuckets,
		}),
		RoundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shardconsensus",
			Name:      "rounds_started_total",
			Help:      "Consensus instances started as leader.",
		}),
		RoundsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shardconsensus",
			Name:      "rounds_finished_total",
			Help:      "Consensus instances that reached a collective signature.",
		}),
		RoundsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shardconsensus",
			Name:      "rounds_failed_total",
			Help:      "Consensus instances that errored out (quorum never reached, or every subset failed).",
		}),
		Participation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shardconsensus",
			Name:      "last_round_participation_ratio",
			Help:      "Fraction of the committee that participated in the most recently finished round.",
		}),
		SubsetsRaced: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shardconsensus",
			Name:      "subsets_raced",
			Help:      "Number of racing subsets a leader tried before one reached quorum.",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}),
		HostCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shardconsensus",
			Name:      "host_cpu_percent",
			Help:      "Total CPU utilization of the host this process runs on.",
		}),
		HostMemUsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shardconsensus",
			Name:      "host_mem_used_bytes",
			Help:      "Resident memory in use on the host this process runs on.",
		}),
		HostLoad1: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shardconsensus",
			Name:      "host_load1",
			Help:      "1-minute host load average.",
		}),
	}

	collectors := []prometheus.Collector{
		m.RoundDuration, m.RoundsStarted, m.RoundsFinished, m.RoundsFailed,
		m.Participation, m.SubsetsRaced,
		m.HostCPUPercent, m.HostMemUsedBytes, m.HostLoad1,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
