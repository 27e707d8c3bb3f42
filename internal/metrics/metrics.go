// Package metrics exposes prometheus instruments for the forwarding pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ForwardsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telescout_forwards_total",
		Help: "Messages forwarded to the destination",
	})
	DropsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telescout_drops_total",
		Help: "Matched messages dropped before forwarding",
	}, []string{"reason"})
	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telescout_historical_scan_duration_seconds",
		Help:    "Duration of the historical backfill phase",
		Buckets: prometheus.DefBuckets,
	})
)

// drop reasons
const (
	DropDuplicate   = "duplicate"
	DropRateLimited = "rate_limited"
	DropSpacing     = "spacing"
	DropSendError   = "send_error"
)

func init() {
	prometheus.MustRegister(ForwardsTotal, DropsTotal, ScanDuration)
}

// ObserveScanDuration records the time spent in the historical scan.
func ObserveScanDuration(start time.Time) {
	ScanDuration.Observe(time.Since(start).Seconds())
}
