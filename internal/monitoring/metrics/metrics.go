// Package metrics exposes per-target download outcomes to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vietddude/pkgwatch/internal/core/domain"
	"github.com/vietddude/pkgwatch/internal/core/sla"
)

// Sink publishes cycle results. It only reads recorder snapshots.
type Sink struct {
	downloadSuccess *prometheus.CounterVec
	downloadFailure *prometheus.CounterVec
	requestSeconds  *prometheus.SummaryVec
	upStatus        *prometheus.GaugeVec
	ratio           *prometheus.GaugeVec
}

// NewSink registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewSink(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)

	return &Sink{
		// DownloadSuccess counts downloads whose digest verified
		downloadSuccess: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "download_success_total",
				Help: "Number of successful package downloads",
			},
			[]string{"target"},
		),
		// DownloadFailure counts fetch errors and digest mismatches
		downloadFailure: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "download_failure_total",
				Help: "Number of failed package downloads",
			},
			[]string{"target", "reason"},
		),
		requestSeconds: factory.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "request_processing_seconds",
				Help:       "Time spent downloading and verifying a package",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
				MaxAge:     10 * time.Minute,
			},
			[]string{"target"},
		),
		upStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "up_status",
				Help: "1 if the rolling success ratio is above the SLA threshold",
			},
			[]string{"target"},
		),
		ratio: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "availability_ratio",
				Help: "Success ratio over the rolling window",
			},
			[]string{"target"},
		),
	}
}

// Init creates zero valued series for a target so dashboards see it
// before its first cycle completes.
func (s *Sink) Init(target string) {
	s.downloadSuccess.WithLabelValues(target)
	s.downloadFailure.WithLabelValues(target, string(domain.ReasonFetchError))
	s.downloadFailure.WithLabelValues(target, string(domain.ReasonDigestMismatch))
	s.upStatus.WithLabelValues(target).Set(0)
}

// Publish exports one outcome and the snapshot taken right after recording it.
func (s *Sink) Publish(o domain.Outcome, snap sla.Snapshot) {
	if o.Success {
		s.downloadSuccess.WithLabelValues(o.Target).Inc()
	} else {
		s.downloadFailure.WithLabelValues(o.Target, string(o.Reason)).Inc()
	}
	s.requestSeconds.WithLabelValues(o.Target).Observe(o.Latency.Seconds())

	up := 0.0
	if snap.Up {
		up = 1
	}
	s.upStatus.WithLabelValues(o.Target).Set(up)
	if snap.HasRatio {
		s.ratio.WithLabelValues(o.Target).Set(snap.Ratio)
	}
}
