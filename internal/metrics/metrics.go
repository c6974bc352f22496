package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	DigestsPrepared   prometheus.Counter
	DigestsSent       prometheus.Counter
	DigestsFailed     prometheus.Counter
	EmptySelections   prometheus.Counter
	RenderFailures    prometheus.Counter
	Notifications     *prometheus.CounterVec
	DispatchFailures  *prometheus.CounterVec
	MailingsIngested  prometheus.Counter
	SelectionDuration prometheus.Histogram
	LastCandidates    prometheus.Gauge
}

// NewMetrics creates the digest metrics and registers them with reg.
// A nil registerer falls back to the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		DigestsPrepared: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_digest_prepared_total",
			Help: "Total number of digests created from a candidate selection",
		}),
		DigestsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_digest_sent_total",
			Help: "Total number of digests dispatched to their full audience",
		}),
		DigestsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_digest_failed_total",
			Help: "Total number of digests moved to the failed state",
		}),
		EmptySelections: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_digest_empty_selections_total",
			Help: "Total number of selection runs that found no content",
		}),
		RenderFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_digest_render_failures_total",
			Help: "Total number of content items that failed to render",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_digest_notifications_total",
			Help: "Total number of successful dispatches by kind (preview, test, send)",
		}, []string{"kind"}),
		DispatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_digest_dispatch_failures_total",
			Help: "Total number of failed dispatches by kind (preview, test, send)",
		}, []string{"kind"}),
		MailingsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_digest_mailings_ingested_total",
			Help: "Total number of mailing records appended to the mailing log",
		}),
		SelectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mail_digest_selection_duration_seconds",
			Help:    "Time spent selecting digest candidates",
			Buckets: prometheus.DefBuckets,
		}),
		LastCandidates: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mail_digest_last_candidates",
			Help: "Number of candidates found by the most recent selection run",
		}),
	}
}
