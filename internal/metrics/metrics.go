package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the narration pipeline counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Chunks          prometheus.Counter
	Fragments       prometheus.Counter
	Skipped         prometheus.Counter
	Rejected        prometheus.Counter
	TransportFaults prometheus.Counter
	FailedSplits    prometheus.Counter
	Recoveries      prometheus.Counter
	Merges          prometheus.Counter
	MergeFailures   prometheus.Counter
	Documents       prometheus.Counter

	ConversionDuration prometheus.Histogram
}

// New registers all metrics with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Chunks: f.NewCounter(prometheus.CounterOpts{
			Name: "docnarrate_chunks_total",
			Help: "Chunks produced by the chunker",
		}),
		Fragments: f.NewCounter(prometheus.CounterOpts{
			Name: "docnarrate_fragments_written_total",
			Help: "Audio fragments written to disk",
		}),
		Skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "docnarrate_chunks_skipped_total",
			Help: "Chunks skipped because of StartFromChunk",
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "docnarrate_speech_rejected_total",
			Help: "Speech requests answered with a non-success status",
		}),
		TransportFaults: f.NewCounter(prometheus.CounterOpts{
			Name: "docnarrate_speech_transport_faults_total",
			Help: "Speech requests that failed to complete",
		}),
		FailedSplits: f.NewCounter(prometheus.CounterOpts{
			Name: "docnarrate_failed_splits_total",
			Help: "Bisected halves that still failed and were dropped",
		}),
		Recoveries: f.NewCounter(prometheus.CounterOpts{
			Name: "docnarrate_recoveries_total",
			Help: "Speech service recovery attempts",
		}),
		Merges: f.NewCounter(prometheus.CounterOpts{
			Name: "docnarrate_merges_total",
			Help: "Documents whose fragments were merged",
		}),
		MergeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "docnarrate_merge_failures_total",
			Help: "Merges aborted by an I/O fault",
		}),
		Documents: f.NewCounter(prometheus.CounterOpts{
			Name: "docnarrate_documents_total",
			Help: "Documents processed",
		}),
		ConversionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docnarrate_conversion_duration_seconds",
			Help:    "Latency of a single speech request",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12), // 250ms to ~8.5 minutes
		}),
	}
}

func (m *Metrics) Chunk() {
	if m != nil {
		m.Chunks.Inc()
	}
}

func (m *Metrics) Fragment() {
	if m != nil {
		m.Fragments.Inc()
	}
}

func (m *Metrics) Skip() {
	if m != nil {
		m.Skipped.Inc()
	}
}

func (m *Metrics) Rejection() {
	if m != nil {
		m.Rejected.Inc()
	}
}

func (m *Metrics) TransportFault() {
	if m != nil {
		m.TransportFaults.Inc()
	}
}

func (m *Metrics) FailedSplit() {
	if m != nil {
		m.FailedSplits.Inc()
	}
}

func (m *Metrics) Recovery() {
	if m != nil {
		m.Recoveries.Inc()
	}
}

func (m *Metrics) Merge() {
	if m != nil {
		m.Merges.Inc()
	}
}

func (m *Metrics) MergeFailure() {
	if m != nil {
		m.MergeFailures.Inc()
	}
}

func (m *Metrics) Document() {
	if m != nil {
		m.Documents.Inc()
	}
}

// ObserveConversion records the latency of one speech request.
func (m *Metrics) ObserveConversion(d time.Duration) {
	if m == nil {
		return
	}
	m.ConversionDuration.Observe(d.Seconds())
}
