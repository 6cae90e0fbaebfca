package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"threatchain/internal/analyzer"
)

// Metrics holds the Prometheus collectors for analysis runs.
type Metrics struct {
	EventsTotal           prometheus.Counter
	ParseErrorsTotal      prometheus.Counter
	UnparseableTimestamps prometheus.Counter
	ChainsTotal           prometheus.Counter
	SummariesTotal        prometheus.Counter
	SurfacedTotal         *prometheus.CounterVec
	EdgesTotal            *prometheus.CounterVec
	WriteErrorsTotal      *prometheus.CounterVec
	AnalysisDuration      prometheus.Histogram
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		EventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "threatchain_events_analyzed_total",
			Help: "Total number of events passed to the correlation engine",
		}),
		ParseErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "threatchain_parse_errors_total",
			Help: "Total number of payloads that could not be decoded",
		}),
		UnparseableTimestamps: f.NewCounter(prometheus.CounterOpts{
			Name: "threatchain_unparseable_timestamps_total",
			Help: "Total number of events whose timestamp could not be parsed",
		}),
		ChainsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "threatchain_chains_total",
			Help: "Total number of attack chains assembled",
		}),
		SummariesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "threatchain_summary_entries_total",
			Help: "Total number of collapsed summary entries",
		}),
		SurfacedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "threatchain_surfaced_chains_total",
			Help: "Total number of chains above the suspicion threshold",
		}, []string{"severity"}),
		EdgesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "threatchain_correlation_edges_total",
			Help: "Total number of correlation edges by kind",
		}, []string{"kind"}),
		WriteErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "threatchain_write_errors_total",
			Help: "Total number of failed sink writes",
		}, []string{"sink"}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "threatchain_analysis_duration_seconds",
			Help:    "Duration of one analysis call in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveResult records the counters of one analysis result.
func (m *Metrics) ObserveResult(res *analyzer.Result) {
	if m == nil || res == nil {
		return
	}
	st := res.Stats
	m.EventsTotal.Add(float64(st.Events))
	m.UnparseableTimestamps.Add(float64(st.Unparseable))
	m.ChainsTotal.Add(float64(st.Chains))
	m.SummariesTotal.Add(float64(st.Summaries))
	for kind, n := range st.Edges {
		m.EdgesTotal.WithLabelValues(string(kind)).Add(float64(n))
	}
	for _, c := range res.SurfacedChains() {
		m.SurfacedTotal.WithLabelValues(c.Severity).Inc()
	}
	m.AnalysisDuration.Observe(st.Duration.Seconds())
}

// IncParseErrors counts undecodable payloads.
func (m *Metrics) IncParseErrors(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ParseErrorsTotal.Add(float64(n))
}

// IncWriteErrors counts a failed write to sink.
func (m *Metrics) IncWriteErrors(sink string) {
	if m == nil {
		return
	}
	m.WriteErrorsTotal.WithLabelValues(sink).Inc()
}

// Handler exposes the collectors of g over HTTP.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
