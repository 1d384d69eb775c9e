// Package metrics provides Prometheus instrumentation for the pipeline.
//
// A batch run has no scrape endpoint, so the registry is gathered at the end
// of the run via Snapshot and written to the log instead of being served.
package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default histogram buckets for stage durations, in seconds.
var defaultStageBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60}

// Manager owns every metric the pipeline records.
type Manager struct {
	namespace    string
	stageBuckets []float64
	registry     *prometheus.Registry

	// Acquisition and cleaning volume.
	rowsFetched      prometheus.Counter
	rowsKept         prometheus.Counter
	rowsDropped      *prometheus.CounterVec
	valuesImputed    *prometheus.CounterVec
	duplicatesMerged prometheus.Counter

	// Quality posture.
	checksEvaluated *prometheus.CounterVec

	// Metric engine output.
	metricRows          prometheus.Counter
	populationFallbacks prometheus.Counter

	// Stage timings.
	stageDuration *prometheus.HistogramVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithStageBuckets overrides the stage duration histogram buckets.
func WithStageBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.stageBuckets = buckets
		}
	}
}

// WithRegistry sets a custom registry, mainly for tests.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(m *Manager) {
		if reg != nil {
			m.registry = reg
		}
	}
}

// NewManager builds a Manager and registers all pipeline metrics.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		namespace:    "covidpipe",
		stageBuckets: defaultStageBuckets,
		registry:     prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.rowsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rows_fetched_total",
		Help:      "Raw dataset rows read from the source.",
	})
	m.rowsKept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rows_kept_total",
		Help:      "Rows surviving cleaning and projection.",
	})
	m.rowsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rows_dropped_total",
		Help:      "Rows dropped during cleaning, by reason.",
	}, []string{"reason"})
	m.valuesImputed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "values_imputed_total",
		Help:      "Missing numeric values imputed to zero, by column.",
	}, []string{"column"})
	m.duplicatesMerged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "duplicates_merged_total",
		Help:      "Duplicate (country,date) rows collapsed keep-last.",
	})
	m.checksEvaluated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "checks_evaluated_total",
		Help:      "Quality checks evaluated, by resulting status.",
	}, []string{"status"})
	m.metricRows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "metric_rows_total",
		Help:      "Metric rows produced by the engine.",
	})
	m.populationFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "population_fallbacks_total",
		Help:      "Countries whose population fell back to the default constant.",
	})
	m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "stage_duration_seconds",
		Help:      "Wall time of each pipeline stage.",
		Buckets:   m.stageBuckets,
	}, []string{"stage"})

	collectors := []prometheus.Collector{
		m.rowsFetched, m.rowsKept, m.rowsDropped, m.valuesImputed,
		m.duplicatesMerged, m.checksEvaluated, m.metricRows,
		m.populationFallbacks, m.stageDuration,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegister, err)
		}
	}
	return m, nil
}

// RowsFetched adds to the raw row counter.
func (m *Manager) RowsFetched(n int) { m.rowsFetched.Add(float64(n)) }

// RowsKept adds to the cleaned row counter.
func (m *Manager) RowsKept(n int) { m.rowsKept.Add(float64(n)) }

// RowsDropped adds dropped rows under the given reason.
func (m *Manager) RowsDropped(reason string, n int) {
	m.rowsDropped.WithLabelValues(reason).Add(float64(n))
}

// ValuesImputed adds zero-imputed values for a column.
func (m *Manager) ValuesImputed(column string, n int) {
	m.valuesImputed.WithLabelValues(column).Add(float64(n))
}

// DuplicatesMerged adds collapsed duplicate rows.
func (m *Manager) DuplicatesMerged(n int) { m.duplicatesMerged.Add(float64(n)) }

// CheckEvaluated counts one check outcome.
func (m *Manager) CheckEvaluated(status string) {
	m.checksEvaluated.WithLabelValues(status).Inc()
}

// MetricRows adds produced metric rows.
func (m *Manager) MetricRows(n int) { m.metricRows.Add(float64(n)) }

// PopulationFallback counts one population fallback.
func (m *Manager) PopulationFallback() { m.populationFallbacks.Inc() }

// ObserveStage records the duration of one pipeline stage.
func (m *Manager) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Snapshot gathers the registry into a sorted, loggable map of
// "metric{labels}" to value. Histograms report their sample count and sum.
func (m *Manager) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGather, err)
	}
	out := make(map[string]float64)
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			key := fam.GetName()
			labels := metric.GetLabel()
			if len(labels) > 0 {
				parts := make([]string, 0, len(labels))
				for _, l := range labels {
					parts = append(parts, l.GetName()+"="+l.GetValue())
				}
				sort.Strings(parts)
				key += "{"
				for i, p := range parts {
					if i > 0 {
						key += ","
					}
					key += p
				}
				key += "}"
			}
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[key+"_count"] = float64(metric.GetHistogram().GetSampleCount())
				out[key+"_sum"] = metric.GetHistogram().GetSampleSum()
			}
		}
	}
	return out, nil
}
