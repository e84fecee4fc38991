package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	gatherer prometheus.Gatherer

	fetches     *prometheus.CounterVec
	fetchTime   *prometheus.HistogramVec
	gateWait    prometheus.Histogram
	rowsWritten *prometheus.CounterVec
	skips       *prometheus.CounterVec
	strategies  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

type Option func(*options)

type options struct {
	reg      prometheus.Registerer
	gatherer prometheus.Gatherer
}

// WithRegistry records into reg instead of the default registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.reg = reg
		o.gatherer = reg
	}
}

// New creates a new Prometheus metrics recorder.
func New(opts ...Option) *Recorder {
	o := &options{reg: prometheus.DefaultRegisterer, gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(o)
	}
	f := promauto.With(o.reg)

	return &Recorder{
		gatherer: o.gatherer,
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurelius_fetch_requests_total",
				Help: "Provider requests by endpoint and outcome",
			},
			[]string{"endpoint", "result"},
		),
		fetchTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aurelius_fetch_duration_seconds",
				Help:    "Provider request latency excluding rate-limit wait",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		gateWait: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aurelius_rate_gate_wait_seconds",
				Help:    "Time spent waiting for the provider rate-limit token",
				Buckets: []float64{0.01, 0.1, 1, 5, 10, 15, 30, 60},
			},
		),
		rowsWritten: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurelius_rows_written_total",
				Help: "Rows inserted (duplicates ignored) by database and table",
			},
			[]string{"database", "table"},
		),
		skips: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurelius_units_skipped_total",
				Help: "Ingestion units or records skipped by reason",
			},
			[]string{"reason"},
		),
		strategies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurelius_strategy_runs_total",
				Help: "Backtest (table, strategy) runs by outcome",
			},
			[]string{"strategy", "result"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aurelius_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordFetch records one provider request outcome.
func (r *Recorder) RecordFetch(endpoint, result string, seconds float64) {
	r.fetches.WithLabelValues(endpoint, result).Inc()
	r.fetchTime.WithLabelValues(endpoint).Observe(seconds)
}

// RecordGateWait records time blocked on the rate-limit gate.
func (r *Recorder) RecordGateWait(seconds float64) {
	r.gateWait.Observe(seconds)
}

// RecordRowsWritten records inserted rows.
func (r *Recorder) RecordRowsWritten(database, table string, n int64) {
	r.rowsWritten.WithLabelValues(database, table).Add(float64(n))
}

// RecordSkip records a skipped unit or record.
func (r *Recorder) RecordSkip(reason string) {
	r.skips.WithLabelValues(reason).Inc()
}

// RecordStrategyRun records a backtest outcome.
func (r *Recorder) RecordStrategyRun(strategy, result string) {
	r.strategies.WithLabelValues(strategy, result).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Push sends the gathered metrics to a Pushgateway under job.
func (r *Recorder) Push(url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.gatherer).Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
