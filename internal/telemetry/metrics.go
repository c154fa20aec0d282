package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the pipeline's Prometheus instruments, grounded in
// chidi150c-coinbase's and sawpanic-cryptorun's shared use of
// prometheus/client_golang. GateVerdicts, RiskDenials, OpenPositions and
// SnapshotFailures are updated by the pipeline; SignalsDropped and
// ScoreTimeouts are registered but nothing increments them.
type Metrics struct {
	SignalsDropped   *prometheus.CounterVec
	GateVerdicts     *prometheus.CounterVec
	RiskDenials      *prometheus.CounterVec
	OpenPositions    prometheus.Gauge
	SnapshotFailures *prometheus.CounterVec
	ScoreTimeouts    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignalsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_signals_dropped_total",
			Help: "Raw signals dropped before scoring, by reason.",
		}, []string{"reason"}),
		GateVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_gate_verdicts_total",
			Help: "Gate verdicts by gate name and verdict.",
		}, []string{"gate", "verdict"}),
		RiskDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_risk_denials_total",
			Help: "Risk manager denials by rule.",
		}, []string{"rule"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_open_positions",
			Help: "Current count of open+breakeven positions.",
		}),
		SnapshotFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_snapshot_failures_total",
			Help: "Chain snapshot field fetch failures by provider.",
		}, []string{"provider"}),
		ScoreTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_score_timeouts_total",
			Help: "Candidates dropped for exceeding SCORE_TIMEOUT.",
		}),
	}
	reg.MustRegister(m.SignalsDropped, m.GateVerdicts, m.RiskDenials, m.OpenPositions, m.SnapshotFailures, m.ScoreTimeouts)
	return m
}

// SnapshotFailure satisfies snapshot.MetricsSink so the Chain Snapshot
// Service can report failures without importing Prometheus directly.
func (m *Metrics) SnapshotFailure(provider string) {
	m.SnapshotFailures.WithLabelValues(provider).Inc()
}
