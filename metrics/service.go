package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ Metrics = (*Service)(nil)

// Service holds all the Prometheus collectors for the arena ledger.
type Service struct {
	MatchesCreated    prometheus.Counter
	MatchesSettled    *prometheus.CounterVec
	OperationErrors   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	EscrowedCents     prometheus.Counter
	PaidOutCents      prometheus.Counter
	DepositedCents    prometheus.Counter
	AuditRuns         prometheus.Counter
	AuditViolations   prometheus.Gauge
}

// NewMetricsHandler returns an http.Handler for the given Gatherer.
// If no gatherer is provided, it uses the default one.
func NewMetricsHandler(gatherer ...prometheus.Gatherer) http.Handler {
	gath := prometheus.DefaultGatherer
	if len(gatherer) > 0 {
		gath = gatherer[0]
	}
	return promhttp.HandlerFor(gath, promhttp.HandlerOpts{})
}

// NewService creates and registers the collectors.
// If no registerer is provided, it uses the default Prometheus registerer.
func NewService(registerer ...prometheus.Registerer) *Service {
	reg := prometheus.DefaultRegisterer
	if len(registerer) > 0 {
		reg = registerer[0]
	}

	s := &Service{
		MatchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_matches_created_total",
			Help: "Matches created with both entry fees escrowed.",
		}),
		MatchesSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_matches_settled_total",
			Help: "Matches settled, by outcome (won or forfeited).",
		}, []string{"outcome"}),
		OperationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_operation_errors_total",
			Help: "Failed ledger operations, by operation and error kind.",
		}, []string{"operation", "kind"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arena_operation_duration_seconds",
			Help:    "Duration of ledger operations including lock wait.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		EscrowedCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_escrowed_cents_total",
			Help: "Entry fees moved from player balances into match escrow, in cents.",
		}),
		PaidOutCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_paid_out_cents_total",
			Help: "Prizes credited to winners, in cents.",
		}),
		DepositedCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_deposited_cents_total",
			Help: "Deposits credited to player balances, in cents.",
		}),
		AuditRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_audit_runs_total",
			Help: "Consistency audits executed.",
		}),
		AuditViolations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arena_audit_violations",
			Help: "Invariant violations found by the most recent audit.",
		}),
	}

	reg.MustRegister(
		s.MatchesCreated,
		s.MatchesSettled,
		s.OperationErrors,
		s.OperationDuration,
		s.EscrowedCents,
		s.PaidOutCents,
		s.DepositedCents,
		s.AuditRuns,
		s.AuditViolations,
	)

	return s
}

func (s *Service) IncMatchesCreated() {
	s.MatchesCreated.Inc()
}

func (s *Service) IncMatchesSettled(outcome string) {
	s.MatchesSettled.WithLabelValues(outcome).Inc()
}

func (s *Service) IncOperationErrors(operation, kind string) {
	s.OperationErrors.WithLabelValues(operation, kind).Inc()
}

func (s *Service) ObserveOperation(operation string, d time.Duration) {
	s.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (s *Service) AddEscrowed(cents int64) {
	s.EscrowedCents.Add(float64(cents))
}

func (s *Service) AddPaidOut(cents int64) {
	s.PaidOutCents.Add(float64(cents))
}

func (s *Service) AddDeposited(cents int64) {
	s.DepositedCents.Add(float64(cents))
}

func (s *Service) IncAuditRuns() {
	s.AuditRuns.Inc()
}

func (s *Service) SetAuditViolations(n int) {
	s.AuditViolations.Set(float64(n))
}
