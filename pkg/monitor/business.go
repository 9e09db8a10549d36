package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MinterMetrics tracks the withdrawal pipeline.
type MinterMetrics struct {
	RoundsTotal            *prometheus.CounterVec
	StageDuration          *prometheus.HistogramVec
	ProviderErrorsTotal    *prometheus.CounterVec
	EventsAppendedTotal    *prometheus.CounterVec
	WithdrawalsByStage     *prometheus.GaugeVec
	ReimbursementFailures  prometheus.Counter
	InvariantViolations    *prometheus.CounterVec
	WithdrawalSuccessTotal prometheus.Counter
}

// Global Metrics Instance
var Minter *MinterMetrics

// InitMinterMetrics registers the pipeline metrics on the default registry.
func InitMinterMetrics() {
	Minter = &MinterMetrics{
		RoundsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minter_rounds_total",
			Help: "Pipeline rounds by task and outcome",
		}, []string{"task", "outcome"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minter_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		ProviderErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minter_provider_errors_total",
			Help: "Failed JSON-RPC calls per provider and method",
		}, []string{"provider", "method"}),
		EventsAppendedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minter_events_appended_total",
			Help: "Events appended to the durable log",
		}, []string{"type"}),
		WithdrawalsByStage: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "minter_withdrawals",
			Help: "Withdrawals currently in each collection",
		}, []string{"stage"}),
		ReimbursementFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "minter_reimbursement_failures_total",
			Help: "Failed ledger transfers for reimbursements",
		}),
		InvariantViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minter_invariant_violations_total",
			Help: "Rounds aborted because of an invariant violation",
		}, []string{"stage"}),
		WithdrawalSuccessTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "minter_withdrawals_finalized_total",
			Help: "Withdrawals finalized on chain",
		}),
	}
}

func ObserveProviderError(provider, method string) {
	if Minter == nil {
		return
	}
	Minter.ProviderErrorsTotal.WithLabelValues(provider, method).Inc()
}

func ObserveRound(task, outcome string) {
	if Minter == nil {
		return
	}
	Minter.RoundsTotal.WithLabelValues(task, outcome).Inc()
}

func ObserveStage(stage string, seconds float64) {
	if Minter == nil {
		return
	}
	Minter.StageDuration.WithLabelValues(stage).Observe(seconds)
}

func ObserveEvent(eventType string) {
	if Minter == nil {
		return
	}
	Minter.EventsAppendedTotal.WithLabelValues(eventType).Inc()
}

func ObserveInvariantViolation(stage string) {
	if Minter == nil {
		return
	}
	Minter.InvariantViolations.WithLabelValues(stage).Inc()
}

func ObserveReimbursementFailure() {
	if Minter == nil {
		return
	}
	Minter.ReimbursementFailures.Inc()
}

func ObserveFinalized(n int) {
	if Minter == nil {
		return
	}
	Minter.WithdrawalSuccessTotal.Add(float64(n))
}

// SetCollectionSizes publishes the size of each state collection.
func SetCollectionSizes(sizes map[string]int) {
	if Minter == nil {
		return
	}
	for stage, n := range sizes {
		Minter.WithdrawalsByStage.WithLabelValues(stage).Set(float64(n))
	}
}
