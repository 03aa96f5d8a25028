// Package metrics exposes Prometheus counters for audit activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gorla"

var (
	// trialsTotal counts Monte Carlo estimation trials.
	// Labels: audit_type, status (terminal status of the trial)
	trialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "estimate",
		Name:      "trials_total",
		Help:      "Total Monte Carlo estimation trials run",
	}, []string{"audit_type", "status"})

	// estimatedSampleSize is the distribution of per-contest estimates as a
	// fraction of the contest population.
	estimatedSampleSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "estimate",
		Name:      "sample_fraction",
		Help:      "Estimated sample size as a fraction of Nc",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0},
	})

	// roundsTotal counts completed audit rounds.
	// Labels: outcome (round_complete, audit_complete)
	roundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "rounds_total",
		Help:      "Total audit rounds completed",
	}, []string{"outcome"})

	// roundDuration is the wall time between starting a round and recording
	// its results, which includes retrieving the audited records.
	roundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "round_duration_seconds",
		Help:      "Time from round start to recorded results",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	// samplesSelected counts cards newly selected for audit
	samplesSelected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "samples_selected_total",
		Help:      "Total cards newly selected for audit",
	})

	// assertionStatus counts assertion results per round.
	// Labels: status
	assertionStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "assertion_results_total",
		Help:      "Assertion test results by status",
	}, []string{"status"})

	// contestFailures counts contest tasks that failed with an error
	contestFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "contest_failures_total",
		Help:      "Contest tasks that ended in an error",
	})
)

// RecordTrial counts one estimation trial
func RecordTrial(auditType, status string) {
	trialsTotal.WithLabelValues(auditType, status).Inc()
}

// RecordEstimate observes an estimated sample fraction
func RecordEstimate(fraction float64) {
	estimatedSampleSize.Observe(fraction)
}

// RecordRound counts a finished round
func RecordRound(auditComplete bool, newSamples int, elapsed time.Duration) {
	outcome := "round_complete"
	if auditComplete {
		outcome = "audit_complete"
	}
	roundsTotal.WithLabelValues(outcome).Inc()
	samplesSelected.Add(float64(newSamples))
	roundDuration.Observe(elapsed.Seconds())
}

// RecordAssertion counts one assertion result
func RecordAssertion(status string) {
	assertionStatus.WithLabelValues(status).Inc()
}

// RecordContestFailure counts a failed contest task
func RecordContestFailure() {
	contestFailures.Inc()
}
