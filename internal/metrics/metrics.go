// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CommentsSubmitted counts admitted comment submissions, labeled
	// by origin (human/ai).
	CommentsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livingdoc_comments_submitted_total",
			Help: "Number of comments admitted through the workflow.",
		},
		[]string{"origin"},
	)

	// RateLimitRejections counts submissions refused by a limit.
	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livingdoc_rate_limit_rejections_total",
			Help: "Number of submissions refused by a rate limit.",
		},
		[]string{"rule"},
	)

	// DOIRequests counts registry calls by operation and result.
	DOIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livingdoc_doi_requests_total",
			Help: "Number of DOI registry calls.",
		},
		[]string{"operation", "result"},
	)

	// SuggestionRuns counts generation runs by result.
	SuggestionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livingdoc_suggestion_runs_total",
			Help: "Number of AI suggestion generation runs.",
		},
		[]string{"result"},
	)

	// StateConflicts counts lost optimistic-concurrency races.
	StateConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livingdoc_state_conflicts_total",
			Help: "Number of operations that lost a concurrent race.",
		},
		[]string{"entity"},
	)
)

// Register installs all collectors on the default registry. Call once
// from main.
func Register() {
	prometheus.MustRegister(
		CommentsSubmitted,
		RateLimitRejections,
		DOIRequests,
		SuggestionRuns,
		StateConflicts,
	)
}
