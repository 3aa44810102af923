package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assignmentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_assignment_outcomes_total",
			Help: "Auto-assignment attempts by outcome",
		},
		[]string{"outcome"},
	)

	commitConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_commit_conflicts_total",
			Help: "Assignment commits that lost an optimistic check and were retried",
		},
	)

	reassignments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_reassignments_total",
			Help: "Cases moved to a different officer",
		},
	)
)
