// Package metrics holds the Prometheus collectors for match coordination.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rps"

var (
	Joins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "match_joins_total",
		Help:      "Join attempts by result (seated, rejoined, rejected).",
	}, []string{"result"})

	MatchesReady = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_ready_total",
		Help:      "Matches whose two seats were filled.",
	})

	MovesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "moves_submitted_total",
		Help:      "Moves recorded against a live match.",
	})

	MatchesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_resolved_total",
		Help:      "Resolved matches by outcome.",
	}, []string{"outcome"})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_total",
		Help:      "Settlement attempts by result (committed, failed).",
	}, []string{"result"})

	MatchesAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_abandoned_total",
		Help:      "Matches evicted by the abandonment policy.",
	})

	ActiveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_matches",
		Help:      "In-flight match states held in memory.",
	})

	UnsettledMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "unsettled_matches",
		Help:      "Resolved matches waiting for a settlement retry.",
	})
)
