package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// matchesFormed counts created match rows, split by whether the pairing
	// came from the normal eligibility path or the forced escalation path.
	matchesFormed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matches_formed_total",
			Help: "Total number of matches created.",
		},
		[]string{"forced"},
	)

	// icebreakerFallbacks counts matches that shipped with the fixed opener
	// because icebreaker generation failed.
	icebreakerFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "icebreaker_fallbacks_total",
			Help: "Total number of matches that used the fallback icebreaker.",
		},
	)

	// aiReplies counts automated reply outcomes: "sent", "skipped" (the
	// conversation moved on before the check), or "failed".
	aiReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_replies_total",
			Help: "Total number of automated reply cycles by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(matchesFormed, icebreakerFallbacks, aiReplies)
}
