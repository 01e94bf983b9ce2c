// Package metrics exposes the Prometheus collectors for the orchestration
// core. Everything is registered on the default registry and served by the
// daemon's metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaydesk_turns_total",
		Help: "Conversation turns processed, by selected handler type.",
	}, []string{"handler"})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relaydesk_turn_duration_seconds",
		Help:    "End-to-end turn processing latency.",
		Buckets: prometheus.DefBuckets,
	})

	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaydesk_escalations_total",
		Help: "Escalation transitions, by reason.",
	}, []string{"reason"})

	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaydesk_tool_invocations_total",
		Help: "Tool dispatches, by tool name and outcome.",
	}, []string{"tool", "outcome"})

	SaveConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relaydesk_save_conflicts_total",
		Help: "Optimistic-concurrency conflicts observed on state saves.",
	})

	ClassifierFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relaydesk_classifier_failures_total",
		Help: "Classification calls that failed or timed out.",
	})

	IdleSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaydesk_idle_sweeps_total",
		Help: "Idle-conversation sweep results.",
	}, []string{"result"})
)
