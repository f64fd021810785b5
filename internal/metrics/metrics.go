// Package metrics exposes tark's runtime counters as Prometheus
// collectors: agent loop steps and tool dispatches, policy engine
// decisions, and channel mirror turns. Nothing in the request path
// depends on this package being scraped — the counters are cheap
// increments, and a missing /metrics consumer loses observability,
// not correctness.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	AgentLoopSteps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tark",
		Subsystem: "agentloop",
		Name:      "steps_total",
		Help:      "Model-call/tool-call rounds executed by the agent loop, by outcome.",
	}, []string{"outcome"})

	ToolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tark",
		Subsystem: "agentloop",
		Name:      "tool_calls_total",
		Help:      "Tool calls dispatched by the agent loop, by tool name.",
	}, []string{"tool"})

	PolicyDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tark",
		Subsystem: "policy",
		Name:      "decisions_total",
		Help:      "Approval decisions made by the policy engine, by whether approval was required.",
	}, []string{"needs_approval"})

	ChannelTurns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tark",
		Subsystem: "channelmirror",
		Name:      "turns_total",
		Help:      "Agent loop turns driven by inbound channel webhooks, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(AgentLoopSteps, ToolCalls, PolicyDecisions, ChannelTurns)
}
