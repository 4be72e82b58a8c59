package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics. Registered on the default registry and served by the
// telemetry listener.
var (
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentflow_runs_started_total",
		Help: "Workflow runs started",
	})

	RunsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentflow_runs_completed_total",
		Help: "Workflow runs that reached an end node",
	})

	RunsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentflow_runs_failed_total",
		Help: "Workflow runs that failed",
	})

	NodesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentflow_nodes_executed_total",
		Help: "Node executions by type and outcome",
	}, []string{"node_type", "status"})

	NodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentflow_node_duration_seconds",
		Help:    "Node execution duration by type",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"node_type"})

	ApprovalsSuspended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentflow_approvals_suspended_total",
		Help: "Runs suspended waiting for a human decision",
	})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentflow_llm_requests_total",
		Help: "Chat completion requests by outcome",
	}, []string{"status"})

	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentflow_tool_invocations_total",
		Help: "Agent tool invocations by outcome",
	}, []string{"status"})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentflow_websocket_clients",
		Help: "Connected WebSocket subscribers",
	})

	EventsRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentflow_events_relayed_total",
		Help: "Events relayed from pub/sub to WebSocket clients",
	})
)
