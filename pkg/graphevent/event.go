// Package graphevent defines the semantic events the graph's stream emits,
// translated from raw state deltas into the vocabulary the orchestrator
// façade and its UI consume.
package graphevent

import "graphcore/pkg/graphstate"

// Kind names one of the event shapes in spec.md's external interface
// table.
type Kind string

const (
	WorkerStarted    Kind = "worker_started"
	Routing          Kind = "routing"
	ToolCall         Kind = "tool_call"
	ToolResult       Kind = "tool_result"
	ApprovalRequired Kind = "approval_required"
	Complete         Kind = "complete"
	Error            Kind = "error"
	Token            Kind = "token"
)

// ToolCallSummary is the {name, args} pair reported in a tool_call event.
type ToolCallSummary struct {
	Name string
	Args map[string]any
}

// Event is one entry in the graph's stream, as described in spec.md §6.
type Event struct {
	Kind     Kind
	Worker   string                    // worker_started, routing(implicit via Next)
	Next     string                    // routing
	Tools    []ToolCallSummary         // tool_call
	Result   string                    // tool_result
	Action   *graphstate.PendingAction // approval_required
	Response string                    // complete
	Message  string                    // error
	Token    string                    // token
}
