// Package worker implements the worker step from spec.md §4.2: an LLM call
// bound to a static tool registry and system prompt, which executes safe
// and moderate tool calls inline and defers the first sensitive call of
// each turn to human approval.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"graphcore/pkg/graphevent"
	"graphcore/pkg/graphmetrics"
	"graphcore/pkg/graphstate"
	"graphcore/pkg/llm"
	"graphcore/pkg/logx"
	"graphcore/pkg/tools"
	"graphcore/pkg/tools/shellsafety"
)

// Worker is one named node's static configuration: tool set, system
// prompt, and model binding. Workers differ only in these values, not in
// behavior — there is no worker subtype hierarchy.
type Worker struct {
	Name         string
	Description  string
	SystemPrompt string
	Tools        *tools.ToolProvider
	Client       llm.LLMClient
	Metrics      *graphmetrics.Recorder
	logger       *logx.Logger
}

// New builds a Worker, defaulting its logger to one tagged with the
// worker's name.
func New(name, description, systemPrompt string, provider *tools.ToolProvider, client llm.LLMClient) *Worker {
	return &Worker{
		Name:         name,
		Description:  description,
		SystemPrompt: systemPrompt,
		Tools:        provider,
		Client:       client,
		logger:       logx.NewLogger("worker:" + name),
	}
}

// Step runs one invocation of the worker against state s: a single LLM
// call, followed by inline execution of any safe/moderate tool calls it
// requested, stopping at the first sensitive call. It returns the state
// update and the events produced, in emission order.
func (w *Worker) Step(ctx context.Context, s graphstate.State) (graphstate.Update, []graphevent.Event, error) {
	var events []graphevent.Event
	events = append(events, graphevent.Event{Kind: graphevent.WorkerStarted, Worker: w.Name})

	req := llm.NewCompletionRequest(toLLMMessages(w.SystemPrompt, s.Messages), toLLMToolDefinitions(w.Tools.List()))
	resp, err := w.Client.Complete(ctx, req)
	if err != nil {
		w.logger.Error("model call failed: %v", err)
		return graphstate.Update{Error: graphstate.Some("The assigned worker could not reach its model.")}, events, nil
	}

	if len(resp.ToolCalls) == 0 {
		assistantMsg := graphstate.NewAssistantMessage(resp.Content, nil)
		summary := fmt.Sprintf("[%s] Processed request", w.Name)
		return graphstate.Update{
			Messages:     []graphstate.Message{assistantMsg},
			TaskComplete: graphstate.Some(true),
			TaskSummary:  graphstate.Some(summary),
		}, events, nil
	}

	calls := make([]llm.ToolCall, len(resp.ToolCalls))
	copy(calls, resp.ToolCalls)
	var toolCallSummaries []graphevent.ToolCallSummary
	for _, tc := range calls {
		toolCallSummaries = append(toolCallSummaries, graphevent.ToolCallSummary{Name: tc.Name, Args: tc.Parameters})
	}
	events = append(events, graphevent.Event{Kind: graphevent.ToolCall, Tools: toolCallSummaries})

	assistantToolCalls := make([]graphstate.ToolCall, len(calls))
	for i, tc := range calls {
		assistantToolCalls[i] = graphstate.ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Parameters}
	}
	assistantMsg := graphstate.NewAssistantMessage(resp.Content, assistantToolCalls)

	newMessages := []graphstate.Message{assistantMsg}
	var pending *graphstate.PendingAction
	var awaitingApproval bool
	var summaryParts []string

	for _, tc := range assistantMsg.ToolCalls {
		if awaitingApproval {
			result := graphstate.NewToolResultMessage(tc.ID, graphstate.PlaceholderQueued)
			newMessages = append(newMessages, result)
			events = append(events, graphevent.Event{Kind: graphevent.ToolResult, Result: graphstate.PlaceholderQueued})
			continue
		}

		sensitivity, classifyErr := w.Tools.Classify(tc.Name, tc.Args)
		if errors.Is(classifyErr, shellsafety.ErrBlocked) {
			content := fmt.Sprintf("Error: %v", classifyErr)
			w.observeToolCall(tc.Name, string(tools.Sensitive), 0, true)
			newMessages = append(newMessages, graphstate.NewToolResultMessage(tc.ID, content))
			events = append(events, graphevent.Event{Kind: graphevent.ToolResult, Result: content})
			summaryParts = append(summaryParts, summarizeCall(tc.Name, tc.Args, content))
			continue
		}
		if classifyErr != nil {
			sensitivity = tools.Sensitive
		}

		if toGraphSensitivity(sensitivity) == graphstate.Sensitive {
			description := graphstate.DescribeAction(tc.Name, tc.Args)
			pending = &graphstate.PendingAction{
				ID:          tc.ID,
				WorkerName:  w.Name,
				ToolName:    tc.Name,
				ToolArgs:    tc.Args,
				Sensitivity: graphstate.Sensitive,
				Description: description,
			}
			result := graphstate.NewToolResultMessage(tc.ID, graphstate.PlaceholderAwaitingApproval)
			newMessages = append(newMessages, result)
			events = append(events, graphevent.Event{Kind: graphevent.ToolResult, Result: graphstate.PlaceholderAwaitingApproval})
			events = append(events, graphevent.Event{Kind: graphevent.ApprovalRequired, Action: pending})
			awaitingApproval = true
			summaryParts = append(summaryParts, summarizeCall(tc.Name, tc.Args, "[awaiting approval]"))
			continue
		}

		start := time.Now()
		content := w.execTool(ctx, tc.Name, tc.Args)
		w.observeToolCall(tc.Name, string(sensitivity), time.Since(start), strings.HasPrefix(content, "Error: "))
		newMessages = append(newMessages, graphstate.NewToolResultMessage(tc.ID, content))
		events = append(events, graphevent.Event{Kind: graphevent.ToolResult, Result: content})
		summaryParts = append(summaryParts, summarizeCall(tc.Name, tc.Args, content))
	}

	update := graphstate.Update{
		Messages:         newMessages,
		TaskComplete:     graphstate.Some(false),
		TaskSummary:      graphstate.Some(fmt.Sprintf("[%s] %s", w.Name, strings.Join(summaryParts, "; "))),
		AwaitingApproval: graphstate.Some(awaitingApproval),
		PendingAction:    graphstate.Some(pending),
		CurrentWorker:    graphstate.Some(w.Name),
	}
	return update, events, nil
}

// execTool invokes a safe/moderate tool call inline. Unknown tool names
// and runtime failures both surface as an error tool-result rather than a
// crash, per spec.md §7.
func (w *Worker) execTool(ctx context.Context, name string, args map[string]any) string {
	tool, err := w.Tools.Get(name)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	result, err := tool.Exec(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return result.Content
}

// Resume re-invokes the original tool call behind a just-approved
// PendingAction and returns the real tool-result message, keyed by the
// same id as the placeholder it replaces.
func (w *Worker) Resume(ctx context.Context, action graphstate.PendingAction) graphstate.Message {
	start := time.Now()
	content := w.execTool(ctx, action.ToolName, action.ToolArgs)
	w.observeToolCall(action.ToolName, string(action.Sensitivity), time.Since(start), strings.HasPrefix(content, "Error: "))
	return graphstate.NewToolResultMessage(action.ID, content)
}

func (w *Worker) observeToolCall(tool, sensitivity string, duration time.Duration, failed bool) {
	if w.Metrics != nil {
		w.Metrics.ObserveToolCall(w.Name, tool, sensitivity, duration, failed)
	}
}

func summarizeCall(name string, args map[string]any, result string) string {
	return fmt.Sprintf("%s(%s) -> %s", name, truncateArgs(args), truncate(result, 120))
}

func truncateArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	var parts []string
	count := 0
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%s", k, truncate(fmt.Sprintf("%v", v), 40)))
		count++
		if count >= 2 {
			break
		}
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
