// Package router implements the supervisor from spec.md §4.1: the
// deterministic function that decides, once per graph step, whether to
// end the turn or hand control to a named worker. The decision itself
// comes from a forced structured-output tool call against the routing
// model; everything else in this package is ceiling checks and context
// window construction around that call.
package router

import (
	"context"
	"fmt"
	"strings"

	"graphcore/pkg/graphevent"
	"graphcore/pkg/graphmetrics"
	"graphcore/pkg/graphstate"
	"graphcore/pkg/llm"
	"graphcore/pkg/logx"
	"graphcore/pkg/utils"
)

const routingToolName = "route"

// WorkerInfo is the subset of a worker's configuration the supervisor's
// prompt needs to describe it.
type WorkerInfo struct {
	Name        string
	Description string
}

// Tunables bounds the context window the supervisor builds for the
// routing model, independent of the turn-level ceilings in graphstate.Tunables.
type Tunables struct {
	MaxMessages      int
	MaxToolOutputLen int
}

// DefaultTunables matches spec.md's named constants.
var DefaultTunables = Tunables{MaxMessages: 20, MaxToolOutputLen: 500}

// Supervisor holds the static configuration the routing decision is made
// against: the worker roster, the routing model, and the host/user facts
// baked into its system prompt.
type Supervisor struct {
	Workers      []WorkerInfo
	Client       llm.LLMClient
	HostPlatform string
	UserHome     string
	Tunables     Tunables
	Metrics      *graphmetrics.Recorder
	logger       *logx.Logger
}

// New builds a Supervisor.
func New(workers []WorkerInfo, client llm.LLMClient, hostPlatform, userHome string) *Supervisor {
	return &Supervisor{
		Workers:      workers,
		Client:       client,
		HostPlatform: hostPlatform,
		UserHome:     userHome,
		Tunables:     DefaultTunables,
		logger:       logx.NewLogger("router"),
	}
}

// Decide evaluates spec.md §4.1's rules in order against s and returns the
// resulting Update. Rules 1-2 (iteration ceiling, unrecovered error) short
// circuit before any model call; turnTunables supplies the iteration
// ceiling for rule 1, and s.Tunables bounds the context window passed to
// the model when a call is made.
func (s *Supervisor) Decide(ctx context.Context, state graphstate.State, turnTunables graphstate.Tunables) (graphstate.Update, []graphevent.Event, error) {
	if forceEnd, reason := graphstate.ShouldForceEnd(state, turnTunables); forceEnd {
		if s.Metrics != nil {
			s.Metrics.ObserveRouting(string(graphstate.End))
			if state.IterationCount >= turnTunables.MaxIterations {
				s.Metrics.IncIterationCeiling("")
			}
		}
		update := graphstate.Update{
			Next:          graphstate.Some(graphstate.End),
			FinalResponse: graphstate.Some(reason),
			CurrentWorker: graphstate.Some(""),
		}
		return update, []graphevent.Event{{Kind: graphevent.Routing, Next: string(graphstate.End)}}, nil
	}

	contextWindow := s.buildContextWindow(state)
	s.logger.Debug("routing context window: %d messages, ~%d tokens", len(contextWindow), tokenBudget(contextWindow))

	req := llm.CompletionRequest{
		Messages:    contextWindow,
		Tools:       []llm.ToolDefinition{s.routingToolDefinition()},
		ToolChoice:  llm.ToolChoiceNamed(routingToolName),
		MaxTokens:   llm.DefaultMaxTokens,
		Temperature: llm.TemperatureDeterministic,
	}

	resp, err := s.Client.Complete(ctx, req)
	if err != nil {
		s.logger.Error("routing model call failed: %v", err)
		s.observeRouting(string(graphstate.End))
		update := graphstate.Update{
			Next:          graphstate.Some(graphstate.End),
			FinalResponse: graphstate.Some("Something went wrong while processing your request."),
			CurrentWorker: graphstate.Some(""),
		}
		return update, []graphevent.Event{{Kind: graphevent.Routing, Next: string(graphstate.End)}}, nil
	}

	decision, ok := extractRoutingDecision(resp)
	if !ok {
		s.logger.Error("routing model returned no usable structured decision")
		s.observeRouting(string(graphstate.End))
		update := graphstate.Update{
			Next:          graphstate.Some(graphstate.End),
			FinalResponse: graphstate.Some("Something went wrong while processing your request."),
			CurrentWorker: graphstate.Some(""),
		}
		return update, []graphevent.Event{{Kind: graphevent.Routing, Next: string(graphstate.End)}}, nil
	}

	if decision.next == "FINISH" {
		finalResponse := decision.finalResponse
		if finalResponse == "" {
			finalResponse = "Task completed."
		}
		s.observeRouting(string(graphstate.End))
		update := graphstate.Update{
			Next:          graphstate.Some(graphstate.End),
			FinalResponse: graphstate.Some(finalResponse),
			CurrentWorker: graphstate.Some(""),
		}
		return update, []graphevent.Event{{Kind: graphevent.Routing, Next: string(graphstate.End)}}, nil
	}

	s.observeRouting(decision.next)
	update := graphstate.Update{
		Next:          graphstate.Some(graphstate.NodeName(decision.next)),
		FinalResponse: graphstate.Some(""),
		CurrentWorker: graphstate.Some(decision.next),
	}
	return update, []graphevent.Event{{Kind: graphevent.Routing, Next: decision.next}}, nil
}

func (s *Supervisor) observeRouting(next string) {
	if s.Metrics != nil {
		s.Metrics.ObserveRouting(next)
	}
}

type routingDecision struct {
	reasoning     string
	next          string
	finalResponse string
}

// extractRoutingDecision reads the forced tool call's arguments back out.
// A model that ignores ToolChoiceNamed and answers in plain text instead
// is treated as a structured-output failure (rule 6), not parsed as a
// free-form fallback — spec.md's design notes warn against leniently
// reinterpreting an LLM's refusal to follow the schema.
func extractRoutingDecision(resp llm.CompletionResponse) (routingDecision, bool) {
	for _, tc := range resp.ToolCalls {
		if tc.Name != routingToolName {
			continue
		}
		next, _ := tc.Parameters["next"].(string)
		if next == "" {
			return routingDecision{}, false
		}
		reasoning, _ := tc.Parameters["reasoning"].(string)
		finalResponse, _ := tc.Parameters["finalResponse"].(string)
		return routingDecision{reasoning: reasoning, next: next, finalResponse: finalResponse}, true
	}
	return routingDecision{}, false
}

func (s *Supervisor) routingToolDefinition() llm.ToolDefinition {
	names := make([]string, 0, len(s.Workers)+1)
	for _, w := range s.Workers {
		names = append(names, w.Name)
	}
	names = append(names, "FINISH")

	return llm.ToolDefinition{
		Name:        routingToolName,
		Description: "Select the next worker to act, or FINISH if the user's request is satisfied.",
		InputSchema: llm.InputSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"reasoning": {Type: "string", Description: "Brief justification for the decision."},
				"next":      {Type: "string", Description: "The worker to route to, or FINISH.", Enum: names},
				"finalResponse": {
					Type:        "string",
					Description: "The response to give the user. Required when next is FINISH.",
				},
			},
			Required: []string{"reasoning", "next"},
		},
	}
}

// buildContextWindow assembles the supervisor's view of the conversation
// per spec.md §4.1: a system prompt describing the workers and host, an
// optional taskSummary as a synthetic user turn, the last MaxMessages
// messages with long tool-results truncated, and a trailing directive.
func (s *Supervisor) buildContextWindow(state graphstate.State) []llm.CompletionMessage {
	out := []llm.CompletionMessage{llm.NewSystemMessage(s.systemPrompt())}

	if state.TaskSummary != "" {
		out = append(out, llm.NewUserMessage(fmt.Sprintf("Summary of the most recent worker action: %s", state.TaskSummary)))
	}

	pruned := pruneMessages(state.Messages, s.Tunables.MaxMessages)
	for _, m := range pruned {
		out = append(out, s.toCompletionMessage(m))
	}

	out = append(out, llm.NewUserMessage("Decide the next action, or FINISH if the user's request is satisfied."))
	return out
}

func (s *Supervisor) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are the supervisor of a team of specialized workers. ")
	fmt.Fprintf(&b, "Host platform: %s. User home directory: %s.\n\n", s.HostPlatform, s.UserHome)
	b.WriteString("Available workers:\n")
	for _, w := range s.Workers {
		fmt.Fprintf(&b, "- %s: %s\n", w.Name, w.Description)
	}
	b.WriteString("\nRoute to exactly one worker per step, or FINISH once the user's request is satisfied.")
	return b.String()
}

func (s *Supervisor) toCompletionMessage(m graphstate.Message) llm.CompletionMessage {
	switch m.Role {
	case graphstate.RoleUser:
		return llm.NewUserMessage(m.Content)
	case graphstate.RoleAssistant:
		return llm.NewAssistantMessage(m.Content)
	case graphstate.RoleTool:
		content := truncateForSupervisor(m.Content, s.Tunables.MaxToolOutputLen)
		return llm.CompletionMessage{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("[tool result] %s", content),
		}
	default:
		return llm.NewUserMessage(m.Content)
	}
}

// pruneMessages returns at most max of the most recent messages.
func pruneMessages(messages []graphstate.Message, max int) []graphstate.Message {
	if len(messages) <= max {
		return messages
	}
	return messages[len(messages)-max:]
}

// truncateForSupervisor implements spec.md §4.1's tool-message truncation
// rule: content over maxLen characters is cut to its prefix plus a marker,
// for the supervisor's view only — the underlying message is untouched.
func truncateForSupervisor(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "… [truncated]"
}

// tokenBudget estimates the context window's size in tokens, available
// for callers that want to log or assert on the window's size before
// spending a request on it.
func tokenBudget(messages []llm.CompletionMessage) int {
	counter, err := utils.NewTokenCounter("gpt-4")
	if err != nil {
		return 0
	}
	total := 0
	for _, m := range messages {
		total += counter.CountTokens(m.Content)
	}
	return total
}
