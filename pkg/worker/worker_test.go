package worker_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	execpkg "graphcore/pkg/exec"
	"graphcore/pkg/graphevent"
	"graphcore/pkg/graphstate"
	"graphcore/pkg/llm"
	"graphcore/pkg/tools"
	"graphcore/pkg/worker"
)

type mockLLMClient struct {
	responses []llm.CompletionResponse
	callCount int
}

func (m *mockLLMClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	if m.callCount >= len(m.responses) {
		return llm.CompletionResponse{}, errors.New("no more mock responses")
	}
	resp := m.responses[m.callCount]
	m.callCount++
	return resp, nil
}

func (m *mockLLMClient) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (m *mockLLMClient) GetModelName() string { return "mock-model" }

type mockTool struct {
	name    string
	content string
	failErr error
}

func (t *mockTool) Name() string { return t.name }

func (t *mockTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{Name: t.name, Description: "mock tool", InputSchema: tools.InputSchema{Type: "object"}}
}

func (t *mockTool) PromptDocumentation() string { return t.name }

func (t *mockTool) Exec(_ context.Context, _ map[string]any) (*tools.ExecResult, error) {
	if t.failErr != nil {
		return nil, t.failErr
	}
	return &tools.ExecResult{Content: t.content}, nil
}

const (
	testSafeTool      = "worker_test_safe_tool"
	testSensitiveTool = "worker_test_sensitive_tool"
	testFailingTool   = "worker_test_failing_tool"
)

func init() {
	tools.Register(testSafeTool, func(tools.AgentContext) (tools.Tool, error) {
		return &mockTool{name: testSafeTool, content: "safe result"}, nil
	}, &tools.ToolMeta{Name: testSafeTool, Description: "safe", Sensitivity: tools.Safe})

	tools.Register(testSensitiveTool, func(tools.AgentContext) (tools.Tool, error) {
		return &mockTool{name: testSensitiveTool, content: "sensitive result"}, nil
	}, &tools.ToolMeta{Name: testSensitiveTool, Description: "sensitive", Sensitivity: tools.Sensitive})

	tools.Register(testFailingTool, func(tools.AgentContext) (tools.Tool, error) {
		return &mockTool{name: testFailingTool, failErr: errors.New("boom")}, nil
	}, &tools.ToolMeta{Name: testFailingTool, Description: "failing", Sensitivity: tools.Safe})
}

func newProvider(allowed ...string) *tools.ToolProvider {
	return tools.NewProvider(tools.AgentContext{}, allowed)
}

func TestWorkerStep_NoToolCalls_CompletesTask(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{{Content: "all done"}}}
	w := worker.New("writer", "writes things", "you write things", newProvider(testSafeTool), client)

	state := graphstate.Apply(graphstate.State{}, graphstate.StartTurn(graphstate.NewUserMessage("do it")))
	update, events, err := w.Step(context.Background(), state)
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if !update.TaskComplete.Value {
		t.Fatalf("expected TaskComplete, got %+v", update.TaskComplete)
	}
	if update.TaskSummary.Value != "[writer] Processed request" {
		t.Fatalf("unexpected summary: %q", update.TaskSummary.Value)
	}
	if len(update.Messages) != 1 || update.Messages[0].Role != graphstate.RoleAssistant {
		t.Fatalf("expected one assistant message, got %+v", update.Messages)
	}
	if events[0].Kind != graphevent.WorkerStarted {
		t.Fatalf("expected worker_started first, got %v", events[0].Kind)
	}
}

func TestWorkerStep_SafeToolCall_ExecutesInline(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{{
		Content:   "",
		ToolCalls: []llm.ToolCall{{ID: "call_1", Name: testSafeTool, Parameters: map[string]any{"x": 1}}},
	}}}
	w := worker.New("reader", "reads things", "you read things", newProvider(testSafeTool), client)

	state := graphstate.Apply(graphstate.State{}, graphstate.StartTurn(graphstate.NewUserMessage("read it")))
	update, _, err := w.Step(context.Background(), state)
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if update.AwaitingApproval.Value {
		t.Fatalf("did not expect an awaiting-approval pause for a safe call")
	}
	if update.PendingAction.Value != nil {
		t.Fatalf("did not expect a pending action")
	}
	if len(update.Messages) != 2 {
		t.Fatalf("expected assistant + tool-result messages, got %d", len(update.Messages))
	}
	result := update.Messages[1]
	if result.Role != graphstate.RoleTool || result.ToolCallID != "call_1" || result.Content != "safe result" {
		t.Fatalf("unexpected tool-result message: %+v", result)
	}
}

func TestWorkerStep_SensitiveToolCall_PausesForApproval(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{{
		ToolCalls: []llm.ToolCall{{ID: "call_1", Name: testSensitiveTool, Parameters: map[string]any{"path": "/etc"}}},
	}}}
	w := worker.New("deleter", "deletes things", "you delete things", newProvider(testSensitiveTool), client)

	state := graphstate.Apply(graphstate.State{}, graphstate.StartTurn(graphstate.NewUserMessage("delete it")))
	update, events, err := w.Step(context.Background(), state)
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if !update.AwaitingApproval.Value {
		t.Fatalf("expected awaitingApproval to be set")
	}
	action := update.PendingAction.Value
	if action == nil {
		t.Fatalf("expected a pending action")
	}
	if action.ID != "call_1" || action.ToolName != testSensitiveTool || action.WorkerName != "deleter" {
		t.Fatalf("unexpected pending action: %+v", action)
	}
	result := update.Messages[1]
	if result.Content != graphstate.PlaceholderAwaitingApproval {
		t.Fatalf("expected awaiting-approval placeholder, got %q", result.Content)
	}

	found := false
	for _, e := range events {
		if e.Kind == graphevent.ApprovalRequired {
			found = true
			if e.Action.ID != "call_1" {
				t.Fatalf("approval_required event carries wrong action id: %q", e.Action.ID)
			}
		}
	}
	if !found {
		t.Fatalf("expected an approval_required event")
	}
}

func TestWorkerStep_SecondSensitiveCall_IsQueued(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{{
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: testSensitiveTool, Parameters: map[string]any{}},
			{ID: "call_2", Name: testSensitiveTool, Parameters: map[string]any{}},
		},
	}}}
	w := worker.New("deleter", "deletes things", "you delete things", newProvider(testSensitiveTool), client)

	state := graphstate.Apply(graphstate.State{}, graphstate.StartTurn(graphstate.NewUserMessage("delete both")))
	update, _, err := w.Step(context.Background(), state)
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if update.PendingAction.Value.ID != "call_1" {
		t.Fatalf("expected the first sensitive call to become the pending action, got %q", update.PendingAction.Value.ID)
	}
	var second graphstate.Message
	for _, m := range update.Messages {
		if m.ToolCallID == "call_2" {
			second = m
		}
	}
	if second.Content != graphstate.PlaceholderQueued {
		t.Fatalf("expected the second sensitive call to be queued, got %q", second.Content)
	}
}

func TestWorkerStep_ToolExecutionError_BecomesErrorResult(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{{
		ToolCalls: []llm.ToolCall{{ID: "call_1", Name: testFailingTool, Parameters: map[string]any{}}},
	}}}
	w := worker.New("breaker", "breaks things", "you break things", newProvider(testFailingTool), client)

	state := graphstate.Apply(graphstate.State{}, graphstate.StartTurn(graphstate.NewUserMessage("break it")))
	update, _, err := w.Step(context.Background(), state)
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	result := update.Messages[1]
	if result.Content != "Error: boom" {
		t.Fatalf("expected error content, got %q", result.Content)
	}
}

func TestWorker_Resume_ExecutesOriginalCall(t *testing.T) {
	w := worker.New("deleter", "deletes things", "you delete things", newProvider(testSensitiveTool), &mockLLMClient{})
	action := graphstate.PendingAction{ID: "call_1", WorkerName: "deleter", ToolName: testSensitiveTool, ToolArgs: map[string]any{}}

	result := w.Resume(context.Background(), action)
	if result.ToolCallID != "call_1" || result.Content != "sensitive result" {
		t.Fatalf("unexpected resume result: %+v", result)
	}
}

type fakeShellExecutor struct{}

func (fakeShellExecutor) Run(_ context.Context, _ []string, _ *execpkg.Opts) (execpkg.Result, error) {
	return execpkg.Result{Stdout: "should not run"}, nil
}
func (fakeShellExecutor) Name() string    { return "fake" }
func (fakeShellExecutor) Available() bool { return true }

func TestWorkerStep_BlockedShellCommand_RejectedNotQueuedForApproval(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{{
		ToolCalls: []llm.ToolCall{{ID: "call_1", Name: tools.NameShell, Parameters: map[string]any{"command": "sudo rm -rf /"}}},
	}}}
	provider := tools.NewProvider(tools.AgentContext{Executor: fakeShellExecutor{}, WorkDir: "/workspace"}, []string{tools.NameShell})
	w := worker.New("runner", "runs commands", "you run commands", provider, client)

	state := graphstate.Apply(graphstate.State{}, graphstate.StartTurn(graphstate.NewUserMessage("do something destructive")))
	update, _, err := w.Step(context.Background(), state)
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if update.AwaitingApproval.Value {
		t.Fatalf("a blocked command must be rejected outright, not queued for approval")
	}
	if update.PendingAction.Value != nil {
		t.Fatalf("a blocked command must not produce a pending action")
	}
	result := update.Messages[1]
	if !strings.HasPrefix(result.Content, "Error: ") {
		t.Fatalf("expected an error tool-result for a blocked command, got %q", result.Content)
	}
	if result.Content == graphstate.PlaceholderAwaitingApproval {
		t.Fatalf("blocked command must not produce the ordinary awaiting-approval placeholder")
	}
}

func TestWorkerStep_LLMError_SetsErrorChannel(t *testing.T) {
	w := worker.New("writer", "writes things", "you write things", newProvider(testSafeTool), &mockLLMClient{})
	state := graphstate.Apply(graphstate.State{}, graphstate.StartTurn(graphstate.NewUserMessage("do it")))

	update, _, err := w.Step(context.Background(), state)
	if err != nil {
		t.Fatalf("Step itself should not error on a model failure: %v", err)
	}
	if update.Error.Value == "" {
		t.Fatalf("expected the error channel to be set on a model failure")
	}
}
