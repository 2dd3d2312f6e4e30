package graph_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"graphcore/pkg/checkpoint"
	"graphcore/pkg/graph"
	"graphcore/pkg/graphevent"
	"graphcore/pkg/graphmetrics"
	"graphcore/pkg/graphstate"
	"graphcore/pkg/llm"
	"graphcore/pkg/router"
	"graphcore/pkg/tools"
	"graphcore/pkg/worker"

	"github.com/prometheus/client_golang/prometheus"
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

func routingCall(next string) llm.CompletionResponse {
	return llm.CompletionResponse{ToolCalls: []llm.ToolCall{{
		ID: "route_1", Name: "route",
		Parameters: map[string]any{"reasoning": "because", "next": next, "finalResponse": "Done."},
	}}}
}

type graphMockTool struct {
	name    string
	content string
}

func (t *graphMockTool) Name() string { return t.name }
func (t *graphMockTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{Name: t.name, Description: "mock", InputSchema: tools.InputSchema{Type: "object"}}
}
func (t *graphMockTool) PromptDocumentation() string { return t.name }
func (t *graphMockTool) Exec(context.Context, map[string]any) (*tools.ExecResult, error) {
	return &tools.ExecResult{Content: t.content}, nil
}

const (
	graphTestSafeTool      = "graph_test_safe_tool"
	graphTestSensitiveTool = "graph_test_sensitive_tool"
)

func init() {
	tools.Register(graphTestSafeTool, func(tools.AgentContext) (tools.Tool, error) {
		return &graphMockTool{name: graphTestSafeTool, content: "listed"}, nil
	}, &tools.ToolMeta{Name: graphTestSafeTool, Description: "safe", Sensitivity: tools.Safe})

	tools.Register(graphTestSensitiveTool, func(tools.AgentContext) (tools.Tool, error) {
		return &graphMockTool{name: graphTestSensitiveTool, content: "written"}, nil
	}, &tools.ToolMeta{Name: graphTestSensitiveTool, Description: "sensitive", Sensitivity: tools.Sensitive})
}

func newTestGraph(t *testing.T, supervisorClient llm.LLMClient, workerClient llm.LLMClient, allowedTool string) *graph.Graph {
	t.Helper()
	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open checkpoint store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	provider := tools.NewProvider(tools.AgentContext{}, []string{allowedTool})
	w := worker.New("filesystem", "manages files", "you manage files", provider, workerClient)

	supervisor := router.New([]router.WorkerInfo{{Name: "filesystem", Description: "manages files"}}, supervisorClient, "linux", "/home/u")

	return graph.New(supervisor, map[string]*worker.Worker{"filesystem": w}, store, graphstate.DefaultTunables, 50)
}

func TestGraph_DirectAnswer_EndsImmediately(t *testing.T) {
	supervisorClient := &mockLLMClient{responses: []llm.CompletionResponse{routingCall("FINISH")}}
	g := newTestGraph(t, supervisorClient, &mockLLMClient{}, graphTestSafeTool)

	events, err := g.Start(context.Background(), "t1", graphstate.NewUserMessage("hi"))
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	last := events[len(events)-1]
	if last.Kind != graphevent.Complete || last.Response != "Done." {
		t.Fatalf("expected a complete event with the supervisor's response, got %+v", last)
	}
}

func TestGraph_SafeToolCall_LoopsThenFinishes(t *testing.T) {
	supervisorClient := &mockLLMClient{responses: []llm.CompletionResponse{
		routingCall("filesystem"),
		routingCall("FINISH"),
	}}
	workerClient := &mockLLMClient{responses: []llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: graphTestSafeTool, Parameters: map[string]any{"path": "/home"}}}},
		{Content: "Listed the directory."},
	}}
	g := newTestGraph(t, supervisorClient, workerClient, graphTestSafeTool)

	events, err := g.Start(context.Background(), "t2", graphstate.NewUserMessage("list /home"))
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	var sawToolResult, sawComplete bool
	for _, e := range events {
		if e.Kind == graphevent.ToolResult && e.Result == "listed" {
			sawToolResult = true
		}
		if e.Kind == graphevent.Complete {
			sawComplete = true
		}
	}
	if !sawToolResult {
		t.Fatalf("expected a tool_result event carrying the tool's output")
	}
	if !sawComplete {
		t.Fatalf("expected the run to reach complete")
	}
}

func TestGraph_SensitiveToolCall_PausesThenApproveCompletes(t *testing.T) {
	supervisorClient := &mockLLMClient{responses: []llm.CompletionResponse{
		routingCall("filesystem"),
		routingCall("FINISH"),
	}}
	workerClient := &mockLLMClient{responses: []llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: graphTestSensitiveTool, Parameters: map[string]any{"path": "/home/note.txt"}}}},
	}}
	g := newTestGraph(t, supervisorClient, workerClient, graphTestSensitiveTool)

	events, err := g.Start(context.Background(), "t3", graphstate.NewUserMessage("write a note"))
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	var paused bool
	for _, e := range events {
		if e.Kind == graphevent.ApprovalRequired {
			paused = true
			if e.Action.ToolName != graphTestSensitiveTool {
				t.Fatalf("unexpected pending action tool: %q", e.Action.ToolName)
			}
		}
		if e.Kind == graphevent.Complete {
			t.Fatalf("did not expect the run to complete before approval")
		}
	}
	if !paused {
		t.Fatalf("expected an approval_required event")
	}

	resumed, err := g.Approve(context.Background(), "t3")
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	last := resumed[len(resumed)-1]
	if last.Kind != graphevent.Complete {
		t.Fatalf("expected the resumed run to complete, got %+v", last)
	}
}

func TestGraph_SetMetrics_ObservesRoutingAndToolCalls(t *testing.T) {
	supervisorClient := &mockLLMClient{responses: []llm.CompletionResponse{
		routingCall("filesystem"),
		routingCall("FINISH"),
	}}
	workerClient := &mockLLMClient{responses: []llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: graphTestSafeTool, Parameters: map[string]any{"path": "/home"}}}},
		{Content: "Listed the directory."},
	}}
	g := newTestGraph(t, supervisorClient, workerClient, graphTestSafeTool)

	reg := prometheus.NewRegistry()
	g.SetMetrics(graphmetrics.New(reg))

	if _, err := g.Start(context.Background(), "t5", graphstate.NewUserMessage("list /home")); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	seen := map[string]bool{}
	for _, f := range families {
		seen[f.GetName()] = true
	}
	for _, name := range []string{
		"graph_routing_decisions_total",
		"graph_tool_call_duration_seconds",
		"graph_checkpoint_write_duration_seconds",
	} {
		if !seen[name] {
			t.Fatalf("expected %q to have been recorded, got families: %v", name, seen)
		}
	}
}

func TestGraph_Deny_RecordsSyntheticMessageAndResumes(t *testing.T) {
	supervisorClient := &mockLLMClient{responses: []llm.CompletionResponse{
		routingCall("filesystem"),
		routingCall("FINISH"),
	}}
	workerClient := &mockLLMClient{responses: []llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: graphTestSensitiveTool, Parameters: map[string]any{"path": "/home/note.txt"}}}},
	}}
	g := newTestGraph(t, supervisorClient, workerClient, graphTestSensitiveTool)

	if _, err := g.Start(context.Background(), "t4", graphstate.NewUserMessage("write a note")); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	resumed, err := g.Deny(context.Background(), "t4", "not safe")
	if err != nil {
		t.Fatalf("Deny returned error: %v", err)
	}
	last := resumed[len(resumed)-1]
	if last.Kind != graphevent.Complete {
		t.Fatalf("expected the resumed run to complete, got %+v", last)
	}
}
