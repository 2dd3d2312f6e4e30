// Package llm defines the provider-agnostic completion interface that the
// router and worker call against. Concrete bindings live in subpackages
// (anthropic, openai, ollama, google); callers only ever touch this
// package's types.
package llm

import (
	"context"
	"io"
)

// CompletionRole is the role of one message in a completion request.
type CompletionRole string

const (
	RoleSystem    CompletionRole = "system"
	RoleUser      CompletionRole = "user"
	RoleAssistant CompletionRole = "assistant"
)

// Default sampling/token parameters. No binding clamps them to a model's
// own limits.
const (
	DefaultMaxTokens         = 8192
	TemperatureDefault       = 0.3
	TemperatureDeterministic = 0.0
)

// CacheControl marks a message for provider-side prompt caching, when the
// binding supports it (currently only anthropic).
type CacheControl struct {
	Type string // "ephemeral"
	TTL  string // "5m" or "1h"
}

// CompletionMessage is one turn in a conversation sent to the model.
type CompletionMessage struct {
	Role         CompletionRole
	Content      string
	ToolCalls    []ToolCall   // populated on assistant messages that invoked tools
	ToolResults  []ToolResult // populated on the message that reports tool outcomes
	CacheControl *CacheControl
}

// ToolCall is one invocation the model asked for.
type ToolCall struct {
	ID         string
	Name       string
	Parameters map[string]any
}

// ToolResult is the outcome of running a ToolCall, keyed back to it by ID.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// ToolChoice constrains how the model may use tools.
//
//   - "auto": the model decides whether to call a tool (default).
//   - "any": the model must call some tool, its choice of which.
//   - "tool": the model must call the tool named in Name.
type ToolChoice struct {
	Mode string
	Name string // only meaningful when Mode == "tool"
}

// ToolChoiceAuto lets the model decide whether to call a tool.
var ToolChoiceAuto = ToolChoice{Mode: "auto"}

// ToolChoiceAny forces a tool call, any tool.
var ToolChoiceAny = ToolChoice{Mode: "any"}

// ToolChoiceNamed forces a call to the named tool, used by the router to
// get a structured routing decision without a JSON-schema response format.
func ToolChoiceNamed(name string) ToolChoice {
	return ToolChoice{Mode: "tool", Name: name}
}

// CompletionRequest is a single call to an LLMClient.
type CompletionRequest struct {
	Messages    []CompletionMessage
	Tools       []ToolDefinition
	ToolChoice  ToolChoice
	MaxTokens   int
	Temperature float64
}

// ToolDefinition is the provider-agnostic shape of a tool's contract,
// mirroring pkg/tools.ToolDefinition so llm bindings don't import pkg/tools.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema InputSchema
}

// InputSchema is a minimal JSON-schema-object subset.
type InputSchema struct {
	Type       string
	Properties map[string]Property
	Required   []string
}

// Property describes one field of an InputSchema, recursively for
// array/object types.
type Property struct {
	Type        string
	Description string
	Enum        []string
	Items       *Property
	Properties  map[string]*Property
}

// CompletionResponse is what an LLMClient returns for one request.
type CompletionResponse struct {
	Content      string
	ToolCalls    []ToolCall
	StopReason   string
	PromptTokens int
	OutputTokens int
}

// StreamChunk is one increment of a streamed completion.
type StreamChunk struct {
	Content string
	Done    bool
	Error   error
}

// LLMClient is the interface every provider binding implements.
type LLMClient interface {
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)
	Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error)
	GetModelName() string
}

// NewCompletionRequest builds a request from messages with the package's
// default token/temperature settings.
func NewCompletionRequest(messages []CompletionMessage, tools []ToolDefinition) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		Tools:       tools,
		ToolChoice:  ToolChoiceAuto,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleAssistant, Content: content}
}

// StreamToReader adapts a StreamChunk channel to an io.Reader of the
// concatenated content, for callers that don't need incremental delivery.
func StreamToReader(ch <-chan StreamChunk) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		var err error
		for chunk := range ch {
			if chunk.Error != nil {
				err = chunk.Error
				break
			}
			if chunk.Content != "" {
				if _, werr := pw.Write([]byte(chunk.Content)); werr != nil {
					err = werr
					break
				}
			}
			if chunk.Done {
				break
			}
		}
		_ = pw.CloseWithError(err)
	}()
	return pr
}
