package worker

import (
	"graphcore/pkg/graphstate"
	"graphcore/pkg/llm"
	"graphcore/pkg/tools"
)

// toLLMMessages renders a worker's [SystemMessage(systemPrompt),
// *state.messages] input as the provider-agnostic llm.CompletionMessage
// sequence, per spec.md §4.2. Each transcript message maps to exactly one
// CompletionMessage; a tool-result message becomes a user-role message
// carrying a single ToolResult, since llm.CompletionMessage groups results
// onto their own message rather than interleaving them with assistant
// turns.
func toLLMMessages(systemPrompt string, messages []graphstate.Message) []llm.CompletionMessage {
	out := make([]llm.CompletionMessage, 0, len(messages)+1)
	out = append(out, llm.NewSystemMessage(systemPrompt))

	for _, m := range messages {
		switch m.Role {
		case graphstate.RoleSystem:
			continue // the worker's own system prompt already covers this
		case graphstate.RoleUser:
			out = append(out, llm.NewUserMessage(m.Content))
		case graphstate.RoleAssistant:
			calls := make([]llm.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = llm.ToolCall{ID: tc.ID, Name: tc.Name, Parameters: tc.Args}
			}
			out = append(out, llm.CompletionMessage{Role: llm.RoleAssistant, Content: m.Content, ToolCalls: calls})
		case graphstate.RoleTool:
			out = append(out, llm.CompletionMessage{
				Role: llm.RoleUser,
				ToolResults: []llm.ToolResult{{
					ToolCallID: m.ToolCallID,
					Content:    m.Content,
					IsError:    isErrorContent(m.Content),
				}},
			})
		}
	}
	return out
}

func isErrorContent(content string) bool {
	return len(content) >= 6 && content[:6] == "Error:"
}

// toLLMToolDefinitions converts the worker's static tool surface into the
// provider-agnostic shape llm.CompletionRequest expects. tools.ToolDefinition
// mirrors llm.ToolDefinition field-for-field by design, so this is a
// structural copy, not a semantic translation.
func toLLMToolDefinitions(metas []tools.ToolMeta) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, len(metas))
	for i, m := range metas {
		defs[i] = llm.ToolDefinition{
			Name:        m.Name,
			Description: m.Description,
			InputSchema: toLLMInputSchema(m.InputSchema),
		}
	}
	return defs
}

func toLLMInputSchema(s tools.InputSchema) llm.InputSchema {
	props := make(map[string]llm.Property, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = toLLMProperty(p)
	}
	return llm.InputSchema{Type: s.Type, Properties: props, Required: s.Required}
}

func toLLMProperty(p tools.Property) llm.Property {
	out := llm.Property{Type: p.Type, Description: p.Description, Enum: p.Enum}
	if p.Items != nil {
		item := toLLMProperty(*p.Items)
		out.Items = &item
	}
	if p.Properties != nil {
		out.Properties = make(map[string]*llm.Property, len(p.Properties))
		for name, child := range p.Properties {
			converted := toLLMProperty(*child)
			out.Properties[name] = &converted
		}
	}
	return out
}

// toGraphSensitivity adapts the tool registry's Sensitivity (identical in
// meaning, distinct type to keep pkg/tools free of a pkg/graphstate
// import) into graphstate's own enum.
func toGraphSensitivity(s tools.Sensitivity) graphstate.Sensitivity {
	return graphstate.Sensitivity(s)
}
