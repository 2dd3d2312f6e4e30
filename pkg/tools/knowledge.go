package tools

import (
	"context"
	"fmt"

	"graphcore/pkg/knowledge"
)

func createReadKnowledgeBaseTool(ctx AgentContext) (Tool, error) {
	return NewReadKnowledgeBaseTool(knowledge.NewStore(ctx.KnowledgeRoot)), nil
}

// ReadKnowledgeBaseTool searches an operator-curated set of markdown/text
// documents for passages relevant to a query. Always safe: it only reads
// from a local, pre-indexed store.
type ReadKnowledgeBaseTool struct {
	store *knowledge.Store
}

func NewReadKnowledgeBaseTool(store *knowledge.Store) *ReadKnowledgeBaseTool {
	return &ReadKnowledgeBaseTool{store: store}
}

func (t *ReadKnowledgeBaseTool) Name() string { return NameReadKnowledgeBase }

func (t *ReadKnowledgeBaseTool) PromptDocumentation() string {
	return `- **read_knowledge_base** - Search indexed reference documents
  - Parameters: query (string, REQUIRED), max_results (integer, optional, default 5)
  - Use to look up project-specific conventions, decisions, or reference material`
}

func (t *ReadKnowledgeBaseTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameReadKnowledgeBase,
		Description: "Search the local knowledge base for passages relevant to a query.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query":       {Type: "string", Description: "Search terms"},
				"max_results": {Type: "integer", Description: "Maximum number of results to return (default 5)"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *ReadKnowledgeBaseTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, fmt.Errorf("query is required and must be a string")
	}
	maxResults := intArgOrDefault(args, "max_results", 5)

	if t.store == nil {
		return errResult("knowledge base is not configured for this worker")
	}

	results, err := t.store.Search(query, maxResults)
	if err != nil {
		return errResult(fmt.Sprintf("search failed: %v", err))
	}

	return okResult(map[string]any{
		"query":        query,
		"result_count": len(results),
		"results":      results,
	})
}
