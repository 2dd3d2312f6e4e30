package ollama

import (
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphcore/pkg/llm"
)

func TestGetModelName(t *testing.T) {
	client := New("http://localhost:11434", "llama3.1")
	assert.Equal(t, "llama3.1", client.GetModelName())
}

func TestNewFallsBackOnInvalidHost(t *testing.T) {
	client := New("", "llama3.1")
	assert.NotNil(t, client)
}

func TestConvertMessagesRejectsEmpty(t *testing.T) {
	_, err := convertMessages(nil)
	assert.Error(t, err)
}

func TestConvertMessagesSplitsToolResults(t *testing.T) {
	msgs := []llm.CompletionMessage{
		{
			Role:    llm.RoleUser,
			Content: "continue",
			ToolResults: []llm.ToolResult{
				{ToolCallID: "call_1", Content: "ok"},
			},
		},
	}
	out, err := convertMessages(msgs)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "tool", out[0].Role)
	assert.Equal(t, "call_1", out[0].ToolCallID)
	assert.Equal(t, "user", out[1].Role)
}

func TestStopReason(t *testing.T) {
	assert.Equal(t, "end_turn", stopReason(&api.ChatResponse{Done: true, DoneReason: "stop"}))
	assert.Equal(t, "max_tokens", stopReason(&api.ChatResponse{Done: true, DoneReason: "length"}))
	assert.Equal(t, "incomplete", stopReason(&api.ChatResponse{Done: false}))
}
