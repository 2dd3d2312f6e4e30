package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"graphcore/pkg/llm"
)

func TestGetModelName(t *testing.T) {
	client := New("test-key", "gemini-2.5-flash")
	assert.Equal(t, "gemini-2.5-flash", client.GetModelName())
}

func TestConvertMessagesRejectsEmpty(t *testing.T) {
	_, _, err := convertMessages(nil, nil)
	assert.Error(t, err)
}

func TestConvertMessagesExtractsSystemInstruction(t *testing.T) {
	contents, sys, err := convertMessages([]llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "hello"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "be terse", sys)
	require.Len(t, contents, 1)
	assert.Equal(t, "user", contents[0].Role)
}

func TestConvertMessagesAssistantRoleIsModel(t *testing.T) {
	contents, _, err := convertMessages([]llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, contents, 2)
	assert.Equal(t, "model", contents[1].Role)
}

func TestConvertFunctionCallsGeneratesIDFromName(t *testing.T) {
	calls := convertFunctionCalls([]*genai.FunctionCall{{Name: "foo"}})
	require.Len(t, calls, 1)
	assert.Equal(t, "foo", calls[0].ID)
	assert.Equal(t, "foo", calls[0].Name)
}
