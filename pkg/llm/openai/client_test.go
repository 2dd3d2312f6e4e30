package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"graphcore/pkg/llm"
)

func TestGetModelName(t *testing.T) {
	client := New("test-key", "gpt-5")
	assert.Equal(t, "gpt-5", client.GetModelName())
}

func TestNewImplementsLLMClient(t *testing.T) {
	var _ llm.LLMClient = New("test-key", "gpt-5")
}

func TestConvertPropertyNested(t *testing.T) {
	prop := llm.Property{
		Type:        "array",
		Description: "a list",
		Items:       &llm.Property{Type: "string"},
	}
	schema := convertProperty(&prop)
	assert.Equal(t, "array", schema["type"])
	items, ok := schema["items"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "string", items["type"])
}
