package worker

import (
	"fmt"

	"graphcore/pkg/config"
	"graphcore/pkg/llm"
	"graphcore/pkg/llm/anthropic"
	"graphcore/pkg/llm/google"
	"graphcore/pkg/llm/ollama"
	"graphcore/pkg/llm/openai"
)

const defaultOllamaHost = "http://localhost:11434"

// NewClient resolves binding's provider credential and constructs the
// matching llm.LLMClient binding. Ollama needs no credential; the other
// three read theirs from config.Credential, which checks the in-memory
// secrets cache before the environment.
func NewClient(binding config.ModelBinding) (llm.LLMClient, error) {
	switch binding.Provider {
	case config.ProviderAnthropic:
		key, err := config.Credential(config.ProviderAnthropic)
		if err != nil {
			return nil, fmt.Errorf("worker: resolve anthropic credential: %w", err)
		}
		return anthropic.New(key, binding.Model), nil
	case config.ProviderOpenAI:
		key, err := config.Credential(config.ProviderOpenAI)
		if err != nil {
			return nil, fmt.Errorf("worker: resolve openai credential: %w", err)
		}
		return openai.New(key, binding.Model), nil
	case config.ProviderGoogle:
		key, err := config.Credential(config.ProviderGoogle)
		if err != nil {
			return nil, fmt.Errorf("worker: resolve google credential: %w", err)
		}
		return google.New(key, binding.Model), nil
	case config.ProviderOllama:
		host := binding.Host
		if host == "" {
			host = defaultOllamaHost
		}
		return ollama.New(host, binding.Model), nil
	default:
		return nil, fmt.Errorf("worker: unknown model provider %q", binding.Provider)
	}
}
