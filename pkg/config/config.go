// Package config loads and validates graphcore's runtime configuration:
// provider credentials, model bindings per worker role, and the graph's
// iteration/context tunables.
//
// A single Config is built once at process start (LoadConfig) and passed
// down explicitly to the packages that need it. The only package-level
// singleton this package keeps is the in-memory secrets cache, mirroring
// the teacher's preference for one shared resource (the DB handle) over
// ambient global state.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"graphcore/pkg/logx"
)

var logger = logx.NewLogger("config")

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
	ProviderGoogle    Provider = "google"
)

// ModelInfo carries static pricing/context facts about a known model.
// Hardcoded, not user-configurable, matching the teacher's KnownModels registry.
type ModelInfo struct {
	Provider         Provider
	InputCPM         float64 // cost per million input tokens, USD
	OutputCPM        float64 // cost per million output tokens, USD
	MaxContextTokens int
	MaxOutputTokens  int
}

// KnownModels is the static pricing/context registry, keyed by model name.
// The LLM clients do not consult it; a model missing from it is used as
// configured.
var KnownModels = map[string]ModelInfo{
	"claude-sonnet-4-5": {
		Provider: ProviderAnthropic, InputCPM: 3.0, OutputCPM: 15.0,
		MaxContextTokens: 200000, MaxOutputTokens: 8192,
	},
	"claude-opus-4-5": {
		Provider: ProviderAnthropic, InputCPM: 15.0, OutputCPM: 75.0,
		MaxContextTokens: 200000, MaxOutputTokens: 16384,
	},
	"gpt-5": {
		Provider: ProviderOpenAI, InputCPM: 5.0, OutputCPM: 15.0,
		MaxContextTokens: 272000, MaxOutputTokens: 16384,
	},
	"gpt-4o": {
		Provider: ProviderOpenAI, InputCPM: 2.5, OutputCPM: 10.0,
		MaxContextTokens: 128000, MaxOutputTokens: 4096,
	},
	"gemini-2.5-pro": {
		Provider: ProviderGoogle, InputCPM: 1.25, OutputCPM: 5.0,
		MaxContextTokens: 1000000, MaxOutputTokens: 8192,
	},
	"gemini-2.5-flash": {
		Provider: ProviderGoogle, InputCPM: 0.075, OutputCPM: 0.3,
		MaxContextTokens: 1000000, MaxOutputTokens: 8192,
	},
	"llama3.1": {
		Provider: ProviderOllama, InputCPM: 0, OutputCPM: 0,
		MaxContextTokens: 128000, MaxOutputTokens: 4096,
	},
	"qwen2.5": {
		Provider: ProviderOllama, InputCPM: 0, OutputCPM: 0,
		MaxContextTokens: 32000, MaxOutputTokens: 4096,
	},
}

// ModelBinding names the model + provider a worker or the supervisor uses.
type ModelBinding struct {
	Provider Provider `yaml:"provider"`
	Model    string   `yaml:"model"`
	// Host is only consulted for ProviderOllama (defaults to localhost:11434).
	Host string `yaml:"host,omitempty"`
}

// WorkerBinding names one worker role's model binding and system prompt.
type WorkerBinding struct {
	Model        ModelBinding `yaml:"model"`
	SystemPrompt string       `yaml:"system_prompt"`
}

// GraphTunables are the iteration/context-window limits the graph and
// router enforce. Defaults match spec's named constants.
type GraphTunables struct {
	MaxIterations             int `yaml:"max_iterations"`
	MaxWorkerIterations       int `yaml:"max_worker_iterations"`
	MaxMessagesForSupervisor  int `yaml:"max_messages_for_supervisor"`
	MaxToolOutputLength       int `yaml:"max_tool_output_length"`
	RecursionLimit            int `yaml:"recursion_limit"`
	ApprovalTimeoutSeconds    int `yaml:"approval_timeout_seconds"`
	CheckpointRetentionPerRun int `yaml:"checkpoint_retention_per_run"`
}

// DefaultGraphTunables returns the spec's named defaults.
func DefaultGraphTunables() GraphTunables {
	return GraphTunables{
		MaxIterations:             15,
		MaxWorkerIterations:       5,
		MaxMessagesForSupervisor:  20,
		MaxToolOutputLength:       500,
		RecursionLimit:            50,
		ApprovalTimeoutSeconds:    300,
		CheckpointRetentionPerRun: 50,
	}
}

// Config is graphcore's resolved runtime configuration.
type Config struct {
	DBPath        string                   `yaml:"db_path"`
	Supervisor    ModelBinding             `yaml:"supervisor"`
	Workers       map[string]WorkerBinding `yaml:"workers"`
	Tunables      GraphTunables            `yaml:"tunables"`
	LogDebug      bool                     `yaml:"log_debug"`
	LogDebugDir   string                   `yaml:"log_debug_dir"`
	WorkDir       string                   `yaml:"work_dir"`
	KnowledgeRoot string                   `yaml:"knowledge_root"`
}

// credentialsMu guards provider API keys resolved into memory at LoadConfig
// time (from env, or decrypted from the on-disk secrets store). Never
// serialized back into the YAML config and never logged.
var (
	credentials   = map[Provider]string{}
	credentialsMu sync.RWMutex
)

func envKeyFor(p Provider) string {
	switch p {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	case ProviderOllama:
		return "" // no key required for a local daemon
	default:
		return ""
	}
}

// Credential returns the API key for a provider, checking the in-memory
// secrets cache (populated from an encrypted on-disk store via
// LoadEncryptedCredentials) before falling back to the environment.
func Credential(p Provider) (string, error) {
	credentialsMu.RLock()
	if v, ok := credentials[p]; ok && v != "" {
		credentialsMu.RUnlock()
		return v, nil
	}
	credentialsMu.RUnlock()

	key := envKeyFor(p)
	if key == "" {
		return "", nil
	}
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("config: no credential for provider %q (checked secrets store and %s)", p, key)
}

// setCredential stores a resolved credential in the in-memory cache.
func setCredential(p Provider, value string) {
	credentialsMu.Lock()
	defer credentialsMu.Unlock()
	credentials[p] = value
}

// Default returns a Config with baked-in worker bindings matching the
// four named roles. Only the researcher worker is bound to Ollama: it is
// the one worker whose job is to digest content the user hands it, so it
// runs locally to minimize data exposure. filesystem, system, and code
// all stay on the cloud-facing model.
func Default() Config {
	return Config{
		DBPath:        "graphcore.db",
		WorkDir:       ".",
		KnowledgeRoot: "",
		Supervisor: ModelBinding{
			Provider: ProviderAnthropic,
			Model:    "claude-sonnet-4-5",
		},
		Workers: map[string]WorkerBinding{
			"filesystem": {
				Model:        ModelBinding{Provider: ProviderAnthropic, Model: "claude-sonnet-4-5"},
				SystemPrompt: "You manage files on the local filesystem. Never exfiltrate file contents.",
			},
			"system": {
				Model:        ModelBinding{Provider: ProviderAnthropic, Model: "claude-sonnet-4-5"},
				SystemPrompt: "You run diagnostic and administrative shell commands on the local host.",
			},
			"researcher": {
				Model:        ModelBinding{Provider: ProviderOllama, Model: "llama3.1"},
				SystemPrompt: "You research topics using web search and the knowledge base. Maintain privacy: you run locally to minimize data exposure.",
			},
			"code": {
				Model:        ModelBinding{Provider: ProviderAnthropic, Model: "claude-sonnet-4-5"},
				SystemPrompt: "You read, patch, build, test, and commit code changes.",
			},
		},
		Tunables: DefaultGraphTunables(),
	}
}

// LoadConfig reads a YAML config file layered over Default(), then resolves
// provider credentials from the environment. An empty path returns
// Default() with credentials resolved.
func LoadConfig(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	for _, p := range []Provider{ProviderAnthropic, ProviderOpenAI, ProviderGoogle} {
		if key := envKeyFor(p); key != "" {
			if v := os.Getenv(key); v != "" {
				setCredential(p, v)
			}
		}
	}

	logger.Info("loaded config: db=%s supervisor=%s/%s workers=%d", cfg.DBPath,
		cfg.Supervisor.Provider, cfg.Supervisor.Model, len(cfg.Workers))
	return cfg, nil
}

// Validate checks internal consistency of tunables and bindings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	if c.Supervisor.Model == "" {
		return fmt.Errorf("config: supervisor model binding is required")
	}
	if c.Tunables.MaxIterations <= 0 {
		return fmt.Errorf("config: max_iterations must be positive")
	}
	if c.Tunables.MaxWorkerIterations <= 0 {
		return fmt.Errorf("config: max_worker_iterations must be positive")
	}
	if c.Tunables.RecursionLimit < c.Tunables.MaxIterations {
		return fmt.Errorf("config: recursion_limit (%d) must be >= max_iterations (%d)",
			c.Tunables.RecursionLimit, c.Tunables.MaxIterations)
	}
	for name, w := range c.Workers {
		if w.Model.Model == "" {
			return fmt.Errorf("config: worker %q has no model binding", name)
		}
	}
	return nil
}
