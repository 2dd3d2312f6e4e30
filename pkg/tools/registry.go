package tools

import (
	"fmt"
	"strings"
	"sync"

	execpkg "graphcore/pkg/exec"
)

// AgentContext carries the worker-specific configuration a tool factory
// needs to build an instance: which executor to shell out through, where
// its workspace root is, and the knowledge store for read-only lookups.
//
//nolint:govet // fieldalignment: logical grouping preferred over memory optimization
type AgentContext struct {
	Executor      execpkg.Executor
	WorkDir       string
	KnowledgeRoot string
}

// ToolFactory creates a tool instance configured for a specific agent context.
type ToolFactory func(ctx AgentContext) (Tool, error)

// ToolMeta is metadata about a tool for documentation, discovery, and
// (absent a Classifier) its fixed sensitivity.
//
//nolint:govet // fieldalignment: logical grouping preferred over memory optimization
type ToolMeta struct {
	Name        string
	Description string
	InputSchema InputSchema
	Sensitivity Sensitivity
}

type toolDescriptor struct {
	meta    ToolMeta
	factory ToolFactory
}

// immutableRegistry is the global, read-only-after-seal tool registry.
//
//nolint:govet // fieldalignment: logical grouping preferred over memory optimization
type immutableRegistry struct {
	mu     sync.RWMutex
	sealed bool
	tools  map[string]toolDescriptor
}

//nolint:gochecknoglobals // factory pattern requires a global registry
var globalRegistry = &immutableRegistry{
	tools: make(map[string]toolDescriptor),
}

// Register adds a tool factory to the global registry. Panics if called
// after the registry is sealed (sealing happens on first ToolProvider).
func Register(name string, factory ToolFactory, meta *ToolMeta) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if globalRegistry.sealed {
		panic(fmt.Sprintf("tool registry sealed: cannot register tool %q", name))
	}
	globalRegistry.tools[name] = toolDescriptor{meta: *meta, factory: factory}
}

// Seal prevents further tool registrations.
func Seal() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.sealed = true
}

// ListTools returns metadata for every registered tool.
func ListTools() []ToolMeta {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolMeta, 0, len(globalRegistry.tools))
	for _, desc := range globalRegistry.tools {
		result = append(result, desc.meta)
	}
	return result
}

// ToolProvider creates and caches tool instances for one worker's context,
// restricted to its allowed tool set. This is a worker's "tool registry"
// per the routing contract: every lookup outside allowSet fails closed.
//
//nolint:govet // fieldalignment: logical grouping preferred over memory optimization
type ToolProvider struct {
	ctx      AgentContext
	tools    map[string]Tool
	allowSet map[string]struct{}
	mu       sync.Mutex
}

// NewProvider creates a ToolProvider scoped to allowedTools, sealing the
// global registry on first use.
func NewProvider(ctx AgentContext, allowedTools []string) *ToolProvider {
	Seal()

	allowSet := make(map[string]struct{}, len(allowedTools))
	for _, name := range allowedTools {
		allowSet[name] = struct{}{}
	}

	return &ToolProvider{
		ctx:      ctx,
		tools:    make(map[string]Tool),
		allowSet: allowSet,
	}
}

// Get retrieves a tool instance, creating it lazily if needed.
func (p *ToolProvider) Get(name string) (Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.allowSet[name]; !ok {
		return nil, fmt.Errorf("tool %q not allowed in this context", name)
	}
	if tool, ok := p.tools[name]; ok {
		return tool, nil
	}

	globalRegistry.mu.RLock()
	desc, exists := globalRegistry.tools[name]
	globalRegistry.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("tool %q not registered", name)
	}

	tool, err := desc.factory(p.ctx)
	if err != nil {
		return nil, fmt.Errorf("create tool %q: %w", name, err)
	}
	p.tools[name] = tool
	return tool, nil
}

// Must is like Get but panics on error. Use only for tools a worker
// config declares and therefore must exist.
func (p *ToolProvider) Must(name string) Tool {
	tool, err := p.Get(name)
	if err != nil {
		panic(err)
	}
	return tool
}

// Classify returns the sensitivity of invoking name with args, failing
// closed (Sensitive) for unknown or disallowed tools per the default-deny
// policy.
func (p *ToolProvider) Classify(name string, args map[string]any) (Sensitivity, error) {
	tool, err := p.Get(name)
	if err != nil {
		return Sensitive, err
	}

	globalRegistry.mu.RLock()
	desc, exists := globalRegistry.tools[name]
	globalRegistry.mu.RUnlock()
	if !exists {
		return Sensitive, fmt.Errorf("tool %q not registered", name)
	}
	return ClassifySensitivity(tool, desc.meta, args)
}

// List returns metadata for every tool allowed in this context.
func (p *ToolProvider) List() []ToolMeta {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolMeta, 0, len(p.allowSet))
	for name := range p.allowSet {
		if desc, ok := globalRegistry.tools[name]; ok {
			result = append(result, desc.meta)
		}
	}
	return result
}

// GenerateToolDocumentation renders markdown documentation for this
// provider's allowed tools, for inclusion in a worker's system prompt.
func (p *ToolProvider) GenerateToolDocumentation() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var doc strings.Builder
	doc.WriteString("## Available Tools\n\n")
	for name := range p.allowSet {
		tool, err := p.getLocked(name)
		if err != nil {
			continue
		}
		doc.WriteString(tool.PromptDocumentation())
		doc.WriteString("\n")
	}
	return doc.String()
}

// getLocked is Get's body without re-acquiring p.mu, for callers that
// already hold it.
func (p *ToolProvider) getLocked(name string) (Tool, error) {
	if tool, ok := p.tools[name]; ok {
		return tool, nil
	}
	globalRegistry.mu.RLock()
	desc, exists := globalRegistry.tools[name]
	globalRegistry.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("tool %q not registered", name)
	}
	tool, err := desc.factory(p.ctx)
	if err != nil {
		return nil, fmt.Errorf("create tool %q: %w", name, err)
	}
	p.tools[name] = tool
	return tool, nil
}

// init registers every worker tool SPEC_FULL.md names, using the factory
// pattern the teacher established: a Register call per tool naming its
// factory and static metadata (schema extracted by constructing a
// throwaway instance, sensitivity fixed except where a Classifier
// overrides it per-call).
//
//nolint:gochecknoinits // factory pattern requires init() for tool registration
func init() {
	Register(NameListDirectory, createListDirectoryTool, &ToolMeta{
		Name:        NameListDirectory,
		Description: "List the contents of a directory within the workspace",
		InputSchema: NewListDirectoryTool(nil, "").Definition().InputSchema,
		Sensitivity: Safe,
	})
	Register(NameReadFile, createReadFileTool, &ToolMeta{
		Name:        NameReadFile,
		Description: "Read the contents of a file within the workspace",
		InputSchema: NewReadFileTool(nil, "", 0).Definition().InputSchema,
		Sensitivity: Safe,
	})
	Register(NameWriteFile, createWriteFileTool, &ToolMeta{
		Name:        NameWriteFile,
		Description: "Write content to a file within the workspace, creating or overwriting it",
		InputSchema: NewWriteFileTool(nil, "").Definition().InputSchema,
		Sensitivity: Sensitive,
	})
	Register(NameDeletePath, createDeletePathTool, &ToolMeta{
		Name:        NameDeletePath,
		Description: "Delete a file or directory within the workspace",
		InputSchema: NewDeletePathTool(nil, "").Definition().InputSchema,
		Sensitivity: Sensitive,
	})
	Register(NameCreateDirectory, createCreateDirectoryTool, &ToolMeta{
		Name:        NameCreateDirectory,
		Description: "Create a directory within the workspace",
		InputSchema: NewCreateDirectoryTool(nil, "").Definition().InputSchema,
		Sensitivity: Sensitive,
	})

	Register(NameShell, createShellTool, &ToolMeta{
		Name:        NameShell,
		Description: "Run a shell command; sensitivity depends on the command itself",
		InputSchema: NewShellTool(nil, "").Definition().InputSchema,
		Sensitivity: Sensitive, // fallback only; Classify() decides per call
	})
	Register(NameGetSystemInfo, createGetSystemInfoTool, &ToolMeta{
		Name:        NameGetSystemInfo,
		Description: "Report host OS, architecture, and resource information",
		InputSchema: NewGetSystemInfoTool(nil).Definition().InputSchema,
		Sensitivity: Safe,
	})

	Register(NameWebSearch, createWebSearchTool, &ToolMeta{
		Name:        NameWebSearch,
		Description: "Search the web for current information",
		InputSchema: NewWebSearchTool().Definition().InputSchema,
		Sensitivity: Safe,
	})
	Register(NameFetchURL, createFetchURLTool, &ToolMeta{
		Name:        NameFetchURL,
		Description: "Fetch and extract text content from a web page",
		InputSchema: NewWebFetchTool().Definition().InputSchema,
		Sensitivity: Safe,
	})
	Register(NameReadKnowledgeBase, createReadKnowledgeBaseTool, &ToolMeta{
		Name:        NameReadKnowledgeBase,
		Description: "Search the local knowledge base for relevant indexed documents",
		InputSchema: NewReadKnowledgeBaseTool(nil).Definition().InputSchema,
		Sensitivity: Safe,
	})

	Register(NameStaticAnalyze, createStaticAnalyzeTool, &ToolMeta{
		Name:        NameStaticAnalyze,
		Description: "Run static analysis (vet/lint) over the project without modifying it",
		InputSchema: NewStaticAnalyzeTool(nil, "").Definition().InputSchema,
		Sensitivity: Safe,
	})
	Register(NameApplyPatch, createApplyPatchTool, &ToolMeta{
		Name:        NameApplyPatch,
		Description: "Apply a unified diff patch to files in the workspace",
		InputSchema: NewApplyPatchTool(nil, "").Definition().InputSchema,
		Sensitivity: Moderate,
	})
	Register(NameRunBuild, createRunBuildTool, &ToolMeta{
		Name:        NameRunBuild,
		Description: "Build the project using its detected build system",
		InputSchema: NewRunBuildTool(nil, "").Definition().InputSchema,
		Sensitivity: Moderate,
	})
	Register(NameRunTests, createRunTestsTool, &ToolMeta{
		Name:        NameRunTests,
		Description: "Run the project's test suite",
		InputSchema: NewRunTestsTool(nil, "").Definition().InputSchema,
		Sensitivity: Moderate,
	})
	Register(NameGitCommit, createGitCommitTool, &ToolMeta{
		Name:        NameGitCommit,
		Description: "Create a git commit from the current working tree changes",
		InputSchema: NewGitCommitTool(nil, "").Definition().InputSchema,
		Sensitivity: Sensitive,
	})
	Register(NameGitPush, createGitPushTool, &ToolMeta{
		Name:        NameGitPush,
		Description: "Push committed changes to the configured remote",
		InputSchema: NewGitPushTool(nil, "").Definition().InputSchema,
		Sensitivity: Sensitive,
	})
}
