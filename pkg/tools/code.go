package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	execpkg "graphcore/pkg/exec"
)

func createStaticAnalyzeTool(ctx AgentContext) (Tool, error) {
	return NewStaticAnalyzeTool(ctx.Executor, ctx.WorkDir), nil
}

func createApplyPatchTool(ctx AgentContext) (Tool, error) {
	return NewApplyPatchTool(ctx.Executor, ctx.WorkDir), nil
}

func createRunBuildTool(ctx AgentContext) (Tool, error) {
	return NewRunBuildTool(ctx.Executor, ctx.WorkDir), nil
}

func createRunTestsTool(ctx AgentContext) (Tool, error) {
	return NewRunTestsTool(ctx.Executor, ctx.WorkDir), nil
}

func createGitCommitTool(ctx AgentContext) (Tool, error) {
	return NewGitCommitTool(ctx.Executor, ctx.WorkDir), nil
}

func createGitPushTool(ctx AgentContext) (Tool, error) {
	return NewGitPushTool(ctx.Executor, ctx.WorkDir), nil
}

// detectBuildSystem inspects root for a recognized build system and returns
// the shell command lines to build and test it, preferring a Makefile's
// own targets when present.
func detectBuildSystem(root string) (buildCmd, testCmd string, err error) {
	if fileExists(filepath.Join(root, "Makefile")) || fileExists(filepath.Join(root, "makefile")) {
		return "make build", "make test", nil
	}
	if fileExists(filepath.Join(root, "go.mod")) {
		return "go build ./...", "go test ./...", nil
	}
	if fileExists(filepath.Join(root, "package.json")) {
		return "npm run build", "npm test", nil
	}
	if fileExists(filepath.Join(root, "Cargo.toml")) {
		return "cargo build", "cargo test", nil
	}
	if fileExists(filepath.Join(root, "pyproject.toml")) {
		return "python -m build", "pytest", nil
	}
	return "", "", fmt.Errorf("no recognized build system in %s (looked for Makefile, go.mod, package.json, Cargo.toml, pyproject.toml)", root)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// StaticAnalyzeTool runs vet/lint-style checks without modifying the tree.
// Always safe: read-only by construction of the underlying commands.
type StaticAnalyzeTool struct {
	executor execpkg.Executor
	workRoot string
}

func NewStaticAnalyzeTool(executor execpkg.Executor, workRoot string) *StaticAnalyzeTool {
	return &StaticAnalyzeTool{executor: executor, workRoot: workRoot}
}

func (t *StaticAnalyzeTool) Name() string { return NameStaticAnalyze }

func (t *StaticAnalyzeTool) PromptDocumentation() string {
	return `- **static_analyze** - Run vet/lint checks over the project without modifying it
  - Parameters: none`
}

func (t *StaticAnalyzeTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameStaticAnalyze,
		Description: "Run static analysis (vet/lint) over the project. Does not modify any files.",
		InputSchema: InputSchema{Type: "object"},
	}
}

func (t *StaticAnalyzeTool) Exec(ctx context.Context, _ map[string]any) (*ExecResult, error) {
	var cmd string
	switch {
	case fileExists(filepath.Join(t.workRoot, "go.mod")):
		cmd = "go vet ./..."
	case fileExists(filepath.Join(t.workRoot, "package.json")):
		cmd = "npm run lint"
	case fileExists(filepath.Join(t.workRoot, "Cargo.toml")):
		cmd = "cargo clippy"
	case fileExists(filepath.Join(t.workRoot, "pyproject.toml")):
		cmd = "python -m pyflakes ."
	default:
		return errResult("no recognized project type to analyze")
	}

	opts := execpkg.DefaultOpts()
	opts.WorkDir = t.workRoot
	result, err := t.executor.Run(ctx, []string{"sh", "-c", cmd}, &opts)
	if err != nil {
		return errResult(fmt.Sprintf("analysis failed to run: %v", err))
	}
	return okResult(map[string]any{
		"command":   cmd,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
		"exit_code": result.ExitCode,
	})
}

// ApplyPatchTool applies a unified diff to the workspace via patch(1).
// Moderate: it mutates files but never VCS history or shared state.
type ApplyPatchTool struct {
	executor execpkg.Executor
	workRoot string
}

func NewApplyPatchTool(executor execpkg.Executor, workRoot string) *ApplyPatchTool {
	return &ApplyPatchTool{executor: executor, workRoot: workRoot}
}

func (t *ApplyPatchTool) Name() string { return NameApplyPatch }

func (t *ApplyPatchTool) PromptDocumentation() string {
	return `- **apply_patch** - Apply a unified diff to files in the workspace
  - Parameters: diff (string, REQUIRED)`
}

func (t *ApplyPatchTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameApplyPatch,
		Description: "Apply a unified diff (as produced by `diff -u` or `git diff`) to files in the workspace.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"diff": {Type: "string", Description: "Unified diff content"},
			},
			Required: []string{"diff"},
		},
	}
}

func (t *ApplyPatchTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	diff, ok := args["diff"].(string)
	if !ok || diff == "" {
		return nil, fmt.Errorf("diff is required and must be a string")
	}

	script := fmt.Sprintf("cd %s && patch -p1 <<'__GRAPHCORE_PATCH__'\n%s\n__GRAPHCORE_PATCH__\n",
		escapeSingleQuote(t.workRoot), diff)
	opts := execpkg.DefaultOpts()
	result, err := t.executor.Run(ctx, []string{"sh", "-c", script}, &opts)
	if err != nil {
		return errResult(fmt.Sprintf("patch failed to run: %v", err))
	}
	if result.ExitCode != 0 {
		return errResult(fmt.Sprintf("patch did not apply cleanly: %s", strings.TrimSpace(result.Stderr+result.Stdout)))
	}
	return okResult(map[string]any{"applied": true, "output": result.Stdout})
}

// RunBuildTool builds the project using its detected build system.
// Moderate: compiles but never commits or pushes.
type RunBuildTool struct {
	executor execpkg.Executor
	workRoot string
}

func NewRunBuildTool(executor execpkg.Executor, workRoot string) *RunBuildTool {
	return &RunBuildTool{executor: executor, workRoot: workRoot}
}

func (t *RunBuildTool) Name() string { return NameRunBuild }

func (t *RunBuildTool) PromptDocumentation() string {
	return `- **run_build** - Build the project using its detected build system
  - Parameters: none`
}

func (t *RunBuildTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameRunBuild,
		Description: "Build the project. Detects Makefile, go.mod, package.json, Cargo.toml, or pyproject.toml and runs the matching build command.",
		InputSchema: InputSchema{Type: "object"},
	}
}

func (t *RunBuildTool) Exec(ctx context.Context, _ map[string]any) (*ExecResult, error) {
	buildCmd, _, err := detectBuildSystem(t.workRoot)
	if err != nil {
		return errResult(err.Error())
	}

	opts := execpkg.DefaultOpts()
	opts.WorkDir = t.workRoot
	result, err := t.executor.Run(ctx, []string{"sh", "-c", buildCmd}, &opts)
	if err != nil {
		return errResult(fmt.Sprintf("build failed to run: %v", err))
	}
	return okResult(map[string]any{
		"command":   buildCmd,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
		"exit_code": result.ExitCode,
	})
}

// RunTestsTool runs the project's test suite using its detected build
// system. Moderate, for the same reason as RunBuildTool.
type RunTestsTool struct {
	executor execpkg.Executor
	workRoot string
}

func NewRunTestsTool(executor execpkg.Executor, workRoot string) *RunTestsTool {
	return &RunTestsTool{executor: executor, workRoot: workRoot}
}

func (t *RunTestsTool) Name() string { return NameRunTests }

func (t *RunTestsTool) PromptDocumentation() string {
	return `- **run_tests** - Run the project's test suite
  - Parameters: none`
}

func (t *RunTestsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameRunTests,
		Description: "Run the project's test suite. Detects Makefile, go.mod, package.json, Cargo.toml, or pyproject.toml and runs the matching test command.",
		InputSchema: InputSchema{Type: "object"},
	}
}

func (t *RunTestsTool) Exec(ctx context.Context, _ map[string]any) (*ExecResult, error) {
	_, testCmd, err := detectBuildSystem(t.workRoot)
	if err != nil {
		return errResult(err.Error())
	}

	opts := execpkg.DefaultOpts()
	opts.WorkDir = t.workRoot
	result, err := t.executor.Run(ctx, []string{"sh", "-c", testCmd}, &opts)
	if err != nil {
		return errResult(fmt.Sprintf("tests failed to run: %v", err))
	}
	return okResult(map[string]any{
		"command":   testCmd,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
		"exit_code": result.ExitCode,
	})
}

// GitCommitTool creates a commit from the current working tree. Sensitive:
// it records a new commit in local history.
type GitCommitTool struct {
	executor execpkg.Executor
	workRoot string
}

func NewGitCommitTool(executor execpkg.Executor, workRoot string) *GitCommitTool {
	return &GitCommitTool{executor: executor, workRoot: workRoot}
}

func (t *GitCommitTool) Name() string { return NameGitCommit }

func (t *GitCommitTool) PromptDocumentation() string {
	return `- **git_commit** - Create a git commit from the current working tree changes
  - Parameters: message (string, REQUIRED)
  - Requires human approval before it runs`
}

func (t *GitCommitTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameGitCommit,
		Description: "Stage all changes and create a git commit with the given message.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"message": {Type: "string", Description: "Commit message"},
			},
			Required: []string{"message"},
		},
	}
}

func (t *GitCommitTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	message, ok := args["message"].(string)
	if !ok || message == "" {
		return nil, fmt.Errorf("message is required and must be a string")
	}

	script := fmt.Sprintf("cd %s && git add -A && git commit -m '%s'",
		escapeSingleQuote(t.workRoot), escapeSingleQuote(message))
	opts := execpkg.DefaultOpts()
	result, err := t.executor.Run(ctx, []string{"sh", "-c", script}, &opts)
	if err != nil {
		return errResult(fmt.Sprintf("commit failed to run: %v", err))
	}
	if result.ExitCode != 0 {
		return errResult(fmt.Sprintf("commit failed: %s", strings.TrimSpace(result.Stderr+result.Stdout)))
	}
	return okResult(map[string]any{"committed": true, "output": result.Stdout})
}

// GitPushTool pushes committed changes to the configured remote.
// Sensitive: it affects shared state outside the workspace.
type GitPushTool struct {
	executor execpkg.Executor
	workRoot string
}

func NewGitPushTool(executor execpkg.Executor, workRoot string) *GitPushTool {
	return &GitPushTool{executor: executor, workRoot: workRoot}
}

func (t *GitPushTool) Name() string { return NameGitPush }

func (t *GitPushTool) PromptDocumentation() string {
	return `- **git_push** - Push committed changes to the configured remote
  - Parameters: none
  - Requires human approval before it runs`
}

func (t *GitPushTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameGitPush,
		Description: "Push the current branch's committed changes to its upstream remote.",
		InputSchema: InputSchema{Type: "object"},
	}
}

func (t *GitPushTool) Exec(ctx context.Context, _ map[string]any) (*ExecResult, error) {
	script := fmt.Sprintf("cd %s && git push", escapeSingleQuote(t.workRoot))
	opts := execpkg.DefaultOpts()
	result, err := t.executor.Run(ctx, []string{"sh", "-c", script}, &opts)
	if err != nil {
		return errResult(fmt.Sprintf("push failed to run: %v", err))
	}
	if result.ExitCode != 0 {
		return errResult(fmt.Sprintf("push failed: %s", strings.TrimSpace(result.Stderr+result.Stdout)))
	}
	return okResult(map[string]any{"pushed": true, "output": result.Stdout})
}
