package tools

import (
	"context"
	"fmt"
	"runtime"

	execpkg "graphcore/pkg/exec"
	"graphcore/pkg/tools/shellsafety"
)

func createShellTool(ctx AgentContext) (Tool, error) {
	if ctx.Executor == nil {
		return nil, fmt.Errorf("shell tool requires an executor")
	}
	return NewShellTool(ctx.Executor, ctx.WorkDir), nil
}

func createGetSystemInfoTool(ctx AgentContext) (Tool, error) {
	return NewGetSystemInfoTool(ctx.Executor), nil
}

// ShellTool runs a shell command, delegating sensitivity classification to
// shellsafety instead of trusting a fixed sensitivity for the tool as a
// whole.
type ShellTool struct {
	executor execpkg.Executor
	workRoot string
}

func NewShellTool(executor execpkg.Executor, workRoot string) *ShellTool {
	return &ShellTool{executor: executor, workRoot: workRoot}
}

func (t *ShellTool) Name() string { return NameShell }

func (t *ShellTool) PromptDocumentation() string {
	return `- **shell** - Execute a shell command and return its output
  - Parameters: command (string, REQUIRED), cwd (string, optional)
  - Read-only/diagnostic commands run immediately; commands that mutate
    shared state (e.g. git push) require human approval`
}

func (t *ShellTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameShell,
		Description: "Execute a shell command and return its stdout, stderr, and exit code.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"command": {Type: "string", Description: "The command line to execute"},
				"cwd":     {Type: "string", Description: "Working directory, relative to the workspace root"},
			},
			Required: []string{"command"},
		},
	}
}

// Classify implements Classifier: the shell tool's sensitivity is a
// function of the command string, not a fixed property of the tool.
func (t *ShellTool) Classify(args map[string]any) (Sensitivity, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return Sensitive, fmt.Errorf("command is required and must be a string")
	}
	sens, err := shellsafety.Classify(command)
	if err != nil {
		return Sensitive, err
	}
	return Sensitivity(sens), nil
}

func (t *ShellTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return nil, fmt.Errorf("command is required and must be a string")
	}
	if _, err := shellsafety.Classify(command); err != nil {
		return errResult(fmt.Sprintf("command rejected: %v", err))
	}

	opts := execpkg.DefaultOpts()
	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		full, err := resolveWorkspacePath(t.workRoot, cwd)
		if err != nil {
			return errResult(err.Error())
		}
		opts.WorkDir = full
	} else {
		opts.WorkDir = t.workRoot
	}

	result, err := t.executor.Run(ctx, []string{"sh", "-c", command}, &opts)
	if err != nil {
		return errResult(fmt.Sprintf("command failed to run: %v", err))
	}
	return okResult(map[string]any{
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
		"exit_code": result.ExitCode,
	})
}

// GetSystemInfoTool reports host OS/arch/CPU information. Always safe.
type GetSystemInfoTool struct {
	executor execpkg.Executor
}

func NewGetSystemInfoTool(executor execpkg.Executor) *GetSystemInfoTool {
	return &GetSystemInfoTool{executor: executor}
}

func (t *GetSystemInfoTool) Name() string { return NameGetSystemInfo }

func (t *GetSystemInfoTool) PromptDocumentation() string {
	return `- **get_system_info** - Report host OS, architecture, and CPU count
  - Parameters: none`
}

func (t *GetSystemInfoTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameGetSystemInfo,
		Description: "Report the host operating system, architecture, and CPU count.",
		InputSchema: InputSchema{Type: "object"},
	}
}

func (t *GetSystemInfoTool) Exec(_ context.Context, _ map[string]any) (*ExecResult, error) {
	return okResult(map[string]any{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"num_cpu":    runtime.NumCPU(),
		"go_version": runtime.Version(),
	})
}
