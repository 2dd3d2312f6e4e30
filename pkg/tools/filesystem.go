package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	execpkg "graphcore/pkg/exec"
)

const (
	defaultReadLines = 2000
	maxLineLength    = 2000
)

// blockedSystemPaths are refused unconditionally, even when they fall
// underneath an otherwise-allowed root. Grounded on
// original_source/backend/tools/path_validation.py's SECURITY_CONFIG
// ("blocked_paths"); the comparison there is a case-insensitive prefix
// match, reproduced below.
//
//nolint:gochecknoglobals // security table, intentionally package-level
var blockedSystemPaths = []string{
	`C:\Windows`,
	`C:\Program Files`,
	`C:\Program Files (x86)`,
	`C:\ProgramData`,
	"/etc",
	"/usr/bin",
	"/usr/sbin",
	"/bin",
	"/sbin",
	"/system",
}

// allowedRoots returns the directories a resolved path must fall under:
// the worker's own workspace root plus the process user's home
// directory, mirroring path_validation.py's
// allowed_directories = [Path.home(), Path.cwd()].
func allowedRoots(workRoot string) []string {
	roots := []string{workRoot}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		roots = append(roots, home)
	}
	return roots
}

func withinRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

// resolveWorkspacePath resolves path against root, then enforces
// path_validation.py's two-stage check: blocked system directories are
// refused unconditionally, and whatever remains must fall under one of
// allowedRoots. An absolute path is honored as given (validated the
// same way); a relative one is joined onto root.
func resolveWorkspacePath(root, path string) (string, error) {
	clean := filepath.Clean(path)
	var full string
	if filepath.IsAbs(clean) {
		full = clean
	} else {
		full = filepath.Join(root, clean)
	}

	lowered := strings.ToLower(full)
	for _, blocked := range blockedSystemPaths {
		if strings.HasPrefix(lowered, strings.ToLower(blocked)) {
			return "", fmt.Errorf("access to system directory %q is not permitted: %s", blocked, path)
		}
	}

	for _, allowed := range allowedRoots(root) {
		if withinRoot(allowed, full) {
			return full, nil
		}
	}
	return "", fmt.Errorf("path escapes the allowed directories (workspace root or home): %s", path)
}

func createListDirectoryTool(ctx AgentContext) (Tool, error) {
	return NewListDirectoryTool(ctx.Executor, ctx.WorkDir), nil
}

func createReadFileTool(ctx AgentContext) (Tool, error) {
	return NewReadFileTool(ctx.Executor, ctx.WorkDir, 0), nil
}

func createWriteFileTool(ctx AgentContext) (Tool, error) {
	return NewWriteFileTool(ctx.Executor, ctx.WorkDir), nil
}

func createDeletePathTool(ctx AgentContext) (Tool, error) {
	return NewDeletePathTool(ctx.Executor, ctx.WorkDir), nil
}

func createCreateDirectoryTool(ctx AgentContext) (Tool, error) {
	return NewCreateDirectoryTool(ctx.Executor, ctx.WorkDir), nil
}

// ListDirectoryTool lists workspace directory contents.
type ListDirectoryTool struct {
	executor execpkg.Executor
	workRoot string
}

func NewListDirectoryTool(executor execpkg.Executor, workRoot string) *ListDirectoryTool {
	if workRoot == "" {
		workRoot = "/workspace"
	}
	return &ListDirectoryTool{executor: executor, workRoot: workRoot}
}

func (t *ListDirectoryTool) Name() string { return NameListDirectory }

func (t *ListDirectoryTool) PromptDocumentation() string {
	return `- **list_directory** - List the contents of a directory within the workspace
  - Parameters: path (string, optional, default ".")
  - Returns entry names with a trailing "/" for subdirectories`
}

func (t *ListDirectoryTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameListDirectory,
		Description: "List the contents of a directory within the workspace.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {Type: "string", Description: "Relative path within the workspace. Defaults to the workspace root."},
			},
		},
	}
}

func (t *ListDirectoryTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	full, err := resolveWorkspacePath(t.workRoot, path)
	if err != nil {
		return errResult(err.Error())
	}

	result, err := t.executor.Run(ctx, []string{"ls", "-pa", full}, &execpkg.Opts{})
	if err != nil {
		return errResult(fmt.Sprintf("directory not found or not readable: %s (%v)", path, err))
	}
	if result.ExitCode != 0 {
		return errResult(fmt.Sprintf("directory not found or not readable: %s (%s)", path, result.Stderr))
	}

	entries := []string{}
	for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "./" || line == "../" {
			continue
		}
		entries = append(entries, line)
	}
	return okResult(map[string]any{"path": path, "entries": entries})
}

// ReadFileTool reads file contents as numbered lines (cat -n style).
type ReadFileTool struct {
	executor     execpkg.Executor
	workRoot     string
	maxSizeBytes int64
}

func NewReadFileTool(executor execpkg.Executor, workRoot string, maxSizeBytes int64) *ReadFileTool {
	if maxSizeBytes <= 0 {
		maxSizeBytes = 1 << 20
	}
	if workRoot == "" {
		workRoot = "/workspace"
	}
	return &ReadFileTool{executor: executor, workRoot: workRoot, maxSizeBytes: maxSizeBytes}
}

func (t *ReadFileTool) Name() string { return NameReadFile }

func (t *ReadFileTool) PromptDocumentation() string {
	return `- **read_file** - Read contents of a file from the workspace
  - Parameters:
    - path (string, REQUIRED): relative path to file within workspace
    - offset (integer, optional): line number to start from (1-based, default: 1)
    - limit (integer, optional): number of lines to read (default: 2000)
  - Output uses numbered lines (cat -n format)`
}

func (t *ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameReadFile,
		Description: "Read contents of a file from the workspace. Output uses numbered lines. For large files, use offset and limit to read specific sections.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path":   {Type: "string", Description: "Relative path to file within workspace"},
				"offset": {Type: "integer", Description: "Line number to start reading from (1-based). Defaults to 1."},
				"limit":  {Type: "integer", Description: "Number of lines to read. Defaults to 2000."},
			},
			Required: []string{"path"},
		},
	}
}

func intArgOrDefault(args map[string]any, key string, defaultVal int) int {
	v, exists := args[key]
	if !exists {
		return defaultVal
	}
	var n int
	switch val := v.(type) {
	case float64:
		n = int(val)
	case int:
		n = val
	case int64:
		n = int(val)
	default:
		return defaultVal
	}
	if n < 1 {
		return defaultVal
	}
	return n
}

func (t *ReadFileTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("path is required and must be a string")
	}
	offset := intArgOrDefault(args, "offset", 1)
	limit := intArgOrDefault(args, "limit", defaultReadLines)

	full, err := resolveWorkspacePath(t.workRoot, path)
	if err != nil {
		return errResult(err.Error())
	}

	endLine := offset + limit - 1
	awkScript := fmt.Sprintf(
		`awk 'NR>=%d && NR<=%d { printf "%%6d\t%%s\n", NR, substr($0, 1, %d) } END { printf "\n__TOTAL_LINES__%%d\n", NR }' '%s'`,
		offset, endLine, maxLineLength, strings.ReplaceAll(full, "'", "'\"'\"'"),
	)
	result, err := t.executor.Run(ctx, []string{"sh", "-c", awkScript}, &execpkg.Opts{})
	if err != nil {
		return errResult(fmt.Sprintf("file not found or not readable: %s (%v)", path, err))
	}
	if result.ExitCode != 0 {
		detail := result.Stderr
		if detail == "" {
			detail = result.Stdout
		}
		return errResult(fmt.Sprintf("file not found or not readable: %s (%s)", path, detail))
	}

	output := result.Stdout
	totalLines := 0
	truncated := false
	if idx := strings.LastIndex(output, "\n__TOTAL_LINES__"); idx >= 0 {
		lineCountStr := strings.TrimSpace(output[idx+len("\n__TOTAL_LINES__"):])
		output = output[:idx]
		if _, scanErr := fmt.Sscanf(lineCountStr, "%d", &totalLines); scanErr == nil {
			truncated = totalLines > endLine
		}
	}
	if int64(len(output)) > t.maxSizeBytes {
		output = output[:t.maxSizeBytes]
		truncated = true
	}

	return okResult(map[string]any{
		"content":     output,
		"path":        path,
		"truncated":   truncated,
		"offset":      offset,
		"limit":       limit,
		"total_lines": totalLines,
	})
}

// WriteFileTool creates or overwrites a file. Always sensitive: it
// mutates the workspace.
type WriteFileTool struct {
	executor execpkg.Executor
	workRoot string
}

func NewWriteFileTool(executor execpkg.Executor, workRoot string) *WriteFileTool {
	if workRoot == "" {
		workRoot = "/workspace"
	}
	return &WriteFileTool{executor: executor, workRoot: workRoot}
}

func (t *WriteFileTool) Name() string { return NameWriteFile }

func (t *WriteFileTool) PromptDocumentation() string {
	return `- **write_file** - Write content to a file, creating or overwriting it
  - Parameters: path (string, REQUIRED), content (string, REQUIRED)`
}

func (t *WriteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameWriteFile,
		Description: "Write content to a file within the workspace, creating it (and any parent directories) or overwriting it if it exists.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path":    {Type: "string", Description: "Relative path to file within workspace"},
				"content": {Type: "string", Description: "Full content to write"},
			},
			Required: []string{"path", "content"},
		},
	}
}

func (t *WriteFileTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("path is required and must be a string")
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content is required and must be a string")
	}
	full, err := resolveWorkspacePath(t.workRoot, path)
	if err != nil {
		return errResult(err.Error())
	}

	script := fmt.Sprintf("mkdir -p \"$(dirname '%s')\" && cat > '%s' <<'__GRAPHCORE_EOF__'\n%s\n__GRAPHCORE_EOF__\n",
		escapeSingleQuote(full), escapeSingleQuote(full), content)
	result, err := t.executor.Run(ctx, []string{"sh", "-c", script}, &execpkg.Opts{})
	if err != nil {
		return errResult(fmt.Sprintf("write failed: %s (%v)", path, err))
	}
	if result.ExitCode != 0 {
		return errResult(fmt.Sprintf("write failed: %s (%s)", path, result.Stderr))
	}
	return okResult(map[string]any{"path": path, "bytes_written": len(content)})
}

// DeletePathTool removes a file or directory. Always sensitive.
type DeletePathTool struct {
	executor execpkg.Executor
	workRoot string
}

func NewDeletePathTool(executor execpkg.Executor, workRoot string) *DeletePathTool {
	if workRoot == "" {
		workRoot = "/workspace"
	}
	return &DeletePathTool{executor: executor, workRoot: workRoot}
}

func (t *DeletePathTool) Name() string { return NameDeletePath }

func (t *DeletePathTool) PromptDocumentation() string {
	return `- **delete_path** - Delete a file or directory within the workspace
  - Parameters: path (string, REQUIRED)`
}

func (t *DeletePathTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameDeletePath,
		Description: "Delete a file or directory (recursively) within the workspace.",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{"path": {Type: "string", Description: "Relative path to delete"}},
			Required:   []string{"path"},
		},
	}
}

func (t *DeletePathTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("path is required and must be a string")
	}
	if path == "." || path == "/" {
		return errResult("refusing to delete the workspace root")
	}
	full, err := resolveWorkspacePath(t.workRoot, path)
	if err != nil {
		return errResult(err.Error())
	}

	result, err := t.executor.Run(ctx, []string{"rm", "-rf", full}, &execpkg.Opts{})
	if err != nil {
		return errResult(fmt.Sprintf("delete failed: %s (%v)", path, err))
	}
	if result.ExitCode != 0 {
		return errResult(fmt.Sprintf("delete failed: %s (%s)", path, result.Stderr))
	}
	return okResult(map[string]any{"path": path, "deleted": true})
}

// CreateDirectoryTool creates a directory (and parents). Always sensitive.
type CreateDirectoryTool struct {
	executor execpkg.Executor
	workRoot string
}

func NewCreateDirectoryTool(executor execpkg.Executor, workRoot string) *CreateDirectoryTool {
	if workRoot == "" {
		workRoot = "/workspace"
	}
	return &CreateDirectoryTool{executor: executor, workRoot: workRoot}
}

func (t *CreateDirectoryTool) Name() string { return NameCreateDirectory }

func (t *CreateDirectoryTool) PromptDocumentation() string {
	return `- **create_directory** - Create a directory (and parents) within the workspace
  - Parameters: path (string, REQUIRED)`
}

func (t *CreateDirectoryTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        NameCreateDirectory,
		Description: "Create a directory within the workspace, including any missing parent directories.",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{"path": {Type: "string", Description: "Relative path to create"}},
			Required:   []string{"path"},
		},
	}
}

func (t *CreateDirectoryTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("path is required and must be a string")
	}
	full, err := resolveWorkspacePath(t.workRoot, path)
	if err != nil {
		return errResult(err.Error())
	}

	result, err := t.executor.Run(ctx, []string{"mkdir", "-p", full}, &execpkg.Opts{})
	if err != nil {
		return errResult(fmt.Sprintf("create_directory failed: %s (%v)", path, err))
	}
	if result.ExitCode != 0 {
		return errResult(fmt.Sprintf("create_directory failed: %s (%s)", path, result.Stderr))
	}
	return okResult(map[string]any{"path": path, "created": true})
}

func escapeSingleQuote(s string) string {
	return strings.ReplaceAll(s, "'", "'\"'\"'")
}

// okResult and errResult build the {success, ...} JSON envelope every tool
// result uses, matching the teacher's "let the LLM see what went wrong"
// error-handling idiom instead of returning (nil, error) for runtime
// failures.
func okResult(fields map[string]any) (*ExecResult, error) {
	fields["success"] = true
	content, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &ExecResult{Content: string(content)}, nil
}

func errResult(msg string) (*ExecResult, error) {
	content, err := json.Marshal(map[string]any{"success": false, "error": msg})
	if err != nil {
		return nil, fmt.Errorf("marshal error result: %w", err)
	}
	return &ExecResult{Content: string(content)}, nil
}
