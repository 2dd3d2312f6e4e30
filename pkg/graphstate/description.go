package graphstate

import "fmt"

// DescribeAction derives a short, human-legible sentence for the approval
// UI from a tool name and its arguments. The description is purely
// cosmetic; toolName and toolArgs remain the authoritative inputs to the
// approved resumption.
func DescribeAction(toolName string, toolArgs map[string]any) string {
	switch toolName {
	case "write_file":
		return fmt.Sprintf("Write to file: %s", stringArg(toolArgs, "path"))
	case "delete_path":
		return fmt.Sprintf("Delete: %s", stringArg(toolArgs, "path"))
	case "create_directory":
		return fmt.Sprintf("Create directory: %s", stringArg(toolArgs, "path"))
	case "shell": // tools.NameShell; kept as a literal to avoid a pkg/tools import here
		return fmt.Sprintf("Execute shell command: %s", stringArg(toolArgs, "command"))
	case "git_commit":
		return fmt.Sprintf("Commit with message: %s", stringArg(toolArgs, "message"))
	case "git_push":
		return "Push commits to remote"
	case "apply_patch":
		return "Apply a code patch"
	default:
		return fmt.Sprintf("Execute %s", toolName)
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return "<unknown>"
}
