package tools

import (
	"context"
	"testing"

	execpkg "graphcore/pkg/exec"
)

func TestResolveWorkspacePath_RejectsTraversal(t *testing.T) {
	if _, err := resolveWorkspacePath("/workspace", "../etc/passwd"); err == nil {
		t.Error("expected traversal to be rejected")
	}
}

func TestResolveWorkspacePath_Joins(t *testing.T) {
	full, err := resolveWorkspacePath("/workspace", "src/main.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full != "/workspace/src/main.go" {
		t.Errorf("got %q, want /workspace/src/main.go", full)
	}
}

func TestResolveWorkspacePath_BlocksSystemDirectoryUnconditionally(t *testing.T) {
	if _, err := resolveWorkspacePath("/workspace", "/etc/passwd"); err == nil {
		t.Error("expected /etc to be refused even as an absolute path")
	}
}

func TestResolveWorkspacePath_BlocksSystemDirectoryReachedViaRoot(t *testing.T) {
	// A workspace root that is itself inside a blocked tree must still
	// refuse access; blocked wins even inside an otherwise-allowed root.
	if _, err := resolveWorkspacePath("/etc", "passwd"); err == nil {
		t.Error("expected a workspace root under /etc to be refused")
	}
}

func TestResolveWorkspacePath_RejectsOutsideAllowedRoots(t *testing.T) {
	if _, err := resolveWorkspacePath("/workspace", "/opt/other-project/secret.txt"); err == nil {
		t.Error("expected a path outside the workspace root and home directory to be refused")
	}
}

func TestWriteFileTool_Exec_RequiresContent(t *testing.T) {
	tool := NewWriteFileTool(&fakeExecutor{}, "/workspace")
	if _, err := tool.Exec(context.Background(), map[string]any{"path": "a.txt"}); err == nil {
		t.Error("expected error for missing content")
	}
}

func TestDeletePathTool_Exec_RefusesRoot(t *testing.T) {
	tool := NewDeletePathTool(&fakeExecutor{}, "/workspace")
	result, err := tool.Exec(context.Background(), map[string]any{"path": "."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !jsonContains(result.Content, `"success":false`) {
		t.Errorf("expected refusal, got: %s", result.Content)
	}
}

func TestCreateDirectoryTool_Exec(t *testing.T) {
	tool := NewCreateDirectoryTool(&fakeExecutor{result: execpkg.Result{ExitCode: 0}}, "/workspace")
	result, err := tool.Exec(context.Background(), map[string]any{"path": "newdir"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !jsonContains(result.Content, `"created":true`) {
		t.Errorf("expected created:true, got: %s", result.Content)
	}
}

func TestListDirectoryTool_Exec(t *testing.T) {
	tool := NewListDirectoryTool(&fakeExecutor{result: execpkg.Result{Stdout: "foo.txt\nbar/\n", ExitCode: 0}}, "/workspace")
	result, err := tool.Exec(context.Background(), map[string]any{"path": "."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !jsonContains(result.Content, "foo.txt") {
		t.Errorf("expected entries in result, got: %s", result.Content)
	}
}
