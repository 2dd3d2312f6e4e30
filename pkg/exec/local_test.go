package exec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLocalExec_Name(t *testing.T) {
	e := NewLocalExec()
	if e.Name() != "local" {
		t.Errorf("expected name 'local', got %s", e.Name())
	}
}

func TestLocalExec_Available(t *testing.T) {
	e := NewLocalExec()
	if !e.Available() {
		t.Error("LocalExec should always be available")
	}
}

func TestLocalExec_Run_Success(t *testing.T) {
	e := NewLocalExec()
	ctx := context.Background()

	opts := DefaultOpts()
	result, err := e.Run(ctx, []string{"echo", "hello world"}, &opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "hello world" {
		t.Errorf("expected stdout 'hello world', got %s", result.Stdout)
	}
	if result.ExecutorUsed != "local" {
		t.Errorf("expected executor 'local', got %s", result.ExecutorUsed)
	}
	if result.Duration <= 0 {
		t.Error("expected positive duration")
	}
}

func TestLocalExec_Run_Failure(t *testing.T) {
	e := NewLocalExec()
	ctx := context.Background()

	opts := DefaultOpts()
	result, err := e.Run(ctx, []string{"false"}, &opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", result.ExitCode)
	}
}

func TestLocalExec_Run_EmptyCommand(t *testing.T) {
	e := NewLocalExec()
	ctx := context.Background()

	opts := DefaultOpts()
	if _, err := e.Run(ctx, []string{}, &opts); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestLocalExec_Run_NilOpts(t *testing.T) {
	e := NewLocalExec()
	ctx := context.Background()

	result, err := e.Run(ctx, []string{"echo", "ok"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestLocalExec_Run_WorkingDirectory(t *testing.T) {
	e := NewLocalExec()
	ctx := context.Background()

	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test.txt")
	if err := os.WriteFile(testFile, []byte("test content"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	opts := DefaultOpts()
	opts.WorkDir = tempDir

	result, err := e.Run(ctx, []string{"ls", "test.txt"}, &opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Stdout, "test.txt") {
		t.Errorf("expected stdout to contain 'test.txt', got %s", result.Stdout)
	}
}

func TestLocalExec_Run_NonExistentWorkingDirectory(t *testing.T) {
	e := NewLocalExec()
	ctx := context.Background()

	opts := DefaultOpts()
	opts.WorkDir = "/nonexistent/directory"

	_, err := e.Run(ctx, []string{"echo", "test"}, &opts)
	if err == nil {
		t.Error("expected error for non-existent working directory")
	}
	if !strings.Contains(err.Error(), "working directory does not exist") {
		t.Errorf("expected working directory error, got: %v", err)
	}
}

func TestLocalExec_Run_Environment(t *testing.T) {
	e := NewLocalExec()
	ctx := context.Background()

	opts := DefaultOpts()
	opts.Env = []string{"TEST_VAR=hello world"}

	result, err := e.Run(ctx, []string{"sh", "-c", "echo $TEST_VAR"}, &opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "hello world" {
		t.Errorf("expected stdout 'hello world', got %s", result.Stdout)
	}
}

func TestLocalExec_Run_Timeout(t *testing.T) {
	e := NewLocalExec()
	ctx := context.Background()

	opts := DefaultOpts()
	opts.Timeout = 100 * time.Millisecond

	result, err := e.Run(ctx, []string{"sleep", "1"}, &opts)

	timeoutOccurred := false
	if err != nil {
		if strings.Contains(err.Error(), "context deadline exceeded") ||
			strings.Contains(err.Error(), "signal: killed") {
			timeoutOccurred = true
		} else {
			t.Errorf("expected timeout-related error, got: %v", err)
		}
	}
	if !timeoutOccurred && result.ExitCode != -1 {
		t.Errorf("expected timeout to occur (error or exit code -1), got exit code %d", result.ExitCode)
	}
	if result.Duration > 2*opts.Timeout {
		t.Errorf("expected duration around %v, got %v", opts.Timeout, result.Duration)
	}
}

func TestLocalExec_Run_Stderr(t *testing.T) {
	e := NewLocalExec()
	ctx := context.Background()

	opts := DefaultOpts()
	result, err := e.Run(ctx, []string{"sh", "-c", "echo 'error message' >&2"}, &opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Stderr, "error message") {
		t.Errorf("expected stderr to contain 'error message', got %s", result.Stderr)
	}
}

func TestDefaultOpts(t *testing.T) {
	opts := DefaultOpts()
	if opts.Timeout != 5*time.Minute {
		t.Errorf("expected timeout 5m, got %v", opts.Timeout)
	}
}
