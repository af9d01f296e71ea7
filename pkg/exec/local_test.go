package exec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocalExec_Run(t *testing.T) {
	executor := NewLocalExec()
	ctx := context.Background()

	result, err := executor.Run(ctx, []string{"echo", "hello"}, DefaultOpts())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Stdout, "hello") {
		t.Errorf("expected stdout to contain 'hello', got %q", result.Stdout)
	}
	if result.ExecutorUsed != "local" {
		t.Errorf("expected executor 'local', got %q", result.ExecutorUsed)
	}
}

func TestLocalExec_NonZeroExit(t *testing.T) {
	executor := NewLocalExec()
	ctx := context.Background()

	result, err := executor.Run(ctx, []string{"sh", "-c", "exit 3"}, DefaultOpts())
	if err != nil {
		t.Fatalf("non-zero exit should not be an execution error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", result.ExitCode)
	}
}

func TestLocalExec_MissingBinary(t *testing.T) {
	executor := NewLocalExec()
	ctx := context.Background()

	result, err := executor.Run(ctx, []string{"definitely-not-a-real-binary-xyz"}, DefaultOpts())
	if err == nil {
		t.Error("expected execution error for missing binary")
	}
	if result.ExitCode != -1 {
		t.Errorf("expected exit code -1, got %d", result.ExitCode)
	}
}

func TestLocalExec_EmptyCommand(t *testing.T) {
	executor := NewLocalExec()
	if _, err := executor.Run(context.Background(), nil, DefaultOpts()); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestLocalExec_MissingWorkDir(t *testing.T) {
	executor := NewLocalExec()
	opts := DefaultOpts()
	opts.WorkDir = "/nonexistent/path/xyz"
	if _, err := executor.Run(context.Background(), []string{"echo"}, opts); err == nil {
		t.Error("expected error for missing working directory")
	}
}

func TestLocalExec_Timeout(t *testing.T) {
	executor := NewLocalExec()
	opts := DefaultOpts()
	opts.Timeout = 50 * time.Millisecond

	result, _ := executor.Run(context.Background(), []string{"sleep", "5"}, opts)
	if result.ExitCode == 0 {
		t.Error("expected non-zero exit code after timeout")
	}
}
