package logx

import (
	"errors"
	"testing"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("pipeline")
	if logger.GetComponent() != "pipeline" {
		t.Errorf("expected component 'pipeline', got %q", logger.GetComponent())
	}
}

func TestWithComponent(t *testing.T) {
	logger := NewLogger("pipeline")
	child := logger.WithComponent("consent")
	if child.GetComponent() != "consent" {
		t.Errorf("expected component 'consent', got %q", child.GetComponent())
	}
	if logger.GetComponent() != "pipeline" {
		t.Error("WithComponent must not mutate the original logger")
	}
}

func TestDebugDomainFiltering(t *testing.T) {
	defer SetDebug(false, nil)

	SetDebug(true, []string{"consent"})
	if !IsDebugEnabledForDomain("consent") {
		t.Error("consent domain should be enabled")
	}
	if IsDebugEnabledForDomain("pipeline") {
		t.Error("pipeline domain should be disabled")
	}

	SetDebug(true, nil)
	if !IsDebugEnabledForDomain("pipeline") {
		t.Error("all domains should be enabled with nil domain list")
	}

	SetDebug(false, nil)
	if IsDebugEnabledForDomain("consent") {
		t.Error("no domain should be enabled when debug is off")
	}
}

func TestErrorf(t *testing.T) {
	err := Errorf("operation failed: %d", 42)
	if err == nil {
		t.Fatal("Errorf must return an error")
	}
	if err.Error() != "operation failed: 42" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("disk full")
	wrapped := Wrap(base, "consent store write")
	if wrapped == nil {
		t.Fatal("Wrap must return an error for non-nil input")
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error must unwrap to the original")
	}
	if Wrap(nil, "noop") != nil {
		t.Error("Wrap(nil) must return nil")
	}
}
