// Package pkgmgr detects the project's package manager, backs up the
// manifest and lock file around install attempts, and runs installs with
// categorized failures suitable for feeding back to code generation.
package pkgmgr

import (
	"fmt"
	"strings"
)

// ErrorCategory classifies installer failures.
type ErrorCategory string

const (
	// ErrInvalidArgument means a package name failed validation before
	// any file system or subprocess work happened.
	ErrInvalidArgument ErrorCategory = "invalid_argument"
	// ErrExecutionFailed means the installer binary itself could not run.
	ErrExecutionFailed ErrorCategory = "execution_failed"
	// ErrInstallFailed means the installer ran and exited non-zero.
	ErrInstallFailed ErrorCategory = "install_failed"
	// ErrMultipleLockFiles means more than one manager's lock file is
	// present and detection refuses to guess.
	ErrMultipleLockFiles ErrorCategory = "multiple_lock_files"
)

// Error is a categorized installer failure.
type Error struct {
	Category ErrorCategory
	Message  string
	// ExitCode is set for install_failed.
	ExitCode int
	// Packages are the names involved in the failed operation.
	Packages []string
	// Causes enumerates candidate root causes for install_failed.
	Causes []string
}

func (e *Error) Error() string {
	if e.Category == ErrInstallFailed {
		return fmt.Sprintf("%s (exit code %d): %s", e.Category, e.ExitCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// installFailureCauses are the candidate explanations reported with every
// non-zero install exit.
var installFailureCauses = []string{
	"package name typo",
	"version conflict",
	"peer dependency conflict",
	"network failure",
}

// Feedback renders the failure as instruction text for the code
// generator: whatever the category, the generator should rewrite without
// the involved packages.
func (e *Error) Feedback() string {
	var b strings.Builder
	switch e.Category {
	case ErrInvalidArgument:
		fmt.Fprintf(&b, "The package name(s) %s are invalid and cannot be installed.", strings.Join(e.Packages, ", "))
	case ErrExecutionFailed:
		fmt.Fprintf(&b, "The package manager could not be executed (%s).", e.Message)
	case ErrInstallFailed:
		fmt.Fprintf(&b, "Installing %s failed with exit code %d. Possible causes: %s.",
			strings.Join(e.Packages, ", "), e.ExitCode, strings.Join(e.Causes, ", "))
	default:
		fmt.Fprintf(&b, "Dependency installation failed: %s.", e.Message)
	}
	b.WriteString(" Write the code without these packages, using platform builtins or manual implementations instead.")
	return b.String()
}

func newInvalidArgument(packages []string, msg string) *Error {
	return &Error{Category: ErrInvalidArgument, Message: msg, Packages: packages}
}

func newExecutionFailed(packages []string, msg string) *Error {
	return &Error{Category: ErrExecutionFailed, Message: msg, Packages: packages}
}

func newInstallFailed(packages []string, exitCode int, stderr string) *Error {
	return &Error{
		Category: ErrInstallFailed,
		Message:  strings.TrimSpace(stderr),
		ExitCode: exitCode,
		Packages: packages,
		Causes:   installFailureCauses,
	}
}
