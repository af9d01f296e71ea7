// Package proto defines the shared data model passed between the planner,
// the pipeline, and the staging layer.
package proto

import (
	"fmt"
	"time"
)

// Task is one unit of planned work produced by the planning stage.
// DependsOn may only reference tasks that appear earlier in the plan;
// the pipeline trusts this ordering and does not recompute it.
type Task struct {
	ID             string   `json:"id" yaml:"id"`
	Title          string   `json:"title" yaml:"title"`
	Description    string   `json:"description" yaml:"description"`
	DependsOn      []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	EstimatedFiles []string `json:"estimated_files,omitempty" yaml:"estimated_files,omitempty"`
}

// FileChange is a single proposed file edit produced by one generation
// attempt. A later attempt's FileChange for the same path supersedes it.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Diff    string `json:"diff,omitempty"`
}

// Severity classifies a review issue.
type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
)

// ReviewIssue is a single finding from the review stage.
type ReviewIssue struct {
	Severity     Severity `json:"severity"`
	File         string   `json:"file"`
	Description  string   `json:"description"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
}

// ReviewResult is the reviewer's verdict on one generation attempt.
// Passed is asserted by the reviewer; the pipeline does not recompute it
// from the issue list but still surfaces every issue to the caller.
type ReviewResult struct {
	Passed  bool          `json:"passed"`
	Issues  []ReviewIssue `json:"issues"`
	Summary string        `json:"summary"`
}

// ErrorIssues returns the subset of issues with error severity.
func (r *ReviewResult) ErrorIssues() []ReviewIssue {
	var out []ReviewIssue
	for i := range r.Issues {
		if r.Issues[i].Severity == SeverityError {
			out = append(out, r.Issues[i])
		}
	}
	return out
}

// AlternativeInfo describes a platform built-in that can substitute for a
// third-party package.
type AlternativeInfo struct {
	Module      string `json:"module"`
	Description string `json:"description"`
	Example     string `json:"example"`
	MinVersion  string `json:"min_version,omitempty"`
}

// ImportValidationResult is the outcome of classifying one attempt's
// imports. Computed fresh per validation call; never persisted.
type ImportValidationResult struct {
	Valid            bool                       `json:"valid"`
	MissingPackages  []string                   `json:"missing_packages"`
	SuggestedFixes   []string                   `json:"suggested_fixes"`
	Alternatives     map[string]AlternativeInfo `json:"alternatives,omitempty"`
	ApprovedPackages []string                   `json:"approved_packages,omitempty"`
	RejectedPackages []string                   `json:"rejected_packages,omitempty"`
}

// ConsentScope is the durability of an approval decision.
type ConsentScope string

const (
	ScopeOnce    ConsentScope = "once"
	ScopeSession ConsentScope = "session"
	ScopeProject ConsentScope = "project"
)

// ConsentResponseKind enumerates the possible answers to a consent prompt.
type ConsentResponseKind string

const (
	ConsentApproveOnce    ConsentResponseKind = "approve_once"
	ConsentApproveSession ConsentResponseKind = "approve_session"
	ConsentApproveProject ConsentResponseKind = "approve_project"
	ConsentReject         ConsentResponseKind = "reject"
	ConsentSubstitute     ConsentResponseKind = "substitute"
)

// ConsentResponse is the answer returned by a prompt surface.
// Alternative is set only for ConsentSubstitute.
type ConsentResponse struct {
	Kind        ConsentResponseKind `json:"kind"`
	Alternative string              `json:"alternative,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}

// ConsentDecision is one recorded approval decision.
type ConsentDecision struct {
	Package   string       `json:"package"`
	Scope     ConsentScope `json:"scope"`
	Timestamp time.Time    `json:"timestamp"`
	Reason    string       `json:"reason,omitempty"`
}

// MaxConsentDecisions bounds the durable audit log; oldest entries are
// evicted first.
const MaxConsentDecisions = 100

// ConsentSchemaVersion is the current on-disk consent document version.
const ConsentSchemaVersion = 1

// ProjectConsent is the durable per-project approval record.
// ApprovedPackages is a deduplicated set.
type ProjectConsent struct {
	Version          int               `json:"version"`
	ApprovedPackages []string          `json:"approved_packages"`
	Decisions        []ConsentDecision `json:"decisions"`
}

// TaskStatus is the terminal status of one task's pipeline run.
type TaskStatus string

const (
	TaskStatusPassed TaskStatus = "passed"
	TaskStatusFailed TaskStatus = "failed"
)

// TaskOutcome is the complete, never-silently-dropped result of one task:
// its last generated changes and outstanding issues are carried even when
// the task failed.
type TaskOutcome struct {
	Task          Task          `json:"task"`
	Status        TaskStatus    `json:"status"`
	Attempts      int           `json:"attempts"`
	Changes       []FileChange  `json:"changes,omitempty"`
	Issues        []ReviewIssue `json:"issues,omitempty"`
	ReviewSummary string        `json:"review_summary,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// RunResult aggregates all task outcomes for one invocation.
// Success is true iff every task's review passed.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Request   string        `json:"request"`
	Success   bool          `json:"success"`
	Outcomes  []TaskOutcome `json:"outcomes"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ValidateOrdering checks the planner's dependency-ordering invariant:
// every DependsOn entry must reference a task that appears earlier in the
// list. The pipeline consumes this invariant, it does not repair it.
func ValidateOrdering(tasks []Task) error {
	seen := make(map[string]bool, len(tasks))
	for i := range tasks {
		task := &tasks[i]
		if task.ID == "" {
			return fmt.Errorf("task %d has no id", i)
		}
		if seen[task.ID] {
			return fmt.Errorf("duplicate task id %q", task.ID)
		}
		for _, dep := range task.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("task %q depends on %q which does not appear earlier in the plan", task.ID, dep)
			}
		}
		seen[task.ID] = true
	}
	return nil
}
