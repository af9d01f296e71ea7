// Package pipeline sequences the per-task acceptance flow: generate,
// validate imports, install approved dependencies, review, and retry
// within explicit budgets. Each task runs an auditable state machine;
// one task's exhaustion never aborts the run.
package pipeline

import "fmt"

// State is one named step of the per-task state machine.
type State string

const (
	// StateGenerating requests code from the generation collaborator.
	StateGenerating State = "GENERATING"
	// StateValidatingImports classifies the attempt's imports.
	StateValidatingImports State = "VALIDATING_IMPORTS"
	// StateInstallingDependencies installs consent-approved packages.
	StateInstallingDependencies State = "INSTALLING_DEPENDENCIES"
	// StateReviewing requests a verdict on the current file set.
	StateReviewing State = "REVIEWING"
	// StateRetrying re-enters generation with accumulated feedback.
	StateRetrying State = "RETRYING"
	// StatePassed is the successful terminal state.
	StatePassed State = "PASSED"
	// StateFailed is the unsuccessful terminal state. The task's last
	// changes and issues are still reported.
	StateFailed State = "FAILED"
)

// TaskTransitions is the canonical transition map for the per-task
// state machine. Any code or test must match it exactly.
//
//nolint:gochecknoglobals // Single source of truth for the state machine
var TaskTransitions = map[State][]State{
	// Generation produces files for validation, or fails terminally on
	// a collaborator error.
	StateGenerating: {StateValidatingImports, StateFailed},

	// Clean imports go straight to review. Approved missing packages go
	// to installation. Rejections and substitutions trigger a bounded
	// retry, or terminal failure when the bound is spent.
	StateValidatingImports: {StateReviewing, StateInstallingDependencies, StateRetrying, StateFailed},

	// A fully satisfied install proceeds to review; a failed install
	// feeds back into a retry (or terminal failure once bounded out).
	StateInstallingDependencies: {StateReviewing, StateRetrying, StateFailed},

	// Review passes, retries within the review budget, or exhausts it.
	StateReviewing: {StatePassed, StateRetrying, StateFailed},

	// A retry always re-enters generation.
	StateRetrying: {StateGenerating},
}

// IsValidTransition reports whether from -> to is allowed.
func IsValidTransition(from, to State) bool {
	for _, allowed := range TaskTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state ends the task.
func IsTerminal(state State) bool {
	return state == StatePassed || state == StateFailed
}

// transition validates and performs a state change, panicking on a
// transition the table does not allow: that is a programming error, not
// a runtime condition.
func (p *Pipeline) transition(taskID string, from, to State) State {
	if !IsValidTransition(from, to) {
		panic(fmt.Sprintf("invalid task transition %s -> %s", from, to))
	}
	p.logger.Debug("task %s: %s -> %s", taskID, from, to)
	return to
}
