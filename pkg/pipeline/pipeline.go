package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"codewright/pkg/agents"
	"codewright/pkg/config"
	"codewright/pkg/consent"
	"codewright/pkg/imports"
	"codewright/pkg/logx"
	"codewright/pkg/metrics"
	"codewright/pkg/pkgmgr"
	"codewright/pkg/proto"
)

// maxImportRetries bounds import-feedback regeneration cycles per task.
// A second consecutive import failure means the generator keeps choosing
// the same invalid imports; retrying indefinitely cannot converge.
const maxImportRetries = 1

// Generator is the code generation collaborator boundary.
type Generator interface {
	Generate(ctx context.Context, in agents.GenerateRequest) ([]proto.FileChange, error)
}

// Reviewer is the review collaborator boundary.
type Reviewer interface {
	Review(ctx context.Context, in agents.ReviewRequest) (proto.ReviewResult, error)
}

// DependencyInstaller is the backup-wrapped install boundary.
type DependencyInstaller interface {
	Install(ctx context.Context, packages []string, dev bool) error
	Manager() pkgmgr.Manager
}

// RegistryChecker verifies consent-approved packages are actually
// published before anything is installed.
type RegistryChecker interface {
	FilterExisting(ctx context.Context, names []string) (existing, missing []string)
}

// Deps are the collaborators the pipeline sequences. The pipeline is the
// only component allowed to order them.
type Deps struct {
	Generator Generator
	Reviewer  Reviewer
	Gate      imports.BatchApprover
	Installer DependencyInstaller
	Registry  RegistryChecker
	Recorder  metrics.Recorder
}

// Pipeline runs tasks strictly one at a time through the per-task state
// machine.
type Pipeline struct {
	projectRoot string
	cfg         config.Config
	deps        Deps
	// newlyInstalled accumulates packages installed during this run so
	// later tasks' validations see them.
	newlyInstalled []string
	logger         *logx.Logger
}

// New creates a pipeline for one project.
func New(projectRoot string, cfg config.Config, deps Deps) *Pipeline {
	if deps.Recorder == nil {
		deps.Recorder = metrics.NoopRecorder{}
	}
	return &Pipeline{
		projectRoot: projectRoot,
		cfg:         cfg,
		deps:        deps,
		logger:      logx.NewLogger("pipeline"),
	}
}

// Run executes every task in plan order. Task outcomes are independent:
// one task's failure never stops the rest, and the aggregate succeeds
// iff every review passed. Nothing generated is ever dropped from the
// result.
func (p *Pipeline) Run(ctx context.Context, request string, tasks []proto.Task) proto.RunResult {
	result := proto.RunResult{
		RunID:     uuid.New().String(),
		Request:   request,
		Success:   true,
		StartedAt: time.Now().UTC(),
	}

	for i := range tasks {
		outcome := p.runTask(ctx, request, tasks[i])
		if outcome.Status != proto.TaskStatusPassed {
			result.Success = false
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	result.Duration = time.Since(result.StartedAt)
	p.logger.Info("run %s finished: success=%t, %d task(s)", result.RunID, result.Success, len(result.Outcomes))
	return result
}

// taskAttempt is the mutable state carried across one task's state
// machine steps.
type taskAttempt struct {
	changes         []proto.FileChange
	review          proto.ReviewResult
	reviewFeedback  string
	importFeedback  string
	pendingInstall  []proto.FileChange // changes awaiting review after install
	approvedInstall []string
	attempts        int
	reviewRetries   int
	importFailures  int
	failureReason   string
}

func (p *Pipeline) runTask(ctx context.Context, request string, task proto.Task) proto.TaskOutcome {
	started := time.Now()
	attempt := &taskAttempt{}

	state := StateGenerating
	for !IsTerminal(state) {
		switch state {
		case StateGenerating:
			state = p.stepGenerate(ctx, request, task, attempt)
		case StateValidatingImports:
			state = p.stepValidateImports(ctx, task, attempt)
		case StateInstallingDependencies:
			state = p.stepInstall(ctx, task, attempt)
		case StateReviewing:
			state = p.stepReview(ctx, request, task, attempt)
		case StateRetrying:
			state = p.transition(task.ID, StateRetrying, StateGenerating)
		default:
			panic(fmt.Sprintf("unhandled task state %s", state))
		}
	}

	outcome := proto.TaskOutcome{
		Task:          task,
		Attempts:      attempt.attempts,
		Changes:       attempt.changes,
		Issues:        attempt.review.Issues,
		ReviewSummary: attempt.review.Summary,
		Duration:      time.Since(started),
	}
	if state == StatePassed {
		outcome.Status = proto.TaskStatusPassed
	} else {
		outcome.Status = proto.TaskStatusFailed
		outcome.FailureReason = attempt.failureReason
	}

	p.deps.Recorder.RecordTask(string(outcome.Status), outcome.Attempts, outcome.Duration)
	p.logger.Info("task %s: %s after %d attempt(s)", task.ID, outcome.Status, outcome.Attempts)
	return outcome
}

func (p *Pipeline) stepGenerate(ctx context.Context, request string, task proto.Task, attempt *taskAttempt) State {
	attempt.attempts++
	genStart := time.Now()

	files, err := p.deps.Generator.Generate(ctx, agents.GenerateRequest{
		Task:              task,
		Plan:              request,
		PriorFiles:        attempt.changes,
		ReviewFeedback:    attempt.reviewFeedback,
		ImportFeedback:    attempt.importFeedback,
		KnownDependencies: p.knownDependencies(),
	})
	if err != nil {
		p.deps.Recorder.RecordGeneration(p.cfg.Agents.GeneratorModel, "error", time.Since(genStart))
		attempt.failureReason = fmt.Sprintf("generation failed: %v", err)
		return p.transition(task.ID, StateGenerating, StateFailed)
	}
	p.deps.Recorder.RecordGeneration(p.cfg.Agents.GeneratorModel, "ok", time.Since(genStart))

	// This attempt supersedes the previous one's changes entirely.
	attempt.changes = files
	attempt.reviewFeedback = ""
	attempt.importFeedback = ""
	return p.transition(task.ID, StateGenerating, StateValidatingImports)
}

func (p *Pipeline) stepValidateImports(ctx context.Context, task proto.Task, attempt *taskAttempt) State {
	classifier := imports.NewClassifier(p.knownDependencies())

	var code strings.Builder
	usedIn := make([]string, 0, len(attempt.changes))
	for i := range attempt.changes {
		code.WriteString(attempt.changes[i].Content)
		code.WriteByte('\n')
		usedIn = append(usedIn, attempt.changes[i].Path)
	}

	result, err := classifier.ValidateWithConsent(ctx, code.String(), p.deps.Gate, consent.RequestContext{
		Reason:      fmt.Sprintf("required by task %s (%s)", task.ID, task.Title),
		UsedInFiles: usedIn,
		TaskID:      task.ID,
	})
	if err != nil {
		// Consent-layer trouble degrades to a task failure, never a
		// run abort.
		attempt.failureReason = fmt.Sprintf("import validation failed: %v", err)
		return p.transition(task.ID, StateValidatingImports, StateFailed)
	}

	p.recordConsent(result)

	if result.Valid && len(result.ApprovedPackages) == 0 {
		attempt.importFailures = 0
		return p.transition(task.ID, StateValidatingImports, StateReviewing)
	}

	if len(result.RejectedPackages) > 0 {
		return p.importFailure(task, attempt, buildImportFeedback(result, nil), StateValidatingImports)
	}

	// Everything missing was approved; confirm the packages are
	// actually published before installing.
	existing, unpublished := p.deps.Registry.FilterExisting(ctx, result.ApprovedPackages)
	if len(unpublished) > 0 {
		return p.importFailure(task, attempt, buildImportFeedback(result, unpublished), StateValidatingImports)
	}

	attempt.approvedInstall = existing
	return p.transition(task.ID, StateValidatingImports, StateInstallingDependencies)
}

func (p *Pipeline) stepInstall(ctx context.Context, task proto.Task, attempt *taskAttempt) State {
	packages := attempt.approvedInstall
	attempt.approvedInstall = nil
	manager := p.deps.Installer.Manager().Name

	if err := p.deps.Installer.Install(ctx, packages, false); err != nil {
		var installErr *pkgmgr.Error
		result := "error"
		feedback := fmt.Sprintf("Installing %s failed: %v. Write the code without these packages.", strings.Join(packages, ", "), err)
		if errors.As(err, &installErr) {
			result = string(installErr.Category)
			feedback = installErr.Feedback()
		}
		p.deps.Recorder.RecordInstall(manager, result, len(packages))
		return p.importFailure(task, attempt, feedback, StateInstallingDependencies)
	}

	p.deps.Recorder.RecordInstall(manager, "ok", len(packages))
	p.newlyInstalled = append(p.newlyInstalled, packages...)
	attempt.importFailures = 0
	return p.transition(task.ID, StateInstallingDependencies, StateReviewing)
}

func (p *Pipeline) stepReview(ctx context.Context, request string, task proto.Task, attempt *taskAttempt) State {
	reviewStart := time.Now()

	review, err := p.deps.Reviewer.Review(ctx, agents.ReviewRequest{
		OriginalRequest:   request,
		Task:              task,
		Changes:           attempt.changes,
		KnownDependencies: p.knownDependencies(),
	})
	if err != nil {
		p.deps.Recorder.RecordReview(p.cfg.Agents.ReviewerModel, "error", time.Since(reviewStart))
		attempt.failureReason = fmt.Sprintf("review failed: %v", err)
		return p.transition(task.ID, StateReviewing, StateFailed)
	}

	attempt.review = review
	if review.Passed {
		p.deps.Recorder.RecordReview(p.cfg.Agents.ReviewerModel, "passed", time.Since(reviewStart))
		return p.transition(task.ID, StateReviewing, StatePassed)
	}
	p.deps.Recorder.RecordReview(p.cfg.Agents.ReviewerModel, "failed", time.Since(reviewStart))
	p.logger.Info("task %s: review failed with %d blocking issue(s)", task.ID, len(review.ErrorIssues()))

	if attempt.reviewRetries >= p.cfg.Agents.MaxReviewRetries {
		attempt.failureReason = fmt.Sprintf("review retries exhausted after %d attempt(s)", attempt.reviewRetries+1)
		return p.transition(task.ID, StateReviewing, StateFailed)
	}
	attempt.reviewRetries++
	attempt.reviewFeedback = agents.FormatIssuesFeedback(review.Issues)
	return p.transition(task.ID, StateReviewing, StateRetrying)
}

// importFailure routes an unsatisfied import cycle: one bounded retry
// with feedback, then terminal failure.
func (p *Pipeline) importFailure(task proto.Task, attempt *taskAttempt, feedback string, from State) State {
	if attempt.importFailures >= maxImportRetries {
		attempt.failureReason = "import validation failed twice in a row; the generator keeps choosing unavailable packages"
		return p.transition(task.ID, from, StateFailed)
	}
	attempt.importFailures++
	attempt.importFeedback = feedback
	return p.transition(task.ID, from, StateRetrying)
}

// knownDependencies is the current installed-package view: the manifest
// plus anything installed earlier in this run.
func (p *Pipeline) knownDependencies() []string {
	installed := pkgmgr.InstalledPackages(p.projectRoot)
	return append(installed, p.newlyInstalled...)
}

func (p *Pipeline) recordConsent(result proto.ImportValidationResult) {
	for range result.ApprovedPackages {
		p.deps.Recorder.RecordConsentDecision("approve")
	}
	for range result.RejectedPackages {
		p.deps.Recorder.RecordConsentDecision("reject")
	}
}

// buildImportFeedback names every rejected, substituted, or unpublished
// package so the next generation attempt avoids them.
func buildImportFeedback(result proto.ImportValidationResult, unpublished []string) string {
	var b strings.Builder

	if len(result.RejectedPackages) > 0 {
		fmt.Fprintf(&b, "These packages were not approved and MUST NOT be imported: %s.\n",
			strings.Join(result.RejectedPackages, ", "))
	}
	if len(unpublished) > 0 {
		fmt.Fprintf(&b, "These packages do not exist in the package registry and MUST NOT be imported: %s.\n",
			strings.Join(unpublished, ", "))
	}
	for pkg, alt := range result.Alternatives {
		fmt.Fprintf(&b, "Instead of %s, use the built-in %s (%s). Example: %s\n",
			pkg, alt.Module, alt.Description, alt.Example)
	}
	b.WriteString("Rewrite the code using platform builtins or manual implementations.")
	return b.String()
}
