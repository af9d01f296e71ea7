package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codewright/pkg/agents"
	"codewright/pkg/config"
	"codewright/pkg/consent"
	"codewright/pkg/pkgmgr"
	"codewright/pkg/proto"
)

type fakeGenerator struct {
	outputs  [][]proto.FileChange
	errs     []error
	requests []agents.GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, in agents.GenerateRequest) ([]proto.FileChange, error) {
	f.requests = append(f.requests, in)
	i := len(f.requests) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.outputs[i], nil
}

type fakeReviewer struct {
	verdicts []proto.ReviewResult
	errs     []error
	requests []agents.ReviewRequest
}

func (f *fakeReviewer) Review(_ context.Context, in agents.ReviewRequest) (proto.ReviewResult, error) {
	f.requests = append(f.requests, in)
	i := len(f.requests) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return proto.ReviewResult{}, f.errs[i]
	}
	return f.verdicts[i], nil
}

type fakeGate struct {
	results []consent.BatchResult
	calls   [][]string
}

func (f *fakeGate) CheckBatchApprovalWithAlternatives(_ context.Context, packages []string, _ consent.RequestContext) (consent.BatchResult, error) {
	f.calls = append(f.calls, packages)
	return f.results[len(f.calls)-1], nil
}

type fakeInstaller struct {
	errs      []error
	installed [][]string
}

func (f *fakeInstaller) Install(_ context.Context, packages []string, _ bool) error {
	f.installed = append(f.installed, packages)
	i := len(f.installed) - 1
	if i < len(f.errs) {
		return f.errs[i]
	}
	return nil
}

func (f *fakeInstaller) Manager() pkgmgr.Manager { return pkgmgr.NPM }

type fakeRegistry struct {
	unpublished map[string]bool
}

func (f *fakeRegistry) FilterExisting(_ context.Context, names []string) (existing, missing []string) {
	for _, name := range names {
		if f.unpublished[name] {
			missing = append(missing, name)
		} else {
			existing = append(existing, name)
		}
	}
	return existing, missing
}

func approveAll(packages ...string) consent.BatchResult {
	result := consent.BatchResult{Alternatives: map[string]string{}}
	for _, pkg := range packages {
		result.Approved = append(result.Approved, consent.Approval{
			Package: pkg,
			Scope:   proto.ScopeOnce,
			Source:  "prompt",
		})
	}
	return result
}

func rejectAll(packages ...string) consent.BatchResult {
	return consent.BatchResult{Rejected: packages, Alternatives: map[string]string{}}
}

func projectWithManifest(t *testing.T, manifest string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte(manifest), 0o644))
	return root
}

func newTestPipeline(root string, deps Deps) *Pipeline {
	return New(root, config.DefaultConfig(), deps)
}

func cleanChange() []proto.FileChange {
	return []proto.FileChange{{
		Path:    "src/util.js",
		Content: "import fs from 'node:fs';\nexport const read = (p) => fs.readFileSync(p, 'utf8');\n",
	}}
}

func changeImporting(pkg string) []proto.FileChange {
	return []proto.FileChange{{
		Path:    "src/app.js",
		Content: "import thing from '" + pkg + "';\nexport default thing;\n",
	}}
}

func TestRun_CleanImportsPassFirstTry(t *testing.T) {
	root := projectWithManifest(t, `{"dependencies":{"react":"^18.0.0"}}`)
	gen := &fakeGenerator{outputs: [][]proto.FileChange{cleanChange()}}
	rev := &fakeReviewer{verdicts: []proto.ReviewResult{{Passed: true, Summary: "ok"}}}
	gate := &fakeGate{}

	pipe := newTestPipeline(root, Deps{
		Generator: gen,
		Reviewer:  rev,
		Gate:      gate,
		Installer: &fakeInstaller{},
		Registry:  &fakeRegistry{},
	})

	result := pipe.Run(context.Background(), "add a reader", []proto.Task{{ID: "t1", Title: "reader"}})

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, proto.TaskStatusPassed, result.Outcomes[0].Status)
	assert.Equal(t, 1, result.Outcomes[0].Attempts)
	assert.Equal(t, "ok", result.Outcomes[0].ReviewSummary)
	// Clean imports never touch the consent gate.
	assert.Empty(t, gate.calls)
	// Installed dependencies are offered to the generator up front.
	require.Len(t, gen.requests, 1)
	assert.Contains(t, gen.requests[0].KnownDependencies, "react")
}

func TestRun_ApprovedPackageIsInstalledThenReviewed(t *testing.T) {
	root := projectWithManifest(t, `{"dependencies":{}}`)
	gen := &fakeGenerator{outputs: [][]proto.FileChange{changeImporting("express")}}
	rev := &fakeReviewer{verdicts: []proto.ReviewResult{{Passed: true}}}
	gate := &fakeGate{results: []consent.BatchResult{approveAll("express")}}
	installer := &fakeInstaller{}

	pipe := newTestPipeline(root, Deps{
		Generator: gen,
		Reviewer:  rev,
		Gate:      gate,
		Installer: installer,
		Registry:  &fakeRegistry{},
	})

	result := pipe.Run(context.Background(), "add a server", []proto.Task{{ID: "t1", Title: "server"}})

	assert.True(t, result.Success)
	require.Len(t, gate.calls, 1)
	assert.Equal(t, []string{"express"}, gate.calls[0])
	require.Len(t, installer.installed, 1)
	assert.Equal(t, []string{"express"}, installer.installed[0])
	// The reviewer sees the freshly installed package as known.
	require.Len(t, rev.requests, 1)
	assert.Contains(t, rev.requests[0].KnownDependencies, "express")
}

func TestRun_InstalledPackageVisibleToLaterTasks(t *testing.T) {
	root := projectWithManifest(t, `{"dependencies":{}}`)
	gen := &fakeGenerator{outputs: [][]proto.FileChange{
		changeImporting("express"),
		changeImporting("express"), // second task imports the same package
	}}
	rev := &fakeReviewer{verdicts: []proto.ReviewResult{{Passed: true}, {Passed: true}}}
	gate := &fakeGate{results: []consent.BatchResult{approveAll("express")}}
	installer := &fakeInstaller{}

	pipe := newTestPipeline(root, Deps{
		Generator: gen,
		Reviewer:  rev,
		Gate:      gate,
		Installer: installer,
		Registry:  &fakeRegistry{},
	})

	result := pipe.Run(context.Background(), "two tasks", []proto.Task{
		{ID: "t1", Title: "server"},
		{ID: "t2", Title: "routes", DependsOn: []string{"t1"}},
	})

	assert.True(t, result.Success)
	// Only the first task prompts; the second sees express as installed.
	assert.Len(t, gate.calls, 1)
	assert.Len(t, installer.installed, 1)
	require.Len(t, gen.requests, 2)
	assert.Contains(t, gen.requests[1].KnownDependencies, "express")
}

func TestRun_RejectedPackageRetriesWithFeedback(t *testing.T) {
	root := projectWithManifest(t, `{"dependencies":{}}`)
	gen := &fakeGenerator{outputs: [][]proto.FileChange{
		changeImporting("left-pad"),
		cleanChange(),
	}}
	rev := &fakeReviewer{verdicts: []proto.ReviewResult{{Passed: true}}}
	gate := &fakeGate{results: []consent.BatchResult{rejectAll("left-pad")}}
	installer := &fakeInstaller{}

	pipe := newTestPipeline(root, Deps{
		Generator: gen,
		Reviewer:  rev,
		Gate:      gate,
		Installer: installer,
		Registry:  &fakeRegistry{},
	})

	result := pipe.Run(context.Background(), "pad strings", []proto.Task{{ID: "t1", Title: "pad"}})

	assert.True(t, result.Success)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, 2, result.Outcomes[0].Attempts)
	// Nothing rejected is ever installed.
	assert.Empty(t, installer.installed)
	// The regeneration attempt carries the rejection by name.
	require.Len(t, gen.requests, 2)
	assert.Contains(t, gen.requests[1].ImportFeedback, "left-pad")
	assert.Contains(t, gen.requests[1].ImportFeedback, "MUST NOT be imported")
}

func TestRun_SecondConsecutiveImportFailureIsTerminal(t *testing.T) {
	root := projectWithManifest(t, `{"dependencies":{}}`)
	gen := &fakeGenerator{outputs: [][]proto.FileChange{
		changeImporting("left-pad"),
		changeImporting("left-pad"), // generator ignores the feedback
		cleanChange(),               // other task still runs
	}}
	rev := &fakeReviewer{verdicts: []proto.ReviewResult{{Passed: true}}}
	gate := &fakeGate{results: []consent.BatchResult{
		rejectAll("left-pad"),
		rejectAll("left-pad"),
	}}

	pipe := newTestPipeline(root, Deps{
		Generator: gen,
		Reviewer:  rev,
		Gate:      gate,
		Installer: &fakeInstaller{},
		Registry:  &fakeRegistry{},
	})

	result := pipe.Run(context.Background(), "pad strings", []proto.Task{
		{ID: "t1", Title: "pad"},
		{ID: "t2", Title: "other"},
	})

	assert.False(t, result.Success)
	require.Len(t, result.Outcomes, 2)

	failed := result.Outcomes[0]
	assert.Equal(t, proto.TaskStatusFailed, failed.Status)
	assert.Equal(t, 2, failed.Attempts)
	assert.Contains(t, failed.FailureReason, "import validation failed twice")

	// One task's failure never stops the rest.
	assert.Equal(t, proto.TaskStatusPassed, result.Outcomes[1].Status)
}

func TestRun_UnpublishedPackageNotInstalled(t *testing.T) {
	root := projectWithManifest(t, `{"dependencies":{}}`)
	gen := &fakeGenerator{outputs: [][]proto.FileChange{
		changeImporting("totally-made-up-pkg"),
		cleanChange(),
	}}
	rev := &fakeReviewer{verdicts: []proto.ReviewResult{{Passed: true}}}
	gate := &fakeGate{results: []consent.BatchResult{approveAll("totally-made-up-pkg")}}
	installer := &fakeInstaller{}

	pipe := newTestPipeline(root, Deps{
		Generator: gen,
		Reviewer:  rev,
		Gate:      gate,
		Installer: installer,
		Registry:  &fakeRegistry{unpublished: map[string]bool{"totally-made-up-pkg": true}},
	})

	result := pipe.Run(context.Background(), "use a ghost", []proto.Task{{ID: "t1", Title: "ghost"}})

	assert.True(t, result.Success)
	// Approval is not enough: an unpublished package never reaches the
	// installer.
	assert.Empty(t, installer.installed)
	require.Len(t, gen.requests, 2)
	assert.Contains(t, gen.requests[1].ImportFeedback, "do not exist in the package registry")
	assert.Contains(t, gen.requests[1].ImportFeedback, "totally-made-up-pkg")
}

func TestRun_InstallFailureFeedsBackCategorizedError(t *testing.T) {
	root := projectWithManifest(t, `{"dependencies":{}}`)
	gen := &fakeGenerator{outputs: [][]proto.FileChange{
		changeImporting("express"),
		cleanChange(),
	}}
	rev := &fakeReviewer{verdicts: []proto.ReviewResult{{Passed: true}}}
	gate := &fakeGate{results: []consent.BatchResult{approveAll("express")}}
	installer := &fakeInstaller{errs: []error{
		&pkgmgr.Error{
			Category: pkgmgr.ErrInstallFailed,
			Message:  "E404",
			ExitCode: 1,
			Packages: []string{"express"},
			Causes:   []string{"network failure"},
		},
	}}

	pipe := newTestPipeline(root, Deps{
		Generator: gen,
		Reviewer:  rev,
		Gate:      gate,
		Installer: installer,
		Registry:  &fakeRegistry{},
	})

	result := pipe.Run(context.Background(), "add a server", []proto.Task{{ID: "t1", Title: "server"}})

	assert.True(t, result.Success)
	require.Len(t, gen.requests, 2)
	assert.Contains(t, gen.requests[1].ImportFeedback, "exit code 1")
	assert.Contains(t, gen.requests[1].ImportFeedback, "Write the code without these packages")
}

func TestRun_ReviewRetryWithinBudget(t *testing.T) {
	root := projectWithManifest(t, `{"dependencies":{}}`)
	gen := &fakeGenerator{outputs: [][]proto.FileChange{cleanChange(), cleanChange()}}
	rev := &fakeReviewer{verdicts: []proto.ReviewResult{
		{Passed: false, Issues: []proto.ReviewIssue{{Severity: proto.SeverityError, File: "src/util.js", Description: "missing error handling"}}},
		{Passed: true, Summary: "fixed"},
	}}

	pipe := newTestPipeline(root, Deps{
		Generator: gen,
		Reviewer:  rev,
		Gate:      &fakeGate{},
		Installer: &fakeInstaller{},
		Registry:  &fakeRegistry{},
	})

	result := pipe.Run(context.Background(), "add a reader", []proto.Task{{ID: "t1", Title: "reader"}})

	assert.True(t, result.Success)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, 2, result.Outcomes[0].Attempts)
	// The retry prompt carries the reviewer's findings.
	require.Len(t, gen.requests, 2)
	assert.Contains(t, gen.requests[1].ReviewFeedback, "missing error handling")
}

func TestRun_ReviewBudgetExhaustedCarriesLastChanges(t *testing.T) {
	root := projectWithManifest(t, `{"dependencies":{}}`)
	failing := proto.ReviewResult{
		Passed:  false,
		Summary: "still broken",
		Issues:  []proto.ReviewIssue{{Severity: proto.SeverityError, File: "src/util.js", Description: "broken"}},
	}
	// MaxReviewRetries defaults to 3: initial review plus three retries.
	gen := &fakeGenerator{outputs: [][]proto.FileChange{
		cleanChange(), cleanChange(), cleanChange(), cleanChange(),
	}}
	rev := &fakeReviewer{verdicts: []proto.ReviewResult{failing, failing, failing, failing}}

	pipe := newTestPipeline(root, Deps{
		Generator: gen,
		Reviewer:  rev,
		Gate:      &fakeGate{},
		Installer: &fakeInstaller{},
		Registry:  &fakeRegistry{},
	})

	result := pipe.Run(context.Background(), "add a reader", []proto.Task{{ID: "t1", Title: "reader"}})

	assert.False(t, result.Success)
	require.Len(t, result.Outcomes, 1)
	outcome := result.Outcomes[0]
	assert.Equal(t, proto.TaskStatusFailed, outcome.Status)
	assert.Equal(t, 4, outcome.Attempts)
	assert.Contains(t, outcome.FailureReason, "review retries exhausted")
	// The failed outcome still reports what was generated and why it
	// was rejected.
	assert.NotEmpty(t, outcome.Changes)
	assert.NotEmpty(t, outcome.Issues)
	assert.Equal(t, "still broken", outcome.ReviewSummary)
}

func TestRun_GenerationErrorFailsTask(t *testing.T) {
	root := projectWithManifest(t, `{"dependencies":{}}`)
	gen := &fakeGenerator{errs: []error{assert.AnError}}

	pipe := newTestPipeline(root, Deps{
		Generator: gen,
		Reviewer:  &fakeReviewer{},
		Gate:      &fakeGate{},
		Installer: &fakeInstaller{},
		Registry:  &fakeRegistry{},
	})

	result := pipe.Run(context.Background(), "broken", []proto.Task{{ID: "t1", Title: "x"}})

	assert.False(t, result.Success)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, proto.TaskStatusFailed, result.Outcomes[0].Status)
	assert.Contains(t, result.Outcomes[0].FailureReason, "generation failed")
}
