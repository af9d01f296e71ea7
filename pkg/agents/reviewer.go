package agents

import (
	"context"
	"fmt"
	"strings"

	"codewright/pkg/config"
	"codewright/pkg/llm"
	"codewright/pkg/logx"
	"codewright/pkg/proto"
)

const reviewerSystemPrompt = `You are a code review assistant. Review the proposed file changes against
the task and report whether they are acceptable.

Respond with ONLY a JSON object of this exact shape:
{
  "passed": true,
  "issues": [
    {"severity": "error", "file": "path.js", "description": "what is wrong", "suggested_fix": "how to fix it"}
  ],
  "summary": "one-paragraph verdict"
}

Rules:
- severity is one of: error, warning, suggestion.
- passed must be false if you report ANY error-severity issue.
- Warnings and suggestions alone do not fail a review.`

// ReviewRequest carries one attempt's changes to the reviewer.
type ReviewRequest struct {
	// OriginalRequest is the user's change request, for judging intent.
	OriginalRequest string
	Task            proto.Task
	Changes         []proto.FileChange
	// KnownDependencies lets the reviewer distinguish missing packages
	// from installed ones.
	KnownDependencies []string
}

// Reviewer passes or rejects generated changes.
type Reviewer struct {
	client llm.Client
	cfg    config.AgentConfig
	logger *logx.Logger
}

// NewReviewer creates a reviewer over the given client.
func NewReviewer(client llm.Client, cfg config.AgentConfig) *Reviewer {
	return &Reviewer{client: client, cfg: cfg, logger: logx.NewLogger("reviewer")}
}

// Review asks the model for a verdict. The reported passed boolean is
// trusted as-is; issues are surfaced to the caller either way.
func (r *Reviewer) Review(ctx context.Context, in ReviewRequest) (proto.ReviewResult, error) {
	req := llm.NewCompletionRequest([]llm.Message{
		llm.NewSystemMessage(reviewerSystemPrompt),
		llm.NewUserMessage(r.buildPrompt(in)),
	})
	req.MaxTokens = r.cfg.MaxTokens
	req.Temperature = r.cfg.Temperature

	resp, err := r.client.Complete(ctx, req)
	if err != nil {
		return proto.ReviewResult{}, fmt.Errorf("review failed for task %s: %w", in.Task.ID, err)
	}

	var result proto.ReviewResult
	if err := decodeStrict(resp.Content, &result); err != nil {
		return proto.ReviewResult{}, err
	}

	r.logger.Debug("task %s: review passed=%t with %d issue(s)", in.Task.ID, result.Passed, len(result.Issues))
	return result, nil
}

func (r *Reviewer) buildPrompt(in ReviewRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Original request:\n%s\n", in.OriginalRequest)
	fmt.Fprintf(&b, "\nTask %s: %s\n%s\n", in.Task.ID, in.Task.Title, in.Task.Description)
	if len(in.KnownDependencies) > 0 {
		fmt.Fprintf(&b, "\nInstalled packages: %s\n", strings.Join(in.KnownDependencies, ", "))
	}

	b.WriteString("\nProposed changes:\n")
	for i := range in.Changes {
		fc := &in.Changes[i]
		fmt.Fprintf(&b, "--- %s ---\n%s\n", fc.Path, fc.Content)
	}

	return b.String()
}

// FormatIssuesFeedback renders reviewer issues as feedback text for the
// next generation attempt, issue descriptions carried verbatim.
func FormatIssuesFeedback(issues []proto.ReviewIssue) string {
	if len(issues) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("The review found these issues:\n")
	for i := range issues {
		issue := &issues[i]
		fmt.Fprintf(&b, "- [%s] %s: %s", issue.Severity, issue.File, issue.Description)
		if issue.SuggestedFix != "" {
			fmt.Fprintf(&b, " (suggested fix: %s)", issue.SuggestedFix)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
