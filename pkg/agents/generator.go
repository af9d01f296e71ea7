package agents

import (
	"context"
	"fmt"
	"strings"

	"codewright/pkg/config"
	"codewright/pkg/llm"
	"codewright/pkg/llmerrors"
	"codewright/pkg/logx"
	"codewright/pkg/proto"
)

const generatorSystemPrompt = `You are a code generation assistant for a JavaScript/TypeScript project.
Implement exactly the task you are given, as complete file contents.

Respond with ONLY a JSON object of this exact shape:
{
  "files": [
    {"path": "relative/path.js", "content": "entire file content"}
  ]
}

Rules:
- Every file's content is the COMPLETE new file, not a diff or fragment.
- Only import packages that are already installed in the project or are
  platform builtins, unless the task says otherwise.
- If feedback lists rejected packages, you MUST NOT import them; use the
  suggested alternatives or implement the functionality manually.`

// GenerateRequest carries everything one generation attempt needs,
// including feedback accumulated from earlier attempts on the same task.
type GenerateRequest struct {
	Task proto.Task
	// Plan is the overall request context shown to the model.
	Plan string
	// PriorFiles are the previous attempt's changes, superseded by this
	// attempt's output.
	PriorFiles []proto.FileChange
	// ReviewFeedback carries reviewer issues verbatim.
	ReviewFeedback string
	// ImportFeedback names rejected or substituted packages.
	ImportFeedback string
	// KnownDependencies lists packages the generated code may import.
	KnownDependencies []string
}

// Generator produces file changes for one task at a time.
type Generator struct {
	client llm.Client
	cfg    config.AgentConfig
	tokens *llm.TokenCounter
	logger *logx.Logger
}

// NewGenerator creates a generator over the given client.
func NewGenerator(client llm.Client, cfg config.AgentConfig) *Generator {
	tokens, err := llm.NewTokenCounter(client.GetModelName())
	if err != nil {
		// Counting degrades to the character estimate.
		tokens = &llm.TokenCounter{}
	}
	return &Generator{client: client, cfg: cfg, tokens: tokens, logger: logx.NewLogger("generator")}
}

// priorFilesTokenBudget caps how much of the previous attempt is replayed
// into the revision prompt. Oversized attempts are truncated rather than
// blowing the model's context window.
const priorFilesTokenBudget = 16000

type generatePayload struct {
	Files []proto.FileChange `json:"files"`
}

// Generate requests code for the task. A response that cannot be parsed
// into the expected schema is a schema_validation error, retryable by
// the pipeline's budget.
func (g *Generator) Generate(ctx context.Context, in GenerateRequest) ([]proto.FileChange, error) {
	req := llm.NewCompletionRequest([]llm.Message{
		llm.NewSystemMessage(generatorSystemPrompt),
		llm.NewUserMessage(g.buildPrompt(in)),
	})
	req.MaxTokens = g.cfg.MaxTokens
	req.Temperature = g.cfg.Temperature

	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generation failed for task %s: %w", in.Task.ID, err)
	}

	var payload generatePayload
	if err := decodeStrict(resp.Content, &payload); err != nil {
		return nil, err
	}
	if len(payload.Files) == 0 {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeSchemaValidation, "generator returned no files")
	}
	for i := range payload.Files {
		if payload.Files[i].Path == "" {
			return nil, llmerrors.NewError(llmerrors.ErrorTypeSchemaValidation, "generator returned a file without a path")
		}
	}

	g.logger.Debug("task %s: generated %d file(s)", in.Task.ID, len(payload.Files))
	return payload.Files, nil
}

func (g *Generator) buildPrompt(in GenerateRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task %s: %s\n\n%s\n", in.Task.ID, in.Task.Title, in.Task.Description)
	if in.Plan != "" {
		fmt.Fprintf(&b, "\nOverall request:\n%s\n", in.Plan)
	}
	if len(in.Task.EstimatedFiles) > 0 {
		fmt.Fprintf(&b, "\nLikely files: %s\n", strings.Join(in.Task.EstimatedFiles, ", "))
	}
	if len(in.KnownDependencies) > 0 {
		fmt.Fprintf(&b, "\nInstalled packages you may import: %s\n", strings.Join(in.KnownDependencies, ", "))
	}

	if len(in.PriorFiles) > 0 {
		var prior strings.Builder
		prior.WriteString("\nYour previous attempt produced these files; revise them:\n")
		for i := range in.PriorFiles {
			fc := &in.PriorFiles[i]
			fmt.Fprintf(&prior, "--- %s ---\n%s\n", fc.Path, fc.Content)
		}
		b.WriteString(g.tokens.TruncateToTokenLimit(prior.String(), priorFilesTokenBudget))
	}
	if in.ReviewFeedback != "" {
		fmt.Fprintf(&b, "\nReview feedback to address:\n%s\n", in.ReviewFeedback)
	}
	if in.ImportFeedback != "" {
		fmt.Fprintf(&b, "\nDependency feedback:\n%s\n", in.ImportFeedback)
	}

	return b.String()
}
