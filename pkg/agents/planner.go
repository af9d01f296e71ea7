package agents

import (
	"context"
	"fmt"

	"codewright/pkg/config"
	"codewright/pkg/llm"
	"codewright/pkg/llmerrors"
	"codewright/pkg/logx"
	"codewright/pkg/proto"
)

const plannerSystemPrompt = `You are a software planning assistant. Given a user's change request for a
JavaScript/TypeScript project, break it into a small ordered list of
implementation tasks.

Respond with ONLY a JSON object of this exact shape:
{
  "tasks": [
    {
      "id": "task-1",
      "title": "short title",
      "description": "what to implement and how",
      "depends_on": ["task-ids of earlier tasks, if any"],
      "estimated_files": ["paths this task will likely touch"]
    }
  ]
}

Rules:
- Task ids must be unique.
- depends_on may only reference tasks that appear EARLIER in the list.
- Prefer 1-5 tasks; do not split trivial work.`

// Planner turns a change request into an ordered task list.
type Planner struct {
	client llm.Client
	cfg    config.AgentConfig
	logger *logx.Logger
}

// NewPlanner creates a planner over the given client.
func NewPlanner(client llm.Client, cfg config.AgentConfig) *Planner {
	return &Planner{client: client, cfg: cfg, logger: logx.NewLogger("planner")}
}

type planPayload struct {
	Tasks []proto.Task `json:"tasks"`
}

// Plan produces the run's task list. The dependency-ordering invariant
// is validated here, at the boundary where the list is produced; the
// pipeline consumes it without re-checking.
func (p *Planner) Plan(ctx context.Context, request string) ([]proto.Task, error) {
	req := llm.NewCompletionRequest([]llm.Message{
		llm.NewSystemMessage(plannerSystemPrompt),
		llm.NewUserMessage(request),
	})
	req.MaxTokens = p.cfg.MaxTokens
	req.Temperature = p.cfg.Temperature

	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}

	var payload planPayload
	if err := decodeStrict(resp.Content, &payload); err != nil {
		return nil, err
	}
	if len(payload.Tasks) == 0 {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeSchemaValidation, "planner returned no tasks")
	}
	if err := proto.ValidateOrdering(payload.Tasks); err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeSchemaValidation, err, "planner violated task ordering")
	}

	p.logger.Info("planned %d task(s)", len(payload.Tasks))
	return payload.Tasks, nil
}
