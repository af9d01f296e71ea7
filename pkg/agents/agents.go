// Package agents implements the pipeline's LLM collaborators: a planner
// that turns a request into ordered tasks, a generator that produces file
// changes per task, and a reviewer that passes or rejects them. Each is a
// pure operation over an llm.Client; sequencing and retry budgets belong
// to the pipeline.
package agents

import (
	"encoding/json"
	"strings"

	"codewright/pkg/llmerrors"
)

// decodeStrict unmarshals a model response into out, tolerating markdown
// code fences around the JSON but nothing else. Failures are
// schema_validation errors so the pipeline retries with feedback.
func decodeStrict(content string, out any) error {
	payload := extractJSON(content)
	if payload == "" {
		return llmerrors.NewError(llmerrors.ErrorTypeSchemaValidation, "response contains no JSON payload")
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeSchemaValidation, err, "response is not valid JSON for the expected schema")
	}
	return nil
}

// extractJSON strips surrounding prose and markdown fences, returning
// the outermost JSON object or array in content.
func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)

	if strings.HasPrefix(trimmed, "```") {
		if _, rest, ok := strings.Cut(trimmed, "\n"); ok {
			trimmed = rest
		}
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.IndexAny(trimmed, "{[")
	if start == -1 {
		return ""
	}
	open := trimmed[start]
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}
	end := strings.LastIndexByte(trimmed, closeCh)
	if end <= start {
		return ""
	}
	return trimmed[start : end+1]
}
