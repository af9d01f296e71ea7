// Package anthropic provides the Anthropic Claude implementation of the
// llm.Client interface.
package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"codewright/pkg/llm"
	"codewright/pkg/llmerrors"
)

// Client wraps the Anthropic API client.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClient creates a Claude client for the given model.
func NewClient(apiKey, model string) llm.Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, conversation := llm.SplitSystem(in.Messages)
	if len(conversation) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeSchemaValidation, "request has no non-system messages")
	}

	messages := make([]anthropic.MessageParam, 0, len(conversation))
	for _, msg := range conversation {
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llm.ClassifyProviderError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeUnknown, "empty response from Claude API")
	}

	var content string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			content += block.AsText().Text
		}
	}

	return llm.CompletionResponse{
		Content:    content,
		StopReason: string(resp.StopReason),
	}, nil
}

// GetModelName returns the model identifier.
func (c *Client) GetModelName() string {
	return string(c.model)
}
