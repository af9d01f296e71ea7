// Package openai provides the OpenAI implementation of the llm.Client
// interface using the official Go SDK's Responses API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"codewright/pkg/llm"
	"codewright/pkg/llmerrors"
)

// Client wraps the official OpenAI Go client.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates an OpenAI client for the given model.
func NewClient(apiKey, model string) llm.Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements llm.Client. The Responses API takes a single input
// string, so the conversation is flattened with role prefixes.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	var input string
	for _, msg := range in.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			input += fmt.Sprintf("System: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			input += fmt.Sprintf("Assistant: %s\n\n", msg.Content)
		default:
			input += msg.Content + "\n\n"
		}
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llm.ClassifyProviderError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeUnknown, "empty response from OpenAI Responses API")
	}

	return llm.CompletionResponse{Content: resp.OutputText()}, nil
}

// GetModelName returns the model identifier.
func (c *Client) GetModelName() string {
	return c.model
}
