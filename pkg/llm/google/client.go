// Package google provides the Google Gemini implementation of the
// llm.Client interface.
package google

import (
	"context"

	"google.golang.org/genai"

	"codewright/pkg/llm"
	"codewright/pkg/llmerrors"
)

// Client wraps the Google GenAI client. The SDK client needs a context
// to construct, so it is created lazily on first use.
type Client struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewClient creates a Gemini client for the given model.
func NewClient(apiKey, model string) llm.Client {
	return &Client{apiKey: apiKey, model: model}
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if c.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, llm.ClassifyProviderError(err)
		}
		c.client = client
	}

	systemPrompt, conversation := llm.SplitSystem(in.Messages)
	if len(conversation) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeSchemaValidation, "request has no non-system messages")
	}

	contents := make([]*genai.Content, 0, len(conversation))
	for _, msg := range conversation {
		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	//nolint:gosec // MaxTokens validated at higher layer, overflow acceptable
	maxTokens := int32(in.MaxTokens)
	config := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: maxTokens,
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, llm.ClassifyProviderError(err)
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeUnknown, "empty response from Gemini API")
	}

	return llm.CompletionResponse{Content: result.Text()}, nil
}

// GetModelName returns the model identifier.
func (c *Client) GetModelName() string {
	return c.model
}
