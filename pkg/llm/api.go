// Package llm defines the completion client interface shared by all
// provider implementations, plus middleware chaining and retry.
package llm

import (
	"context"
	"strings"
)

// Role of a message in a conversation.
type Role string

const (
	// RoleSystem provides instructions or context.
	RoleSystem Role = "system"
	// RoleUser is the requesting side.
	RoleUser Role = "user"
	// RoleAssistant is the model's side.
	RoleAssistant Role = "assistant"
)

// Message is one turn of a completion conversation.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is a request to generate a completion.
type CompletionRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// CompletionResponse is the model's answer.
type CompletionResponse struct {
	Content    string
	StopReason string
}

// Client is the provider-agnostic completion interface.
type Client interface {
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the configured model identifier.
	GetModelName() string
}

// NewCompletionRequest creates a request with default generation
// parameters.
func NewCompletionRequest(messages []Message) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   8192,
		Temperature: 0.2,
	}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// SplitSystem partitions messages into a combined system prompt and the
// remaining conversation. Providers that take the system prompt as a
// separate parameter use this.
func SplitSystem(messages []Message) (systemPrompt string, rest []Message) {
	var parts []string
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			parts = append(parts, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(parts, "\n\n"), rest
}

// Middleware wraps a Client with additional behavior. Composed with
// Chain to build a processing pipeline.
type Middleware func(next Client) Client

type clientFunc struct {
	complete  func(context.Context, CompletionRequest) (CompletionResponse, error)
	modelName func() string
}

func (f clientFunc) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, in)
}

func (f clientFunc) GetModelName() string {
	return f.modelName()
}

// WrapClient creates a Client from plain functions. Helper for
// middleware implementations.
func WrapClient(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	modelName func() string,
) Client {
	return clientFunc{complete: complete, modelName: modelName}
}

// Chain composes middlewares around a base client, earliest outermost:
// Chain(client, mw1, mw2) produces the call stack mw1 -> mw2 -> client.
func Chain(base Client, middlewares ...Middleware) Client {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}
