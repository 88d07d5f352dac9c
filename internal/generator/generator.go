// Package generator turns a fully rendered prompt into answer text. A
// Generator is chosen once at construction: either an eino chat model from
// the provider package or the Anthropic Messages API.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrEmptyResponse is returned when a backend answers with no text.
var ErrEmptyResponse = errors.New("generator: empty response")

// Generator produces answer text for a prompt. Implementations must be safe
// to call from multiple goroutines and must honour ctx cancellation.
type Generator interface {
	// Generate returns the model's text response to prompt.
	Generate(ctx context.Context, msgs []*schema.Message) (string, error)
	// Name identifies the backend in logs and readiness responses.
	Name() string
}

// ChatModel adapts an eino chat model to Generator.
type ChatModel struct {
	model model.BaseChatModel
	name  string
}

// FromChatModel wraps an eino chat model. name labels the backend.
func FromChatModel(m model.BaseChatModel, name string) *ChatModel {
	return &ChatModel{model: m, name: name}
}

// Generate implements Generator. Globally registered eino callbacks, such
// as the Langfuse tracer, observe the call.
func (c *ChatModel) Generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "support_answer",
		Type:      c.name,
		Component: components.ComponentOfChatModel,
	})
	resp, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generator: %s: %w", c.name, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Content), nil
}

// Name implements Generator.
func (c *ChatModel) Name() string { return c.name }
