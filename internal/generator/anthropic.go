package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/schema"
)

// AnthropicConfig holds settings for the Anthropic Messages API.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key.
	APIKey string
	// Model is the Claude model name.
	Model string
	// MaxTokens caps the response length.
	MaxTokens int
	// BaseURL optionally overrides the API endpoint.
	BaseURL string
}

// Anthropic implements Generator on the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic constructs an Anthropic generator.
func NewAnthropic(cfg *AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generator: anthropic backend requires ANTHROPIC_API_KEY")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("generator: anthropic backend requires ANTHROPIC_MODEL")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(maxTokens),
	}, nil
}

// Generate implements Generator. System messages become the system prompt;
// the remaining messages are sent as user turns.
func (a *Anthropic) Generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
	}
	for _, m := range msgs {
		switch m.Role {
		case schema.System:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case schema.Assistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	rsp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("generator: anthropic: %w", err)
	}

	var sb strings.Builder
	for _, content := range rsp.Content {
		if block, ok := content.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Name implements Generator.
func (a *Anthropic) Name() string { return "anthropic" }
