package generator

import (
	"context"
	"os"
	"strconv"

	"github.com/54b3r/supportrag-go/internal/provider"
)

// NewFromEnv constructs the Generator selected by MODEL_PROVIDER. The
// anthropic backend uses ANTHROPIC_API_KEY, ANTHROPIC_MODEL (default:
// claude-3-5-haiku-latest) and MODEL_MAX_TOKENS; every other backend is an
// eino chat model built by the provider package. The returned health check
// is nil when the backend has no zero-cost check.
func NewFromEnv(ctx context.Context) (Generator, provider.HealthChecker, error) {
	if os.Getenv("MODEL_PROVIDER") == "anthropic" {
		maxTokens, _ := strconv.Atoi(os.Getenv("MODEL_MAX_TOKENS"))
		model := os.Getenv("ANTHROPIC_MODEL")
		if model == "" {
			model = "claude-3-5-haiku-latest"
		}
		g, err := NewAnthropic(&AnthropicConfig{
			APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
			Model:     model,
			MaxTokens: maxTokens,
			BaseURL:   os.Getenv("ANTHROPIC_BASE_URL"),
		})
		if err != nil {
			return nil, nil, err
		}
		return g, nil, nil
	}

	m, cfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, err
	}
	return FromChatModel(m, string(cfg.Backend)), provider.HealthCheckFor(cfg), nil
}
