package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HealthChecker checks a provider without spending tokens.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HTTPHealthCheck issues a GET against a cheap provider endpoint (model
// listing) and treats any 2xx as healthy.
type HTTPHealthCheck struct {
	// URL is the endpoint to check.
	URL string
	// Header is added to the check request (auth).
	Header http.Header
	// Client defaults to a 5s-timeout client.
	Client *http.Client
}

// HealthCheck implements HealthChecker.
func (h *HTTPHealthCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return fmt.Errorf("provider: health request: %w", err)
	}
	for k, vs := range h.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider: health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// HealthCheckFor returns a zero-cost health check for the configured backend,
// or nil when the backend has no cheap endpoint to check.
func HealthCheckFor(cfg *Config) HealthChecker {
	switch cfg.Backend {
	case BackendOllama:
		return &HTTPHealthCheck{URL: strings.TrimRight(cfg.Ollama.Host, "/") + "/api/tags"}
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return &HTTPHealthCheck{
			URL:    strings.TrimRight(base, "/") + "/models",
			Header: http.Header{"Authorization": []string{"Bearer " + cfg.OpenAI.APIKey}},
		}
	case BackendAzure:
		return &HTTPHealthCheck{
			URL: fmt.Sprintf("%s/openai/models?api-version=%s",
				strings.TrimRight(cfg.AzureOpenAI.Endpoint, "/"), cfg.AzureOpenAI.APIVersion),
			Header: http.Header{"api-key": []string{cfg.AzureOpenAI.APIKey}},
		}
	default:
		return nil
	}
}
