package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HealthChecker probes a backend without generating tokens.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// httpCheck issues one authenticated GET and expects a 2xx.
type httpCheck struct {
	client  *http.Client
	url     string
	headers map[string]string
}

func (h *httpCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("provider: health request: %w", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider: health check %s returned %d", h.url, resp.StatusCode)
	}
	return nil
}

// NewHealthCheck returns a zero-cost probe for backends that expose a model
// listing endpoint, or nil when the backend has none and callers must fall
// back to a generate call. A nil client selects http.DefaultClient.
func NewHealthCheck(cfg *Config, client *http.Client) HealthChecker {
	if client == nil {
		client = http.DefaultClient
	}
	switch cfg.Backend {
	case BackendOllama:
		host := cfg.Ollama.Host
		if host == "" {
			host = defaultOllamaHost
		}
		return &httpCheck{client: client, url: strings.TrimRight(host, "/") + "/api/tags"}
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return &httpCheck{
			client:  client,
			url:     strings.TrimRight(base, "/") + "/models",
			headers: map[string]string{"Authorization": "Bearer " + cfg.OpenAI.APIKey},
		}
	case BackendAzure:
		version := cfg.AzureOpenAI.APIVersion
		if version == "" {
			version = "2024-02-01"
		}
		return &httpCheck{
			client:  client,
			url:     strings.TrimRight(cfg.AzureOpenAI.Endpoint, "/") + "/openai/models?api-version=" + version,
			headers: map[string]string{"api-key": cfg.AzureOpenAI.APIKey},
		}
	default:
		return nil
	}
}
