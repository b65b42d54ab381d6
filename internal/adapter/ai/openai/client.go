// Package openai implements domain.LLMProvider against any OpenAI-compatible chat
// completions endpoint. The default configuration targets Mistral.
package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-interview-coach/internal/config"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

const maxSnippet = 512

// Client performs a single chat completion per Complete call. Retrying belongs to the
// gateway, so every failure is only classified here.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	hc          *http.Client
}

// New constructs a client from configuration.
func New(cfg config.Config) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.LLMBaseURL, "/"),
		apiKey:      cfg.LLMAPIKey,
		model:       cfg.LLMModel,
		temperature: 0.3,
		hc: &http.Client{
			Timeout:   cfg.LLMTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string { return "openai" }

func snippet(b []byte) string {
	if len(b) > maxSnippet {
		b = b[:maxSnippet]
	}
	return string(b)
}

// Complete sends prompt as a single user message and returns the first choice's content.
func (c *Client) Complete(ctx domain.Context, prompt string) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("op=openai.Complete: %w: LLM API key missing", domain.ErrConfiguration)
	}
	body := map[string]any{
		"model":       c.model,
		"temperature": c.temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("op=openai.Complete: %w: %v", domain.ErrRequestFailed, err)
	}
	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("op=openai.Complete: %w: %v", domain.ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		slog.Warn("llm request error", slog.String("provider", "openai"), slog.String("endpoint", endpoint), slog.Any("error", err))
		return "", fmt.Errorf("op=openai.Complete: %w: %w", domain.ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("op=openai.Complete: %w: read body: %v", domain.ErrRequestFailed, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		slog.Warn("llm provider rate limited", slog.String("provider", "openai"), slog.Int("status", resp.StatusCode),
			slog.String("retry_after", resp.Header.Get("Retry-After")), slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
		return "", fmt.Errorf("op=openai.Complete: %w: status 429", domain.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		slog.Warn("llm provider non-2xx", slog.String("provider", "openai"), slog.Int("status", resp.StatusCode),
			slog.String("model", c.model), slog.String("endpoint", endpoint), slog.String("body", snippet(bodyBytes)))
		return "", fmt.Errorf("op=openai.Complete: %w: status %d", domain.ErrRequestFailed, resp.StatusCode)
	}

	var out struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		slog.Error("llm provider decode error", slog.String("provider", "openai"), slog.String("body", snippet(bodyBytes)), slog.Any("error", err))
		return "", fmt.Errorf("op=openai.Complete: %w: %w", domain.ErrRequestFailed, errors.Join(domain.ErrMalformedResponse, err))
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("op=openai.Complete: %w: %w: no choices", domain.ErrRequestFailed, domain.ErrMalformedResponse)
	}
	slog.Debug("llm completion",
		slog.String("provider", "openai"),
		slog.String("model", out.Model),
		slog.Int("prompt_tokens", out.Usage.PromptTokens),
		slog.Int("completion_tokens", out.Usage.CompletionTokens),
		slog.Duration("duration", time.Since(start)))
	return out.Choices[0].Message.Content, nil
}
