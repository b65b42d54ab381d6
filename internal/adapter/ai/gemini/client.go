// Package gemini implements domain.LLMProvider on Google's Generative AI API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// Client wraps a genai client bound to one model.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// New connects to the Generative AI API. A missing key is a configuration error.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("op=gemini.New: %w: GEMINI_API_KEY missing", domain.ErrConfiguration)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("op=gemini.New: %w: %v", domain.ErrConfiguration, err)
	}
	m := client.GenerativeModel(model)
	m.SetTemperature(0.3)
	return &Client{client: client, model: m}, nil
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string { return "gemini" }

// Close releases the underlying connection.
func (c *Client) Close() error { return c.client.Close() }

// Complete generates content for prompt and concatenates the text parts of the first
// candidate.
func (c *Client) Complete(ctx domain.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("op=gemini.Complete: %w", classify(err))
	}
	return candidateText(resp), nil
}

func classify(err error) error {
	if status.Code(err) == codes.ResourceExhausted {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrRequestFailed, err)
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		return sb.String()
	}
	return ""
}
