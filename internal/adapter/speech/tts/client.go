// Package tts synthesizes interviewer lines through an OpenAI-compatible
// /audio/speech endpoint.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Format  string
	Timeout time.Duration
}

// Client implements domain.Synthesizer.
type Client struct {
	cfg Config
	hc  *http.Client
}

// New builds a client with defaults for model and format.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, hc: &http.Client{Timeout: cfg.Timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}}
}

var _ domain.Synthesizer = (*Client)(nil)

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"opus": "audio/ogg",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"pcm":  "audio/L16",
}

// Synthesize renders text with the voice card's key as the provider voice.
func (c *Client) Synthesize(ctx context.Context, text string, voice domain.Voice) ([]byte, string, error) {
	if c.cfg.BaseURL == "" {
		return nil, "", fmt.Errorf("op=tts.Synthesize: %w: TTS_BASE_URL not set", domain.ErrConfiguration)
	}
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("op=tts.Synthesize: %w: empty text", domain.ErrInvalidArgument)
	}
	body, err := json.Marshal(speechRequest{Model: c.cfg.Model, Input: text, Voice: voice.Key, ResponseFormat: c.cfg.Format})
	if err != nil {
		return nil, "", fmt.Errorf("op=tts.Synthesize: %w: %v", domain.ErrInternal, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("op=tts.Synthesize: %w: %v", domain.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("op=tts.Synthesize: %w: %v", domain.ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", fmt.Errorf("op=tts.Synthesize: %w: status %d", domain.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, "", fmt.Errorf("op=tts.Synthesize: %w: status %d", domain.ErrRequestFailed, resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("op=tts.Synthesize: %w: %v", domain.ErrRequestFailed, err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		if known, ok := contentTypes[c.cfg.Format]; ok {
			ct = known
		}
	}
	return audio, ct, nil
}
