// Package speechmatics transcribes recorded answers with the Speechmatics batch API:
// a job is created from the audio file, polled until done, and its plain-text
// transcript fetched.
package speechmatics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// Job statuses reported by the API.
const (
	statusRunning  = "running"
	statusDone     = "done"
	statusRejected = "rejected"
)

// Config configures a Client.
type Config struct {
	APIKey       string
	BaseURL      string
	Language     string
	PollInterval time.Duration
	// Timeout bounds one whole transcription, upload to transcript.
	Timeout time.Duration
}

// Client implements domain.Transcriber.
type Client struct {
	cfg Config
	hc  *http.Client
}

// New builds a client. A missing key is reported on first use.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://asr.api.speechmatics.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{cfg: cfg, hc: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}}
}

var _ domain.Transcriber = (*Client)(nil)

// Name identifies the provider in metrics.
func (c *Client) Name() string { return "speechmatics" }

type jobConfig struct {
	Type                string `json:"type"`
	TranscriptionConfig struct {
		Language string `json:"language"`
	} `json:"transcription_config"`
}

type createJobResponse struct {
	ID string `json:"id"`
}

type jobResponse struct {
	Job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"job"`
}

// Transcribe returns the transcript of audio, or "" when nothing was recognized.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("op=speechmatics.Transcribe: %w: SPEECHMATICS_API_KEY not set", domain.ErrConfiguration)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	ctx, span := otel.Tracer("speechmatics").Start(ctx, "speechmatics.Transcribe")
	defer span.End()
	span.SetAttributes(attribute.Int("audio.size", len(audio)), attribute.String("audio.mime", mimeType))

	id, err := c.createJob(ctx, audio, mimeType)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=speechmatics.Transcribe: %w", err)
	}
	span.SetAttributes(attribute.String("speechmatics.job_id", id))
	if err := c.waitDone(ctx, id); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=speechmatics.Transcribe: %w", err)
	}
	text, err := c.transcript(ctx, id)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=speechmatics.Transcribe: %w", err)
	}
	return text, nil
}

func (c *Client) createJob(ctx context.Context, audio []byte, mimeType string) (string, error) {
	var cfg jobConfig
	cfg.Type = "transcription"
	cfg.TranscriptionConfig.Language = c.cfg.Language
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("config", string(cfgJSON)); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="data_file"; filename="answer"`)
	if mimeType != "" {
		h.Set("Content-Type", mimeType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}

	var out createJobResponse
	if err := c.do(ctx, http.MethodPost, "/v2/jobs", &body, mw.FormDataContentType(), &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: %w: job id missing", domain.ErrRequestFailed, domain.ErrMalformedResponse)
	}
	return out.ID, nil
}

var errJobRunning = errors.New("job still running")

func (c *Client) waitDone(ctx context.Context, id string) error {
	poll := func() error {
		var out jobResponse
		if err := c.do(ctx, http.MethodGet, "/v2/jobs/"+id, nil, "", &out); err != nil {
			return backoff.Permanent(err)
		}
		switch out.Job.Status {
		case statusDone:
			return nil
		case statusRejected:
			return backoff.Permanent(fmt.Errorf("%w: job %s rejected", domain.ErrRequestFailed, id))
		default:
			return errJobRunning
		}
	}
	err := backoff.Retry(poll, backoff.WithContext(backoff.NewConstantBackOff(c.cfg.PollInterval), ctx))
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: job %s: %v", domain.ErrUpstreamTimeout, id, ctx.Err())
	}
	return err
}

func (c *Client) transcript(ctx context.Context, id string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v2/jobs/"+id+"/transcript?format=txt", nil, "")
	if err != nil {
		return "", err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := statusErr(resp); err != nil {
		return "", err
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRequestFailed, err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := statusErr(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w: %v", domain.ErrRequestFailed, domain.ErrMalformedResponse, err)
	}
	return nil
}

func statusErr(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: speechmatics status %d", domain.ErrConfiguration, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: speechmatics status %d", domain.ErrRateLimited, resp.StatusCode)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: speechmatics status %d: %s", domain.ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
}
