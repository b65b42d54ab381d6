// Package tika extracts résumé text through an Apache Tika server.
//
// Plain-text uploads are handled locally; PDF and Word documents are sent to
// PUT /tika with Accept: text/plain. See https://tika.apache.org/server/.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/pkg/textx"
)

const defaultBaseURL = "http://localhost:9998"

// Client implements domain.TextExtractor.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Tika client with a default timeout.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

var _ domain.TextExtractor = (*Client)(nil)

// Extract returns the plain text of the uploaded file with whitespace collapsed.
func (c *Client) Extract(ctx context.Context, fileName string, data []byte) (string, error) {
	ctx, span := otel.Tracer("tika").Start(ctx, "tika.Extract")
	defer span.End()
	span.SetAttributes(attribute.String("file.ext", filepath.Ext(fileName)), attribute.Int("file.size", len(data)))

	if len(data) == 0 {
		return "", fmt.Errorf("op=tika.Extract: %w: empty file", domain.ErrInvalidArgument)
	}
	ct := contentType(fileName, data)
	var text string
	if strings.HasPrefix(ct, "text/plain") {
		text = textx.CollapseSpaces(string(data))
	} else {
		out, err := c.remote(ctx, ct, data)
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("op=tika.Extract: %w", err)
		}
		text = out
	}
	if text == "" {
		return "", fmt.Errorf("op=tika.Extract: %w: no text could be extracted from %s", domain.ErrInvalidArgument, fileName)
	}
	return text, nil
}

func (c *Client) remote(ctx context.Context, ct string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	req.Header.Set("Accept", "text/plain")
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: tika: %v", domain.ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: tika status %d", domain.ErrRequestFailed, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: tika body: %v", domain.ErrRequestFailed, err)
	}
	return textx.CollapseSpaces(string(b)), nil
}

// contentType prefers the extension and falls back to sniffing the bytes.
func contentType(fileName string, data []byte) string {
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt", ".md":
		return "text/plain"
	case "":
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	return mimetype.Detect(data).String()
}
