// Package google transcribes recorded answers with Google Cloud Speech-to-Text.
package google

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Adapter implements domain.Transcriber with synchronous recognition.
type Adapter struct {
	recognize    recognizeFunc
	close        func() error
	languageCode string
}

// New creates a Google STT adapter. Credentials come from
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, languageCode string) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("op=google.New: %w: %v", domain.ErrConfiguration, err)
	}
	a := newWithRecognizer(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return c.Recognize(ctx, req)
	}, languageCode)
	a.close = c.Close
	return a, nil
}

func newWithRecognizer(fn recognizeFunc, languageCode string) *Adapter {
	if languageCode == "" {
		languageCode = "en-US"
	}
	return &Adapter{recognize: fn, close: func() error { return nil }, languageCode: languageCode}
}

var _ domain.Transcriber = (*Adapter)(nil)

// Name identifies the provider in metrics.
func (a *Adapter) Name() string { return "google" }

// Close releases the underlying gRPC connection.
func (a *Adapter) Close() error { return a.close() }

// Transcribe joins the top alternative of every result.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(mimeType),
			LanguageCode:               a.languageCode,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}
	resp, err := a.recognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("op=google.Transcribe: %w", classify(err))
	}
	parts := make([]string, 0, len(resp.GetResults()))
	for _, r := range resp.GetResults() {
		if alts := r.GetAlternatives(); len(alts) > 0 {
			if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " "), nil
}

// parseAudioEncoding maps an upload content type to a recognition encoding. WAV and
// FLAC carry headers, so the service reads their parameters itself.
func parseAudioEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	mt, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	switch strings.TrimSpace(mt) {
	case "audio/webm", "video/webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case "audio/ogg", "audio/opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "audio/flac", "audio/x-flac":
		return speechpb.RecognitionConfig_FLAC
	case "audio/amr":
		return speechpb.RecognitionConfig_AMR
	case "audio/basic", "audio/mulaw":
		return speechpb.RecognitionConfig_MULAW
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrRequestFailed, err)
	}
}
