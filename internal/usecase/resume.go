package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// FallbackCandidateName is used when the résumé yields no name.
const FallbackCandidateName = "Candidate"

// fallbackHighlightRunes caps the raw résumé text used as highlights when extraction fails.
const fallbackHighlightRunes = 1500

// ResumeService turns an uploaded résumé into a ResumeProfile.
type ResumeService struct {
	Extractor domain.TextExtractor
	LLM       domain.LLMGateway
	Prompts   Prompts
	Schemas   *ai.SchemaChecker
}

// NewResumeService constructs a ResumeService.
func NewResumeService(extractor domain.TextExtractor, llm domain.LLMGateway, prompts Prompts, schemas *ai.SchemaChecker) ResumeService {
	return ResumeService{Extractor: extractor, LLM: llm, Prompts: prompts, Schemas: schemas}
}

// Extract reads the résumé text and asks the model for name and highlights. Text
// extraction errors are returned; model failures other than ErrConfiguration degrade to
// the fallback name and the raw résumé text.
func (s ResumeService) Extract(ctx context.Context, fileName string, data []byte) (domain.ResumeProfile, error) {
	ctx, span := otel.Tracer("usecase.resume").Start(ctx, "ResumeService.Extract")
	defer span.End()
	lg := observability.LoggerFromContext(ctx)

	if s.Extractor == nil {
		return domain.ResumeProfile{}, fmt.Errorf("op=usecase.ResumeExtract: %w: no text extractor configured", domain.ErrConfiguration)
	}
	text, err := s.Extractor.Extract(ctx, fileName, data)
	if err != nil {
		return domain.ResumeProfile{}, fmt.Errorf("op=usecase.ResumeExtract: %w", err)
	}

	fallback := domain.ResumeProfile{Name: FallbackCandidateName, Highlights: clip(text, fallbackHighlightRunes)}
	prompt, err := s.Prompts.Resume(text)
	if err != nil {
		return domain.ResumeProfile{}, fmt.Errorf("op=usecase.ResumeExtract: %w: %v", domain.ErrInternal, err)
	}
	raw, err := s.LLM.Call(ctx, prompt)
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return domain.ResumeProfile{}, fmt.Errorf("op=usecase.ResumeExtract: %w", err)
		}
		lg.Warn("resume extraction failed, using raw text", "error", err)
		return fallback, nil
	}

	parsed := ai.Parse(raw)
	s.Schemas.Check(ctx, PromptResume, parsed)
	fields := parsed.Map()
	profile := domain.ResumeProfile{
		Name:       stringField(fields, "name"),
		Highlights: stringField(fields, "resume_highlights"),
	}
	if profile.Name == "" {
		profile.Name = fallback.Name
	}
	if profile.Highlights == "" {
		profile.Highlights = fallback.Highlights
	}
	return profile, nil
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
