// Package usecase contains the interview application services.
package usecase

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// DefaultAnalysisTimeout bounds one answer analysis when no timeout is given.
const DefaultAnalysisTimeout = 30 * time.Second

// AnalyzeInput is the snapshot of session data one analysis works from.
type AnalyzeInput struct {
	Question         string
	CandidateAnswer  string
	JobDescription   string
	ResumeHighlights string
	QuestionIndex    int
	// Final marks the last question: only feedback is requested.
	Final bool
}

// AnalyzeService scores an answer and proposes the next question. The feedback and
// next-question calls run concurrently and are joined under one deadline.
type AnalyzeService struct {
	LLM     domain.LLMGateway
	Prompts Prompts
	Script  *Script
	Schemas *ai.SchemaChecker
}

// NewAnalyzeService constructs an AnalyzeService.
func NewAnalyzeService(llm domain.LLMGateway, prompts Prompts, script *Script, schemas *ai.SchemaChecker) AnalyzeService {
	return AnalyzeService{LLM: llm, Prompts: prompts, Script: script, Schemas: schemas}
}

// Analyze never fails because of the model: rate limiting, request failures, garbage
// output and the deadline all produce fallback values. Only a configuration error or
// cancellation of ctx itself is returned.
func (s AnalyzeService) Analyze(ctx context.Context, in AnalyzeInput, timeout time.Duration) (domain.AnalysisResult, error) {
	if timeout <= 0 {
		timeout = DefaultAnalysisTimeout
	}
	tracer := otel.Tracer("usecase.analyze")
	ctx, span := tracer.Start(ctx, "AnalyzeService.Analyze")
	defer span.End()
	span.SetAttributes(attribute.Int("interview.question_index", in.QuestionIndex), attribute.Bool("interview.final", in.Final))
	lg := observability.LoggerFromContext(ctx)

	feedbackPrompt, err := s.Prompts.Feedback(in)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("op=usecase.Analyze: %w: %v", domain.ErrInternal, err)
	}
	var nextPrompt string
	if !in.Final {
		if nextPrompt, err = s.Prompts.NextQuestion(in); err != nil {
			return domain.AnalysisResult{}, fmt.Errorf("op=usecase.Analyze: %w: %v", domain.ErrInternal, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Each goroutine owns its slot; they are read only after g.Wait returns.
	var (
		feedbackRaw, nextRaw string
		feedbackErr, nextErr error
	)
	g, gctx := errgroup.WithContext(callCtx)
	g.Go(func() error {
		feedbackRaw, feedbackErr = s.LLM.Call(gctx, feedbackPrompt)
		if domain.IsFatalConfig(feedbackErr) {
			return feedbackErr
		}
		return nil
	})
	if !in.Final {
		g.Go(func() error {
			nextRaw, nextErr = s.LLM.Call(gctx, nextPrompt)
			if domain.IsFatalConfig(nextErr) {
				return nextErr
			}
			return nil
		})
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	joined := false
	select {
	case <-callCtx.Done():
	case err := <-done:
		joined = true
		if err != nil {
			observability.AnalysisOutcomesTotal.WithLabelValues("error").Inc()
			return domain.AnalysisResult{}, fmt.Errorf("op=usecase.Analyze: %w", err)
		}
	}
	// The caller going away is not a model timeout: nothing is scored.
	if err := ctx.Err(); err != nil {
		observability.AnalysisOutcomesTotal.WithLabelValues("cancelled").Inc()
		lg.Info("answer analysis cancelled by caller", "question_index", in.QuestionIndex, "error", err)
		return domain.AnalysisResult{}, fmt.Errorf("op=usecase.Analyze: %w", err)
	}
	// The deadline may fire while the calls are returning; a call cut short by it counts
	// as a timeout no matter which select case won. The slots are read only once joined.
	if callCtx.Err() != nil && (!joined || feedbackErr != nil || nextErr != nil) {
		res := s.timeoutResult(in)
		lg.Warn("answer analysis timed out, using fallback", "timeout", timeout, "question_index", in.QuestionIndex)
		span.SetAttributes(attribute.Bool("interview.timed_out", true))
		observability.ObserveAnalysis("timeout", res.Feedback.Score)
		return res, nil
	}

	res := domain.AnalysisResult{}
	if feedbackErr != nil {
		lg.Warn("feedback call failed, using fallback", "error", feedbackErr)
		res.Feedback = domain.FeedbackResult{Text: s.Script.UnclearFeedback, Score: 0}
		res.Degraded = true
	} else {
		parsed := ai.Parse(feedbackRaw)
		s.Schemas.Check(ctx, PromptFeedback, parsed)
		fb, substituted := NormalizeFeedback(parsed.Map(), s.Script.UnclearFeedback)
		res.Feedback = fb
		res.Degraded = res.Degraded || substituted
	}

	if !in.Final {
		fallback := s.Script.FallbackQuestion(in.QuestionIndex)
		next := fallback
		if nextErr != nil {
			lg.Warn("next question call failed, using fallback", "error", nextErr)
			res.Degraded = true
		} else {
			parsed := ai.Parse(nextRaw)
			s.Schemas.Check(ctx, PromptNextQuestion, parsed)
			var substituted bool
			next, substituted = NormalizeNextQuestion(parsed.Map(), fallback)
			res.Degraded = res.Degraded || substituted
		}
		res.NextQuestion = &next
	}

	outcome := "ok"
	if res.Degraded {
		outcome = "degraded"
	}
	span.SetAttributes(attribute.Bool("interview.degraded", res.Degraded), attribute.Float64("interview.score", res.Feedback.Score))
	observability.ObserveAnalysis(outcome, res.Feedback.Score)
	return res, nil
}

func (s AnalyzeService) timeoutResult(in AnalyzeInput) domain.AnalysisResult {
	res := domain.AnalysisResult{
		Feedback: domain.FeedbackResult{Text: s.Script.UnclearFeedback, Score: 0},
		TimedOut: true,
		Degraded: true,
	}
	if !in.Final {
		q := s.Script.GenericQuestion()
		res.NextQuestion = &q
	}
	return res
}
