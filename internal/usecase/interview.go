package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// Speech stages accepted by MarkSpoken.
const (
	StageQuestion = "question"
	StageThanks   = "thanks"
)

// InterviewSettings are the per-deployment interview defaults.
type InterviewSettings struct {
	MaxQuestions    int
	AnalysisTimeout time.Duration
	DefaultVoice    string
	InterviewerName string
}

// StartInput carries everything needed to open an interview.
type StartInput struct {
	ResumeFileName string
	ResumeData     []byte
	JobDescription string
	// MaxQuestions of 0 selects the configured default.
	MaxQuestions int
	Voice        string
}

// AnswerOutcome is the session after an answer plus the analysis that produced its turn.
type AnswerOutcome struct {
	Session  domain.InterviewSession `json:"session"`
	Feedback domain.FeedbackResult   `json:"feedback"`
	TimedOut bool                    `json:"timed_out"`
	Degraded bool                    `json:"degraded"`
}

// Results is the final report of an interview.
type Results struct {
	Session domain.InterviewSession `json:"session"`
	Record  domain.InterviewRecord  `json:"record"`
}

// InterviewService drives interview sessions through the domain state machine. Every
// operation on one session runs under that session's lock, so a session has a single
// driver at a time inside this process.
type InterviewService struct {
	Sessions    domain.SessionStore
	Records     domain.RecordRepository
	Events      domain.EventPublisher
	Analyzer    AnalyzeService
	Resume      ResumeService
	Transcriber domain.Transcriber
	Synth       domain.Synthesizer
	Script      *Script
	Settings    InterviewSettings

	Now   func() time.Time
	NewID func() string

	locks *keyedMutex
}

// NewInterviewService wires an InterviewService. Events, Transcriber and Synth may be nil.
func NewInterviewService(sessions domain.SessionStore, records domain.RecordRepository, events domain.EventPublisher,
	analyzer AnalyzeService, resume ResumeService, transcriber domain.Transcriber, synth domain.Synthesizer,
	script *Script, settings InterviewSettings) *InterviewService {
	return &InterviewService{
		Sessions:    sessions,
		Records:     records,
		Events:      events,
		Analyzer:    analyzer,
		Resume:      resume,
		Transcriber: transcriber,
		Synth:       synth,
		Script:      script,
		Settings:    settings,
		Now:         func() time.Time { return time.Now().UTC() },
		NewID:       func() string { return uuid.New().String() },
		locks:       newKeyedMutex(),
	}
}

func (s *InterviewService) lock(id string) func() {
	if s.locks == nil {
		s.locks = newKeyedMutex()
	}
	return s.locks.Lock(id)
}

func (s *InterviewService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// persistTimeout bounds writes that must land even after the caller has gone away.
const persistTimeout = 5 * time.Second

// persistContext keeps ctx values (logger, trace) but not its cancellation, so a
// completed step is stored even when the request that produced it was abandoned.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

// recordNamespace scopes the deterministic record ids of finalized sessions.
var recordNamespace = uuid.MustParse("7d0c56f1-3b5e-4c1e-9a6b-2f5d8e4a9c31")

// recordID is stable for one run of a session, so retrying ShowResults after a partial
// failure writes the same row instead of a second one.
func recordID(sess domain.InterviewSession) string {
	return uuid.NewSHA1(recordNamespace, []byte(fmt.Sprintf("%s/%d", sess.ID, sess.Attempt))).String()
}

func (s *InterviewService) voice(key string) (domain.Voice, error) {
	if strings.TrimSpace(key) == "" {
		key = s.Settings.DefaultVoice
	}
	v, ok := s.Script.Voice(key)
	if !ok {
		return domain.Voice{}, fmt.Errorf("%w: unknown voice %q", domain.ErrInvalidArgument, key)
	}
	if v.Name == "" {
		v.Name = s.Settings.InterviewerName
	}
	return v, nil
}

// Start extracts the résumé, creates a session and greets the candidate.
func (s *InterviewService) Start(ctx context.Context, in StartInput) (domain.InterviewSession, error) {
	ctx, span := otel.Tracer("usecase.interview").Start(ctx, "InterviewService.Start")
	defer span.End()

	jd := strings.TrimSpace(in.JobDescription)
	if jd == "" {
		return domain.InterviewSession{}, fmt.Errorf("op=usecase.Start: %w: job description required", domain.ErrInvalidArgument)
	}
	if len(in.ResumeData) == 0 {
		return domain.InterviewSession{}, fmt.Errorf("op=usecase.Start: %w: resume required", domain.ErrInvalidArgument)
	}
	maxQ := in.MaxQuestions
	if maxQ == 0 {
		maxQ = s.Settings.MaxQuestions
	}
	v, err := s.voice(in.Voice)
	if err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=usecase.Start: %w", err)
	}

	id := s.NewID()
	sess, err := domain.NewInterviewSession(id, domain.ResumeProfile{}, jd, maxQ, v, s.now())
	if err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=usecase.Start: %w", err)
	}
	ctx = observability.ContextWithSession(ctx, id)
	span.SetAttributes(attribute.String("interview.session_id", id), attribute.Int("interview.max_questions", maxQ))

	profile, err := s.Resume.Extract(ctx, in.ResumeFileName, in.ResumeData)
	if err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=usecase.Start: %w", err)
	}
	sess.CandidateName = profile.Name
	sess.ResumeHighlights = profile.Highlights

	if err := sess.Begin(s.Script.Greeting(sess.CandidateName, sess.InterviewerName)); err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=usecase.Start: %w", err)
	}
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=usecase.Start: %w", err)
	}
	observability.InterviewsStartedTotal.Inc()
	observability.LoggerFromContext(ctx).Info("interview started", "candidate", sess.CandidateName, "voice", sess.Voice, "max_questions", maxQ)
	return sess, nil
}

// Get returns the current session snapshot.
func (s *InterviewService) Get(ctx context.Context, id string) (domain.InterviewSession, error) {
	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=usecase.Get: %w", err)
	}
	return sess, nil
}

// MarkSpoken records that the client finished playing the current question or the
// thanks message. It reports whether this call was the first delivery.
func (s *InterviewService) MarkSpoken(ctx context.Context, id, stage string) (domain.InterviewSession, bool, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return domain.InterviewSession{}, false, fmt.Errorf("op=usecase.MarkSpoken: %w", err)
	}
	var first bool
	switch stage {
	case StageQuestion:
		first, err = sess.MarkQuestionSpoken()
	case StageThanks:
		first, err = sess.MarkThanksSpoken()
	default:
		err = fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidArgument, stage)
	}
	if err != nil {
		return domain.InterviewSession{}, false, fmt.Errorf("op=usecase.MarkSpoken: %w", err)
	}
	if first {
		sess.UpdatedAt = s.now()
		if err := s.Sessions.Save(ctx, sess); err != nil {
			return domain.InterviewSession{}, false, fmt.Errorf("op=usecase.MarkSpoken: %w", err)
		}
	}
	return sess, first, nil
}

// SubmitAnswer scores the transcript against the current question and advances the
// session. A blank transcript returns ErrEmptyTranscript and leaves the session as is.
func (s *InterviewService) SubmitAnswer(ctx context.Context, id, transcript string) (AnswerOutcome, error) {
	unlock := s.lock(id)
	defer unlock()
	return s.submitLocked(ctx, id, transcript)
}

func (s *InterviewService) submitLocked(ctx context.Context, id, transcript string) (AnswerOutcome, error) {
	ctx = observability.ContextWithSession(ctx, id)
	ctx, span := otel.Tracer("usecase.interview").Start(ctx, "InterviewService.SubmitAnswer")
	defer span.End()
	lg := observability.LoggerFromContext(ctx)

	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAnswer: %w", err)
	}
	// Scoring is held in memory only; the stored session stays in awaiting_answer until
	// the whole turn is recorded, so an abandoned request cannot strand it.
	if err := sess.AcceptAnswer(transcript); err != nil {
		return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAnswer: %w", err)
	}

	answer := strings.TrimSpace(transcript)
	in := AnalyzeInput{
		Question:         sess.CurrentQuestion,
		CandidateAnswer:  answer,
		JobDescription:   sess.JobDescription,
		ResumeHighlights: sess.ResumeHighlights,
		QuestionIndex:    sess.QuestionIndex,
		Final:            sess.IsFinalQuestion(),
	}
	span.SetAttributes(attribute.Int("interview.question_index", in.QuestionIndex))
	res, err := s.Analyzer.Analyze(ctx, in, s.Settings.AnalysisTimeout)
	if err != nil {
		return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAnswer: %w", err)
	}

	turn := domain.ConversationTurn{
		Question:        in.Question,
		CandidateAnswer: answer,
		Score:           res.Feedback.Score,
		Feedback:        res.Feedback.Text,
	}
	if err := sess.RecordTurn(turn, res.NextQuestion); err != nil {
		return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAnswer: %w", err)
	}
	if sess.State == domain.StateCompleting {
		if _, err := sess.PrepareThanks(s.Script.ThanksMessage(sess.CandidateName)); err != nil {
			return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAnswer: %w", err)
		}
	}
	sess.UpdatedAt = s.now()
	saveCtx, cancel := persistContext(ctx)
	defer cancel()
	if err := s.Sessions.Save(saveCtx, sess); err != nil {
		return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAnswer: %w", err)
	}
	lg.Info("answer recorded", "question_index", in.QuestionIndex, "score", turn.Score, "degraded", res.Degraded, "timed_out", res.TimedOut, "state", sess.State)
	return AnswerOutcome{Session: sess, Feedback: res.Feedback, TimedOut: res.TimedOut, Degraded: res.Degraded}, nil
}

// SubmitAudio transcribes a recorded answer and submits it. No speech, or a failed
// transcription, returns ErrEmptyTranscript so the client re-prompts.
func (s *InterviewService) SubmitAudio(ctx context.Context, id string, audio []byte, mimeType string) (AnswerOutcome, error) {
	unlock := s.lock(id)
	defer unlock()
	ctx = observability.ContextWithSession(ctx, id)

	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAudio: %w", err)
	}
	if sess.State != domain.StateAwaitingAnswer {
		return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAudio: %w: answer not expected in state %s", domain.ErrInvalidTransition, sess.State)
	}
	if s.Transcriber == nil {
		return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAudio: %w: no speech-to-text provider configured", domain.ErrConfiguration)
	}
	if len(audio) == 0 {
		return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAudio: %w: no speech detected", domain.ErrEmptyTranscript)
	}

	text, err := s.Transcriber.Transcribe(ctx, audio, mimeType)
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		observability.TranscriptionsTotal.WithLabelValues(s.transcriberName(), "error").Inc()
		return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAudio: %w", err)
	case err != nil:
		observability.TranscriptionsTotal.WithLabelValues(s.transcriberName(), "error").Inc()
		observability.LoggerFromContext(ctx).Warn("transcription failed", "error", err)
		return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAudio: %w: no speech detected", domain.ErrEmptyTranscript)
	case strings.TrimSpace(text) == "":
		observability.TranscriptionsTotal.WithLabelValues(s.transcriberName(), "empty").Inc()
		return AnswerOutcome{}, fmt.Errorf("op=usecase.SubmitAudio: %w: no speech detected", domain.ErrEmptyTranscript)
	}
	observability.TranscriptionsTotal.WithLabelValues(s.transcriberName(), "ok").Inc()
	return s.submitLocked(ctx, id, text)
}

func (s *InterviewService) transcriberName() string {
	if n, ok := s.Transcriber.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}

// ShowResults finalizes the interview. The first call persists the record and
// publishes the completion event; later calls return the stored record.
func (s *InterviewService) ShowResults(ctx context.Context, id string) (Results, error) {
	unlock := s.lock(id)
	defer unlock()
	ctx = observability.ContextWithSession(ctx, id)
	ctx, span := otel.Tracer("usecase.interview").Start(ctx, "InterviewService.ShowResults")
	defer span.End()
	lg := observability.LoggerFromContext(ctx)

	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return Results{}, fmt.Errorf("op=usecase.ShowResults: %w", err)
	}
	first, err := sess.ShowResults()
	if err != nil {
		return Results{}, fmt.Errorf("op=usecase.ShowResults: %w", err)
	}
	if !first {
		rec, err := s.Records.Get(ctx, sess.RecordID)
		if err != nil {
			return Results{}, fmt.Errorf("op=usecase.ShowResults: %w", err)
		}
		return Results{Session: sess, Record: rec}, nil
	}

	// The record insert is idempotent on its id; the session is only marked shown once
	// both writes landed, so any failure here leaves a retryable thanks_spoken session.
	now := s.now()
	rec := sess.Record(now)
	rec.ID = recordID(sess)
	saveCtx, cancel := persistContext(ctx)
	defer cancel()
	recID, err := s.Records.Save(saveCtx, rec)
	if err != nil {
		return Results{}, fmt.Errorf("op=usecase.ShowResults: %w", err)
	}
	rec.ID = recID
	sess.RecordID = recID
	sess.UpdatedAt = now
	if err := s.Sessions.Save(saveCtx, sess); err != nil {
		return Results{}, fmt.Errorf("op=usecase.ShowResults: %w", err)
	}

	if s.Events != nil {
		ev := domain.InterviewCompletedEvent{Record: rec, CompletedAt: now}
		if err := s.Events.PublishInterviewCompleted(ctx, ev); err != nil {
			lg.Error("failed to publish interview completed event", "record_id", recID, "error", err)
		}
	}
	observability.ObserveCompletion(rec.OverallScore)
	span.SetAttributes(attribute.Float64("interview.overall_score", rec.OverallScore))
	lg.Info("interview completed", "record_id", recID, "overall_score", rec.OverallScore, "turns", len(rec.Conversations))
	return Results{Session: sess, Record: rec}, nil
}

// Reset restarts the interview from scratch with the same candidate and settings. The
// greeting is issued again.
func (s *InterviewService) Reset(ctx context.Context, id string) (domain.InterviewSession, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=usecase.Reset: %w", err)
	}
	sess.Reset()
	if err := sess.Begin(s.Script.Greeting(sess.CandidateName, sess.InterviewerName)); err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=usecase.Reset: %w", err)
	}
	sess.UpdatedAt = s.now()
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=usecase.Reset: %w", err)
	}
	return sess, nil
}

// Speech synthesizes the interviewer line for the current state.
func (s *InterviewService) Speech(ctx context.Context, id string) ([]byte, string, error) {
	if s.Synth == nil {
		return nil, "", fmt.Errorf("op=usecase.Speech: %w: no text-to-speech provider configured", domain.ErrConfiguration)
	}
	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("op=usecase.Speech: %w", err)
	}
	line := sess.CurrentLine()
	if strings.TrimSpace(line) == "" {
		return nil, "", fmt.Errorf("op=usecase.Speech: %w: nothing to say in state %s", domain.ErrConflict, sess.State)
	}
	v, ok := s.Script.Voice(sess.Voice)
	if !ok {
		v, _ = s.voice("")
	}
	audio, ct, err := s.Synth.Synthesize(ctx, line, v)
	if err != nil {
		return nil, "", fmt.Errorf("op=usecase.Speech: %w", err)
	}
	return audio, ct, nil
}

// Record returns a persisted interview record.
func (s *InterviewService) Record(ctx context.Context, id string) (domain.InterviewRecord, error) {
	rec, err := s.Records.Get(ctx, id)
	if err != nil {
		return domain.InterviewRecord{}, fmt.Errorf("op=usecase.Record: %w", err)
	}
	return rec, nil
}

// CandidateRecords lists the latest records of a candidate.
func (s *InterviewService) CandidateRecords(ctx context.Context, name string, limit int) ([]domain.InterviewRecord, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("op=usecase.CandidateRecords: %w: name required", domain.ErrInvalidArgument)
	}
	recs, err := s.Records.ListByCandidate(ctx, name, limit)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.CandidateRecords: %w", err)
	}
	return recs, nil
}

// Voices lists the interviewer voice cards.
func (s *InterviewService) Voices() []domain.Voice {
	out := make([]domain.Voice, len(s.Script.Voices))
	copy(out, s.Script.Voices)
	return out
}
