package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrRequestFailed     = errors.New("request failed")
	ErrMalformedResponse = errors.New("malformed response")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrEmptyTranscript   = errors.New("empty transcript")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrConfiguration     = errors.New("configuration error")
	ErrInternal          = errors.New("internal error")
)

// ConversationTurn is one answered question. Turns are appended once and never mutated.
type ConversationTurn struct {
	Question        string  `json:"question"`
	CandidateAnswer string  `json:"candidate_answer"`
	Score           float64 `json:"score"`
	Feedback        string  `json:"feedback"`
}

// FeedbackResult is the normalized feedback for a single answer.
type FeedbackResult struct {
	Text  string  `json:"feedback"`
	Score float64 `json:"score"`
}

// AnalysisResult is produced per analyzed answer and merged into a ConversationTurn.
// NextQuestion is nil exactly when the analyzed answer belonged to the final question.
type AnalysisResult struct {
	NextQuestion *string
	Feedback     FeedbackResult
	// TimedOut is set when the deadline elapsed and every value is a fallback.
	TimedOut bool
	// Degraded is set when at least one value was substituted by a fallback.
	Degraded bool
}

// MessageRole identifies the speaker of a transcript line.
type MessageRole string

const (
	RoleInterviewer MessageRole = "interviewer"
	RoleCandidate   MessageRole = "candidate"
)

// Message is one line of the interview chat transcript.
type Message struct {
	Role MessageRole `json:"role"`
	Text string      `json:"text"`
}

// Voice describes an interviewer voice card.
type Voice struct {
	Key  string `json:"key" yaml:"key"`
	Name string `json:"name" yaml:"name"`
	Tag  string `json:"tag" yaml:"tag"`
	Code string `json:"code" yaml:"code"`
}

// RecordTurn is the persisted form of a ConversationTurn.
type RecordTurn struct {
	Question        string  `json:"Question"`
	CandidateAnswer string  `json:"Candidate Answer"`
	Evaluation      float64 `json:"Evaluation"`
	Feedback        string  `json:"Feedback"`
}

// InterviewRecord is the final, candidate-keyed interview report.
type InterviewRecord struct {
	ID               string       `json:"id"`
	SessionID        string       `json:"session_id"`
	CandidateName    string       `json:"name"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
	JobDescription   string       `json:"job_description"`
	ResumeHighlights string       `json:"resume_highlights"`
	Conversations    []RecordTurn `json:"conversations"`
	OverallScore     float64      `json:"overall_score"`
}

// ResumeProfile is what the résumé extraction prompt yields.
type ResumeProfile struct {
	Name       string
	Highlights string
}

// InterviewCompletedEvent is published once per finalized interview.
type InterviewCompletedEvent struct {
	Record      InterviewRecord `json:"record"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Ports

// LLMProvider performs exactly one text-generation request. Implementations classify
// failures as ErrRateLimited, ErrRequestFailed or ErrConfiguration.
type LLMProvider interface {
	Complete(ctx Context, prompt string) (string, error)
	Name() string
}

// LLMGateway is the retrying, stateless entry point used by the usecases.
type LLMGateway interface {
	Call(ctx Context, prompt string) (string, error)
}

// Transcriber converts a recorded answer to text. An empty transcript with a nil error
// means no speech was detected.
type Transcriber interface {
	Transcribe(ctx Context, audio []byte, mimeType string) (string, error)
}

// Synthesizer renders interviewer text to audio.
type Synthesizer interface {
	Synthesize(ctx Context, text string, voice Voice) (audio []byte, contentType string, err error)
}

// TextExtractor extracts plain text from an uploaded document.
type TextExtractor interface {
	Extract(ctx Context, fileName string, data []byte) (string, error)
}

// SessionStore holds live interview sessions.
type SessionStore interface {
	Save(ctx Context, s InterviewSession) error
	Get(ctx Context, id string) (InterviewSession, error)
}

// RecordRepository persists final interview records.
type RecordRepository interface {
	Save(ctx Context, r InterviewRecord) (string, error)
	Get(ctx Context, id string) (InterviewRecord, error)
	ListByCandidate(ctx Context, name string, limit int) ([]InterviewRecord, error)
}

// EventPublisher announces finalized interviews.
type EventPublisher interface {
	PublishInterviewCompleted(ctx Context, ev InterviewCompletedEvent) error
}

// Context is an alias to keep the ports free of an extra import in adapters.
type Context = context.Context
