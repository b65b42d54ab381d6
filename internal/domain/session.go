package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SessionState is a state of the interview session state machine.
type SessionState string

const (
	StateNotStarted     SessionState = "not_started"
	StateGreeting       SessionState = "greeting"
	StateAwaitingAnswer SessionState = "awaiting_answer"
	StateScoring        SessionState = "scoring"
	StateCompleting     SessionState = "completing"
	StateThanksPrepared SessionState = "thanks_prepared"
	StateThanksSpoken   SessionState = "thanks_spoken"
	StateResultsShown   SessionState = "results_shown"
)

// Question count bounds accepted for a single interview.
const (
	MinQuestions     = 1
	MaxQuestionLimit = 10
)

// InterviewSession is the single live state of one interview. It is owned by exactly one
// driver at a time; methods mutate the receiver and are not safe for concurrent use.
//
// Invariant: len(Turns) == QuestionIndex-1 after every transition.
type InterviewSession struct {
	ID               string             `json:"id"`
	CandidateName    string             `json:"candidate_name"`
	ResumeHighlights string             `json:"resume_highlights"`
	JobDescription   string             `json:"job_description"`
	InterviewerName  string             `json:"interviewer_name"`
	Voice            string             `json:"voice"`
	Turns            []ConversationTurn `json:"turns"`
	QuestionIndex    int                `json:"question_index"`
	MaxQuestions     int                `json:"max_questions"`
	CurrentQuestion  string             `json:"current_question"`
	Completed        bool               `json:"completed"`
	State            SessionState       `json:"state"`
	QuestionSpoken   bool               `json:"question_spoken"`
	ThanksPrepared   bool               `json:"thanks_prepared"`
	ThanksMessage    string             `json:"thanks_message,omitempty"`
	ThanksSpoken     bool               `json:"thanks_spoken"`
	ResultsShown     bool               `json:"results_shown"`
	OverallScore     float64            `json:"overall_score"`
	RecordID         string             `json:"record_id,omitempty"`
	// Attempt counts resets; each attempt yields at most one record.
	Attempt          int                `json:"attempt"`
	Messages         []Message          `json:"messages"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// NewInterviewSession creates a session in the not_started state.
func NewInterviewSession(id string, profile ResumeProfile, jobDescription string, maxQuestions int, voice Voice, now time.Time) (InterviewSession, error) {
	if strings.TrimSpace(id) == "" {
		return InterviewSession{}, fmt.Errorf("%w: session id required", ErrInvalidArgument)
	}
	if maxQuestions < MinQuestions || maxQuestions > MaxQuestionLimit {
		return InterviewSession{}, fmt.Errorf("%w: max_questions must be between %d and %d", ErrInvalidArgument, MinQuestions, MaxQuestionLimit)
	}
	return InterviewSession{
		ID:               id,
		CandidateName:    profile.Name,
		ResumeHighlights: profile.Highlights,
		JobDescription:   jobDescription,
		InterviewerName:  voice.Name,
		Voice:            voice.Key,
		QuestionIndex:    1,
		MaxQuestions:     maxQuestions,
		State:            StateNotStarted,
		Turns:            []ConversationTurn{},
		Messages:         []Message{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (s *InterviewSession) transitionErr(op string) error {
	return fmt.Errorf("%w: %s not allowed in state %s", ErrInvalidTransition, op, s.State)
}

// Begin moves not_started -> greeting. The greeting embeds the first question.
func (s *InterviewSession) Begin(greeting string) error {
	if s.State != StateNotStarted {
		return s.transitionErr("begin")
	}
	if strings.TrimSpace(greeting) == "" {
		return fmt.Errorf("%w: greeting required", ErrInvalidArgument)
	}
	s.QuestionIndex = 1
	s.CurrentQuestion = greeting
	s.QuestionSpoken = false
	s.Messages = append(s.Messages, Message{Role: RoleInterviewer, Text: greeting})
	s.State = StateGreeting
	return nil
}

// MarkQuestionSpoken records delivery of the greeting or current question. It reports
// whether this call was the first delivery; later calls are no-ops until a new question
// resets the flag.
func (s *InterviewSession) MarkQuestionSpoken() (bool, error) {
	switch s.State {
	case StateGreeting:
		s.QuestionSpoken = true
		s.State = StateAwaitingAnswer
		return true, nil
	case StateAwaitingAnswer:
		first := !s.QuestionSpoken
		s.QuestionSpoken = true
		return first, nil
	default:
		return false, s.transitionErr("mark question spoken")
	}
}

// AcceptAnswer moves awaiting_answer -> scoring. Blank transcripts leave the state untouched.
func (s *InterviewSession) AcceptAnswer(transcript string) error {
	if s.State != StateAwaitingAnswer {
		return s.transitionErr("accept answer")
	}
	if strings.TrimSpace(transcript) == "" {
		return ErrEmptyTranscript
	}
	s.Messages = append(s.Messages, Message{Role: RoleCandidate, Text: strings.TrimSpace(transcript)})
	s.State = StateScoring
	return nil
}

// IsFinalQuestion reports whether the question currently asked is the last one.
func (s *InterviewSession) IsFinalQuestion() bool {
	return s.QuestionIndex >= s.MaxQuestions
}

// RecordTurn appends the scored turn and moves scoring -> awaiting_answer when next is
// non-nil and questions remain, or scoring -> completing otherwise.
func (s *InterviewSession) RecordTurn(turn ConversationTurn, next *string) error {
	if s.State != StateScoring {
		return s.transitionErr("record turn")
	}
	s.Turns = append(s.Turns, turn)
	s.QuestionIndex++
	if s.QuestionIndex <= s.MaxQuestions && next != nil && strings.TrimSpace(*next) != "" {
		s.CurrentQuestion = *next
		s.QuestionSpoken = false
		s.Messages = append(s.Messages, Message{Role: RoleInterviewer, Text: *next})
		s.State = StateAwaitingAnswer
		return nil
	}
	s.Completed = true
	s.State = StateCompleting
	return nil
}

// PrepareThanks moves completing -> thanks_prepared once; later calls return the stored
// message unchanged.
func (s *InterviewSession) PrepareThanks(message string) (string, error) {
	if s.ThanksPrepared {
		return s.ThanksMessage, nil
	}
	if s.State != StateCompleting {
		return "", s.transitionErr("prepare thanks")
	}
	s.ThanksMessage = message
	s.ThanksPrepared = true
	s.Messages = append(s.Messages, Message{Role: RoleInterviewer, Text: message})
	s.State = StateThanksPrepared
	return message, nil
}

// MarkThanksSpoken moves thanks_prepared -> thanks_spoken once.
func (s *InterviewSession) MarkThanksSpoken() (bool, error) {
	if s.ThanksSpoken {
		return false, nil
	}
	if s.State != StateThanksPrepared {
		return false, s.transitionErr("mark thanks spoken")
	}
	s.ThanksSpoken = true
	s.State = StateThanksSpoken
	return true, nil
}

// ShowResults moves thanks_spoken -> results_shown, computing the final score exactly once.
// It reports whether this call performed the computation.
func (s *InterviewSession) ShowResults() (bool, error) {
	if s.ResultsShown {
		return false, nil
	}
	if s.State != StateThanksSpoken {
		return false, s.transitionErr("show results")
	}
	s.OverallScore = RoundScore(s.AggregateScore())
	s.ResultsShown = true
	s.State = StateResultsShown
	return true, nil
}

// Reset discards every turn and flag, keeping the candidate profile and settings.
func (s *InterviewSession) Reset() {
	s.Turns = []ConversationTurn{}
	s.Messages = []Message{}
	s.QuestionIndex = 1
	s.CurrentQuestion = ""
	s.Completed = false
	s.QuestionSpoken = false
	s.ThanksPrepared = false
	s.ThanksMessage = ""
	s.ThanksSpoken = false
	s.ResultsShown = false
	s.OverallScore = 0
	s.RecordID = ""
	s.Attempt++
	s.State = StateNotStarted
}

// AggregateScore is the arithmetic mean of all turn scores, 0 with no turns.
func (s *InterviewSession) AggregateScore() float64 {
	return MeanScore(s.Turns)
}

// CurrentLine returns the interviewer line a client should play for the current state.
func (s *InterviewSession) CurrentLine() string {
	switch s.State {
	case StateThanksPrepared, StateThanksSpoken, StateResultsShown:
		return s.ThanksMessage
	default:
		return s.CurrentQuestion
	}
}

// Record builds the persisted report of a session.
func (s *InterviewSession) Record(now time.Time) InterviewRecord {
	convs := make([]RecordTurn, 0, len(s.Turns))
	for _, t := range s.Turns {
		convs = append(convs, RecordTurn{
			Question:        t.Question,
			CandidateAnswer: t.CandidateAnswer,
			Evaluation:      t.Score,
			Feedback:        t.Feedback,
		})
	}
	return InterviewRecord{
		SessionID:        s.ID,
		CandidateName:    s.CandidateName,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        now,
		JobDescription:   s.JobDescription,
		ResumeHighlights: s.ResumeHighlights,
		Conversations:    convs,
		OverallScore:     RoundScore(s.AggregateScore()),
	}
}

// MeanScore averages turn scores.
func MeanScore(turns []ConversationTurn) float64 {
	if len(turns) == 0 {
		return 0
	}
	var sum float64
	for _, t := range turns {
		sum += t.Score
	}
	return sum / float64(len(turns))
}

// RoundScore rounds to two decimals.
func RoundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
