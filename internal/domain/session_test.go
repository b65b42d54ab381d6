package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, maxQuestions int) InterviewSession {
	t.Helper()
	s, err := NewInterviewSession("s-1", ResumeProfile{Name: "Ada", Highlights: "Go, Kafka"}, "Backend engineer", maxQuestions,
		Voice{Key: "zephyr", Name: "Zephyr"}, time.Unix(1700000000, 0).UTC())
	require.NoError(t, err)
	return s
}

func strPtr(s string) *string { return &s }

func assertTurnInvariant(t *testing.T, s InterviewSession) {
	t.Helper()
	assert.Equal(t, s.QuestionIndex-1, len(s.Turns), "len(turns) must equal question_index-1 in state %s", s.State)
}

func TestNewInterviewSession_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      string
		max     int
		wantErr bool
	}{
		{"ok_min", "a", 1, false},
		{"ok_max", "a", 10, false},
		{"zero_questions", "a", 0, true},
		{"too_many_questions", "a", 11, true},
		{"blank_id", "  ", 3, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := NewInterviewSession(tt.id, ResumeProfile{Name: "Ada"}, "jd", tt.max, Voice{}, time.Now())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateNotStarted, s.State)
			assertTurnInvariant(t, s)
		})
	}
}

func TestSession_FullLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, 3)
	require.NoError(t, s.Begin("Hi Ada, tell me about yourself."))
	assert.Equal(t, StateGreeting, s.State)
	assertTurnInvariant(t, s)

	first, err := s.MarkQuestionSpoken()
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, StateAwaitingAnswer, s.State)

	again, err := s.MarkQuestionSpoken()
	require.NoError(t, err)
	assert.False(t, again, "spoken flag is sticky")

	scores := []float64{8, 6, 10}
	for i, sc := range scores {
		require.NoError(t, s.AcceptAnswer("answer"))
		assert.Equal(t, StateScoring, s.State)
		final := s.IsFinalQuestion()
		assert.Equal(t, i == len(scores)-1, final)
		var next *string
		if !final {
			next = strPtr("next question")
		}
		require.NoError(t, s.RecordTurn(ConversationTurn{Question: s.CurrentQuestion, CandidateAnswer: "answer", Score: sc}, next))
		assertTurnInvariant(t, s)
		if !final {
			assert.Equal(t, StateAwaitingAnswer, s.State)
			assert.False(t, s.QuestionSpoken, "new question resets the spoken flag")
		}
	}
	assert.Equal(t, StateCompleting, s.State)
	assert.True(t, s.Completed)
	assert.Len(t, s.Turns, 3)

	msg, err := s.PrepareThanks("Thanks Ada")
	require.NoError(t, err)
	assert.Equal(t, "Thanks Ada", msg)
	msg, err = s.PrepareThanks("other")
	require.NoError(t, err)
	assert.Equal(t, "Thanks Ada", msg, "thanks is prepared once")

	spoken, err := s.MarkThanksSpoken()
	require.NoError(t, err)
	assert.True(t, spoken)
	spoken, err = s.MarkThanksSpoken()
	require.NoError(t, err)
	assert.False(t, spoken)

	computed, err := s.ShowResults()
	require.NoError(t, err)
	assert.True(t, computed)
	assert.Equal(t, 8.0, s.OverallScore)
	computed, err = s.ShowResults()
	require.NoError(t, err)
	assert.False(t, computed)
	assert.Equal(t, StateResultsShown, s.State)

	s.Reset()
	assert.Equal(t, StateNotStarted, s.State)
	assert.Equal(t, 1, s.Attempt, "each reset starts a new attempt")
	assert.Empty(t, s.Turns)
	assert.False(t, s.ThanksSpoken)
	assertTurnInvariant(t, s)
	assert.Equal(t, "Ada", s.CandidateName)
}

func TestSession_SingleQuestionGoesStraightToCompleting(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, 1)
	require.NoError(t, s.Begin("greeting"))
	_, err := s.MarkQuestionSpoken()
	require.NoError(t, err)
	require.NoError(t, s.AcceptAnswer("my answer"))
	assert.True(t, s.IsFinalQuestion())
	require.NoError(t, s.RecordTurn(ConversationTurn{Score: 7}, nil))
	assert.Equal(t, StateCompleting, s.State)
	assertTurnInvariant(t, s)
}

func TestSession_EmptyTranscriptDoesNotAdvance(t *testing.T) {
	t.Parallel()

	for _, tr := range []string{"", "   ", "\n\t"} {
		s := newTestSession(t, 2)
		require.NoError(t, s.Begin("greeting"))
		_, err := s.MarkQuestionSpoken()
		require.NoError(t, err)
		msgs := len(s.Messages)

		err = s.AcceptAnswer(tr)
		require.ErrorIs(t, err, ErrEmptyTranscript)
		assert.Equal(t, StateAwaitingAnswer, s.State)
		assert.Empty(t, s.Turns)
		assert.Len(t, s.Messages, msgs)
		assertTurnInvariant(t, s)
	}
}

func TestSession_InvalidTransitions(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, 2)
	_, err := s.MarkQuestionSpoken()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, s.AcceptAnswer("x"), ErrInvalidTransition)

	require.NoError(t, s.Begin("greeting"))
	assert.ErrorIs(t, s.Begin("again"), ErrInvalidTransition)
	assert.ErrorIs(t, s.AcceptAnswer("too early"), ErrInvalidTransition, "greeting must be delivered first")
	assert.ErrorIs(t, s.RecordTurn(ConversationTurn{}, nil), ErrInvalidTransition)

	_, err = s.PrepareThanks("bye")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.MarkThanksSpoken()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.ShowResults()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMeanScore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, MeanScore(nil))
	assert.Equal(t, 8.0, MeanScore([]ConversationTurn{{Score: 8}, {Score: 6}, {Score: 10}}))
	assert.InDelta(t, 6.67, RoundScore(MeanScore([]ConversationTurn{{Score: 7}, {Score: 6}, {Score: 7}})), 1e-9)
}

func TestSession_Record(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, 2)
	s.Turns = []ConversationTurn{{Question: "q1", CandidateAnswer: "a1", Score: 7, Feedback: "f1"}, {Question: "q2", CandidateAnswer: "a2", Score: 8, Feedback: "f2"}}
	now := time.Unix(1700000500, 0).UTC()
	rec := s.Record(now)
	assert.Equal(t, "Ada", rec.CandidateName)
	assert.Equal(t, "s-1", rec.SessionID)
	assert.Equal(t, 7.5, rec.OverallScore)
	assert.Equal(t, now, rec.UpdatedAt)
	require.Len(t, rec.Conversations, 2)
	assert.Equal(t, RecordTurn{Question: "q2", CandidateAnswer: "a2", Evaluation: 8, Feedback: "f2"}, rec.Conversations[1])
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	assert.Equal(t, 4, p.MaxAttempts())
	assert.Equal(t, 1, RetryPolicy{MaxRetries: -1}.MaxAttempts())
	assert.True(t, IsRetryable(ErrRateLimited))
	assert.False(t, IsRetryable(ErrRequestFailed))
	assert.True(t, IsFatalConfig(errors.Join(ErrConfiguration, errors.New("x"))))
}
