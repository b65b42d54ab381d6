package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// routedGateway answers by prompt kind. A nil handler returns a valid default.
type routedGateway struct {
	resume   func(ctx context.Context) (string, error)
	next     func(ctx context.Context) (string, error)
	feedback func(ctx context.Context) (string, error)

	resumeCalls, nextCalls, feedbackCalls atomic.Int32
}

func (g *routedGateway) Call(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, `"resume_highlights"`):
		g.resumeCalls.Add(1)
		if g.resume != nil {
			return g.resume(ctx)
		}
		return `{"name": "Jane Doe", "resume_highlights": "Built payment systems in Go"}`, nil
	case strings.Contains(prompt, `"next_question"`):
		g.nextCalls.Add(1)
		if g.next != nil {
			return g.next(ctx)
		}
		return `{"next_question": "How do you design for failure?"}`, nil
	default:
		g.feedbackCalls.Add(1)
		if g.feedback != nil {
			return g.feedback(ctx)
		}
		return `{"feedback": "Clear and specific.", "score": 8}`, nil
	}
}

func reply(s string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return s, nil }
}

func fail(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

// sleepy ignores the context so the deadline, not the call, decides the outcome.
func sleepy(d time.Duration, s string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		time.Sleep(d)
		return s, nil
	}
}

// blockUntilDone returns only when ctx ends, like a provider honouring cancellation.
func blockUntilDone(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type memSessions struct {
	mu    sync.Mutex
	items map[string]domain.InterviewSession
	saves int
	// failSaves fails that many upcoming saves with errSaveFailed.
	failSaves int
}

var errSaveFailed = errors.New("redis: connection pool timeout")

func newMemSessions() *memSessions { return &memSessions{items: map[string]domain.InterviewSession{}} }

// Save fails on a cancelled context the way a network client does.
func (m *memSessions) Save(ctx context.Context, s domain.InterviewSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.failSaves > 0 {
		m.failSaves--
		return errSaveFailed
	}
	m.items[s.ID] = s
	m.saves++
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (domain.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return domain.InterviewSession{}, domain.ErrNotFound
	}
	return s, nil
}

type memRecords struct {
	mu    sync.Mutex
	items map[string]domain.InterviewRecord
	err   error
}

func newMemRecords() *memRecords { return &memRecords{items: map[string]domain.InterviewRecord{}} }

func (m *memRecords) Save(_ context.Context, r domain.InterviewRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if r.ID == "" {
		r.ID = fmt.Sprintf("rec-%d", len(m.items)+1)
	}
	if _, exists := m.items[r.ID]; !exists {
		m.items[r.ID] = r
	}
	return r.ID, nil
}

func (m *memRecords) Get(_ context.Context, id string) (domain.InterviewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return domain.InterviewRecord{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memRecords) ListByCandidate(_ context.Context, name string, limit int) ([]domain.InterviewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InterviewRecord
	for _, r := range m.items {
		if r.CandidateName == name && (limit <= 0 || len(out) < limit) {
			out = append(out, r)
		}
	}
	return out, nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.InterviewCompletedEvent
	err    error
}

func (e *recordingEvents) PublishInterviewCompleted(_ context.Context, ev domain.InterviewCompletedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return e.err
}

type staticExtractor struct {
	text string
	err  error
}

func (x staticExtractor) Extract(context.Context, string, []byte) (string, error) {
	return x.text, x.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Name() string { return "fake" }

func (f fakeTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return f.text, f.err
}

type fakeSynth struct {
	gotText  string
	gotVoice domain.Voice
}

func (f *fakeSynth) Synthesize(_ context.Context, text string, v domain.Voice) ([]byte, string, error) {
	f.gotText = text
	f.gotVoice = v
	return []byte("ID3"), "audio/mpeg", nil
}
