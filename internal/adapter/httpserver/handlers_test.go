package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/usecase"
)

type fakeInterviews struct {
	started   usecase.StartInput
	startErr  error
	getErr    error
	stage     string
	answer    string
	answerErr error
	audio     []byte
	audioMime string
	resultErr error
	recName   string
	recLimit  int
}

func (f *fakeInterviews) Start(_ context.Context, in usecase.StartInput) (domain.InterviewSession, error) {
	f.started = in
	if f.startErr != nil {
		return domain.InterviewSession{}, f.startErr
	}
	return domain.InterviewSession{ID: "sess-1", State: domain.StateGreeting, MaxQuestions: 5}, nil
}

func (f *fakeInterviews) Get(_ context.Context, id string) (domain.InterviewSession, error) {
	if f.getErr != nil {
		return domain.InterviewSession{}, f.getErr
	}
	return domain.InterviewSession{ID: id, State: domain.StateAwaitingAnswer}, nil
}

func (f *fakeInterviews) MarkSpoken(_ context.Context, id, stage string) (domain.InterviewSession, bool, error) {
	f.stage = stage
	return domain.InterviewSession{ID: id, QuestionSpoken: true}, true, nil
}

func (f *fakeInterviews) SubmitAnswer(_ context.Context, id, transcript string) (usecase.AnswerOutcome, error) {
	f.answer = transcript
	if f.answerErr != nil {
		return usecase.AnswerOutcome{}, f.answerErr
	}
	return usecase.AnswerOutcome{
		Session:  domain.InterviewSession{ID: id, QuestionIndex: 2},
		Feedback: domain.FeedbackResult{Text: "Solid.", Score: 8},
	}, nil
}

func (f *fakeInterviews) SubmitAudio(_ context.Context, id string, audio []byte, mimeType string) (usecase.AnswerOutcome, error) {
	f.audio, f.audioMime = audio, mimeType
	return usecase.AnswerOutcome{Session: domain.InterviewSession{ID: id}}, nil
}

func (f *fakeInterviews) ShowResults(_ context.Context, id string) (usecase.Results, error) {
	if f.resultErr != nil {
		return usecase.Results{}, f.resultErr
	}
	return usecase.Results{
		Session: domain.InterviewSession{ID: id, ResultsShown: true},
		Record:  domain.InterviewRecord{ID: "rec-1", SessionID: id, OverallScore: 7.5},
	}, nil
}

func (f *fakeInterviews) Reset(_ context.Context, id string) (domain.InterviewSession, error) {
	return domain.InterviewSession{ID: id, State: domain.StateGreeting}, nil
}

func (f *fakeInterviews) Speech(context.Context, string) ([]byte, string, error) {
	return []byte("ID3"), "audio/mpeg", nil
}

func (f *fakeInterviews) Record(_ context.Context, id string) (domain.InterviewRecord, error) {
	if id == "missing" {
		return domain.InterviewRecord{}, fmt.Errorf("op=record.get: %w", domain.ErrNotFound)
	}
	return domain.InterviewRecord{ID: id, CandidateName: "Jane Doe"}, nil
}

func (f *fakeInterviews) CandidateRecords(_ context.Context, name string, limit int) ([]domain.InterviewRecord, error) {
	f.recName, f.recLimit = name, limit
	return nil, nil
}

func (f *fakeInterviews) Voices() []domain.Voice {
	return []domain.Voice{{Key: "zephyr", Name: "Zephyr"}}
}

func newTestRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID())
	r.Post("/v1/interviews", s.StartHandler())
	r.Get("/v1/interviews/{id}", s.GetHandler())
	r.Post("/v1/interviews/{id}/spoken", s.SpokenHandler())
	r.Post("/v1/interviews/{id}/answers", s.AnswerHandler())
	r.Post("/v1/interviews/{id}/audio", s.AudioHandler())
	r.Post("/v1/interviews/{id}/results", s.ResultsHandler())
	r.Post("/v1/interviews/{id}/reset", s.ResetHandler())
	r.Get("/v1/interviews/{id}/speech", s.SpeechHandler())
	r.Get("/v1/records", s.RecordsHandler())
	r.Get("/v1/records/{id}", s.RecordHandler())
	r.Get("/v1/voices", s.VoicesHandler())
	r.Get("/readyz", s.ReadyzHandler())
	return r
}

type filePart struct {
	field, name, contentType string
	data                     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestStartHandler(t *testing.T) {
	t.Parallel()

	resume := filePart{field: "resume", name: "cv.txt", data: []byte("Jane Doe\nGo engineer with 6 years of experience.")}
	tests := []struct {
		name     string
		fields   map[string]string
		files    []filePart
		startErr error
		status   int
		code     string
	}{
		{
			name:   "created",
			fields: map[string]string{"job_description": "Backend engineer", "max_questions": "3", "voice": "puck"},
			files:  []filePart{resume},
			status: http.StatusCreated,
		},
		{
			name:   "missing_job_description",
			files:  []filePart{resume},
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
		{
			name:   "max_questions_out_of_range",
			fields: map[string]string{"job_description": "JD", "max_questions": "11"},
			files:  []filePart{resume},
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
		{
			name:   "max_questions_not_int",
			fields: map[string]string{"job_description": "JD", "max_questions": "five"},
			files:  []filePart{resume},
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
		{
			name:   "missing_resume",
			fields: map[string]string{"job_description": "JD"},
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
		{
			name:   "unsupported_extension",
			fields: map[string]string{"job_description": "JD"},
			files:  []filePart{{field: "resume", name: "cv.exe", data: []byte("MZ")}},
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
		{
			name:   "content_mismatch",
			fields: map[string]string{"job_description": "JD"},
			files:  []filePart{{field: "resume", name: "cv.pdf", data: []byte("plain text pretending")}},
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
		{
			name:     "llm_misconfigured",
			fields:   map[string]string{"job_description": "JD"},
			files:    []filePart{resume},
			startErr: fmt.Errorf("op=usecase.Start: %w", domain.ErrConfiguration),
			status:   http.StatusInternalServerError,
			code:     "CONFIGURATION",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fake := &fakeInterviews{startErr: tt.startErr}
			h := newTestRouter(NewServer(fake, 1<<20))
			body, ct := multipartBody(t, tt.fields, tt.files...)
			req := httptest.NewRequest(http.MethodPost, "/v1/interviews", body)
			req.Header.Set("Content-Type", ct)

			rec, resp := do(t, h, req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
			if tt.code != "" {
				assert.Equal(t, tt.code, errorCode(resp))
				return
			}
			assert.Equal(t, "sess-1", resp["id"])
			assert.Equal(t, "/v1/interviews/sess-1", rec.Header().Get("Location"))
			assert.Equal(t, "cv.txt", fake.started.ResumeFileName)
			assert.Equal(t, 3, fake.started.MaxQuestions)
			assert.Equal(t, "puck", fake.started.Voice)
			assert.Equal(t, "Backend engineer", fake.started.JobDescription)
		})
	}
}

func TestStartHandler_RejectsNonMultipartAndOversize(t *testing.T) {
	t.Parallel()

	h := newTestRouter(NewServer(&fakeInterviews{}, 1024))

	req := httptest.NewRequest(http.MethodPost, "/v1/interviews", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec, body := do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(body))

	big, ct := multipartBody(t, map[string]string{"job_description": "JD"},
		filePart{field: "resume", name: "cv.txt", data: bytes.Repeat([]byte("a"), 4096)})
	req = httptest.NewRequest(http.MethodPost, "/v1/interviews", big)
	req.Header.Set("Content-Type", ct)
	rec, body = do(t, h, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", errorCode(body))
}

func TestAnswerHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		id     string
		body   string
		err    error
		status int
		code   string
	}{
		{name: "ok", id: "sess-1", body: `{"transcript":"I built a queue."}`, status: http.StatusOK},
		{name: "bad_json", id: "sess-1", body: `{"transcript":`, status: http.StatusBadRequest, code: "INVALID_ARGUMENT"},
		{name: "bad_id", id: "bad.id", body: `{"transcript":"x"}`, status: http.StatusBadRequest, code: "INVALID_ARGUMENT"},
		{name: "empty", id: "sess-1", body: `{"transcript":""}`, err: fmt.Errorf("op=usecase.SubmitAnswer: %w", domain.ErrEmptyTranscript), status: http.StatusBadRequest, code: "EMPTY_TRANSCRIPT"},
		{name: "wrong_state", id: "sess-1", body: `{"transcript":"x"}`, err: fmt.Errorf("op=x: %w", domain.ErrInvalidTransition), status: http.StatusConflict, code: "INVALID_TRANSITION"},
		{name: "unknown_session", id: "sess-9", body: `{"transcript":"x"}`, err: domain.ErrNotFound, status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "rate_limited", id: "sess-1", body: `{"transcript":"x"}`, err: domain.ErrRateLimited, status: http.StatusTooManyRequests, code: "RATE_LIMITED"},
		{name: "upstream_failed", id: "sess-1", body: `{"transcript":"x"}`, err: domain.ErrRequestFailed, status: http.StatusServiceUnavailable, code: "UPSTREAM_FAILED"},
		{name: "unexpected", id: "sess-1", body: `{"transcript":"x"}`, err: errors.New("boom"), status: http.StatusInternalServerError, code: "INTERNAL"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fake := &fakeInterviews{answerErr: tt.err}
			h := newTestRouter(NewServer(fake, 0))
			req := httptest.NewRequest(http.MethodPost, "/v1/interviews/"+tt.id+"/answers", strings.NewReader(tt.body))
			rec, body := do(t, h, req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, errorCode(body))
				return
			}
			assert.Equal(t, "I built a queue.", fake.answer)
			fb, _ := body["feedback"].(map[string]any)
			assert.Equal(t, "Solid.", fb["feedback"])
		})
	}
}

func TestSpokenHandler(t *testing.T) {
	t.Parallel()

	fake := &fakeInterviews{}
	h := newTestRouter(NewServer(fake, 0))

	rec, body := do(t, h, httptest.NewRequest(http.MethodPost, "/v1/interviews/sess-1/spoken", strings.NewReader(`{"stage":"thanks"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "thanks", fake.stage)
	assert.Equal(t, true, body["first"])

	rec, body = do(t, h, httptest.NewRequest(http.MethodPost, "/v1/interviews/sess-1/spoken", strings.NewReader(`{"stage":"results"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e, _ := body["error"].(map[string]any)
	assert.Equal(t, map[string]any{"stage": "oneof"}, e["details"])
}

func TestAudioHandler(t *testing.T) {
	t.Parallel()

	fake := &fakeInterviews{}
	h := newTestRouter(NewServer(fake, 1<<20))

	body, ct := multipartBody(t, nil, filePart{field: "audio", name: "answer.webm", contentType: "audio/webm;codecs=opus", data: []byte{0x1a, 0x45, 0xdf, 0xa3}})
	req := httptest.NewRequest(http.MethodPost, "/v1/interviews/sess-1/audio", body)
	req.Header.Set("Content-Type", ct)
	rec, _ := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "audio/webm;codecs=opus", fake.audioMime)
	assert.Len(t, fake.audio, 4)

	body, ct = multipartBody(t, nil, filePart{field: "audio", name: "notes.txt", contentType: "text/plain", data: []byte("hello")})
	req = httptest.NewRequest(http.MethodPost, "/v1/interviews/sess-1/audio", body)
	req.Header.Set("Content-Type", ct)
	rec, resp := do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(resp))

	body, ct = multipartBody(t, map[string]string{"x": "y"})
	req = httptest.NewRequest(http.MethodPost, "/v1/interviews/sess-1/audio", body)
	req.Header.Set("Content-Type", ct)
	rec, _ = do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycleHandlers(t *testing.T) {
	t.Parallel()

	fake := &fakeInterviews{}
	h := newTestRouter(NewServer(fake, 0))

	rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/v1/interviews/sess-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.StateAwaitingAnswer), body["state"])

	rec, body = do(t, h, httptest.NewRequest(http.MethodPost, "/v1/interviews/sess-1/results", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	record, _ := body["record"].(map[string]any)
	assert.Equal(t, "rec-1", record["id"])
	assert.Equal(t, 7.5, record["overall_score"])

	rec, body = do(t, h, httptest.NewRequest(http.MethodPost, "/v1/interviews/sess-1/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.StateGreeting), body["state"])

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/interviews/sess-1/speech", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ID3", rec.Body.String())

	fake.getErr = fmt.Errorf("op=session.get: %w", domain.ErrNotFound)
	rec, body = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/interviews/sess-2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestRecordHandlers(t *testing.T) {
	t.Parallel()

	fake := &fakeInterviews{}
	h := newTestRouter(NewServer(fake, 0))

	rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/v1/records/rec-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Jane Doe", body["name"])

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/records/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/records?candidate=Jane%20Doe&limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["records"])
	assert.Equal(t, "Jane Doe", fake.recName)
	assert.Equal(t, 5, fake.recLimit)

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/records?limit=5", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/records?candidate=x&limit=500", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/voices", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["voices"], 1)
}

func TestReadyzHandler(t *testing.T) {
	t.Parallel()

	ok := ReadinessCheck{Name: "db", Check: func(context.Context) error { return nil }}
	down := ReadinessCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }}

	rec, body := do(t, newTestRouter(NewServer(&fakeInterviews{}, 0, ok)), httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["checks"], 1)

	rec, body = do(t, newTestRouter(NewServer(&fakeInterviews{}, 0, ok, down)), httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	checks, _ := body["checks"].([]any)
	require.Len(t, checks, 2)
	second, _ := checks[1].(map[string]any)
	assert.Equal(t, false, second["ok"])
	assert.Equal(t, "connection refused", second["details"])
}
