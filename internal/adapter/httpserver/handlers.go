package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/usecase"
)

// Interviews is the application surface the handlers drive. *usecase.InterviewService
// implements it.
type Interviews interface {
	Start(ctx context.Context, in usecase.StartInput) (domain.InterviewSession, error)
	Get(ctx context.Context, id string) (domain.InterviewSession, error)
	MarkSpoken(ctx context.Context, id, stage string) (domain.InterviewSession, bool, error)
	SubmitAnswer(ctx context.Context, id, transcript string) (usecase.AnswerOutcome, error)
	SubmitAudio(ctx context.Context, id string, audio []byte, mimeType string) (usecase.AnswerOutcome, error)
	ShowResults(ctx context.Context, id string) (usecase.Results, error)
	Reset(ctx context.Context, id string) (domain.InterviewSession, error)
	Speech(ctx context.Context, id string) ([]byte, string, error)
	Record(ctx context.Context, id string) (domain.InterviewRecord, error)
	CandidateRecords(ctx context.Context, name string, limit int) ([]domain.InterviewRecord, error)
	Voices() []domain.Voice
}

var _ Interviews = (*usecase.InterviewService)(nil)

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server aggregates handler dependencies.
type Server struct {
	Interviews     Interviews
	MaxUploadBytes int64
	Checks         []ReadinessCheck
}

// NewServer constructs a Server. maxUploadBytes caps résumé and audio uploads.
func NewServer(interviews Interviews, maxUploadBytes int64, checks ...ReadinessCheck) *Server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Server{Interviews: interviews, MaxUploadBytes: maxUploadBytes, Checks: checks}
}

const maxJSONBody = 1 << 20

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeError(w, r, fmt.Errorf("%w: invalid id", domain.ErrInvalidArgument), map[string]string{"id": "format"})
		return "", false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
		return false
	}
	if details, err := validate(dst); err != nil {
		writeError(w, r, err, details)
		return false
	}
	return true
}

// parseMultipart caps the body at MaxUploadBytes and answers 413 when it is exceeded.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
				Code:    "PAYLOAD_TOO_LARGE",
				Message: "payload too large",
				Details: map[string]any{"max_bytes": s.MaxUploadBytes},
			}})
			return false
		}
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
		return false
	}
	return true
}

// StartHandler handles POST /v1/interviews.
func (s *Server) StartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.parseMultipart(w, r) {
			return
		}
		form := startForm{
			JobDescription: strings.TrimSpace(r.FormValue("job_description")),
			Voice:          strings.TrimSpace(r.FormValue("voice")),
		}
		if raw := strings.TrimSpace(r.FormValue("max_questions")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: max_questions must be an integer", domain.ErrInvalidArgument), map[string]string{"max_questions": "int"})
				return
			}
			form.MaxQuestions = n
		}
		if details, err := validate(form); err != nil {
			writeError(w, r, err, details)
			return
		}

		file, header, err := r.FormFile("resume")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: resume file required", domain.ErrInvalidArgument), map[string]string{"field": "resume"})
			return
		}
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: resume read: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if err := checkResumeUpload(header, data); err != nil {
			writeError(w, r, err, map[string]string{"filename": header.Filename})
			return
		}

		session, err := s.Interviews.Start(r.Context(), usecase.StartInput{
			ResumeFileName: header.Filename,
			ResumeData:     data,
			JobDescription: form.JobDescription,
			MaxQuestions:   form.MaxQuestions,
			Voice:          form.Voice,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Location", "/v1/interviews/"+session.ID)
		writeJSON(w, http.StatusCreated, session)
	}
}

// GetHandler handles GET /v1/interviews/{id}.
func (s *Server) GetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionID(w, r)
		if !ok {
			return
		}
		session, err := s.Interviews.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// SpokenHandler handles POST /v1/interviews/{id}/spoken. Repeated deliveries are
// acknowledged with first=false.
func (s *Server) SpokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionID(w, r)
		if !ok {
			return
		}
		var req spokenRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		session, first, err := s.Interviews.MarkSpoken(r.Context(), id, req.Stage)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": session, "first": first})
	}
}

// AnswerHandler handles POST /v1/interviews/{id}/answers.
func (s *Server) AnswerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionID(w, r)
		if !ok {
			return
		}
		var req answerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		out, err := s.Interviews.SubmitAnswer(r.Context(), id, req.Transcript)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// AudioHandler handles POST /v1/interviews/{id}/audio.
func (s *Server) AudioHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionID(w, r)
		if !ok {
			return
		}
		if !s.parseMultipart(w, r) {
			return
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: audio file required", domain.ErrInvalidArgument), map[string]string{"field": "audio"})
			return
		}
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: audio read: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		mimeType, err := audioType(header, data)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out, err := s.Interviews.SubmitAudio(r.Context(), id, data, mimeType)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ResultsHandler handles POST /v1/interviews/{id}/results.
func (s *Server) ResultsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionID(w, r)
		if !ok {
			return
		}
		res, err := s.Interviews.ShowResults(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ResetHandler handles POST /v1/interviews/{id}/reset.
func (s *Server) ResetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionID(w, r)
		if !ok {
			return
		}
		session, err := s.Interviews.Reset(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// SpeechHandler handles GET /v1/interviews/{id}/speech and streams the synthesized
// interviewer line.
func (s *Server) SpeechHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionID(w, r)
		if !ok {
			return
		}
		audio, contentType, err := s.Interviews.Speech(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(audio)
	}
}

// RecordHandler handles GET /v1/records/{id}.
func (s *Server) RecordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionID(w, r)
		if !ok {
			return
		}
		rec, err := s.Interviews.Record(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// RecordsHandler handles GET /v1/records?candidate=&limit=.
func (s *Server) RecordsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := recordsQuery{Candidate: strings.TrimSpace(r.URL.Query().Get("candidate"))}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: limit must be an integer", domain.ErrInvalidArgument), map[string]string{"limit": "int"})
				return
			}
			q.Limit = n
		}
		if details, err := validate(q); err != nil {
			writeError(w, r, err, details)
			return
		}
		recs, err := s.Interviews.CandidateRecords(r.Context(), q.Candidate, q.Limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if recs == nil {
			recs = []domain.InterviewRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": recs})
	}
}

// VoicesHandler handles GET /v1/voices.
func (s *Server) VoicesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"voices": s.Interviews.Voices()})
	}
}

// ReadyzHandler probes every configured dependency.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, len(s.Checks))
		status := http.StatusOK
		for _, c := range s.Checks {
			res := check{Name: c.Name, OK: true}
			if err := c.Check(ctx); err != nil {
				res.OK = false
				res.Details = err.Error()
				status = http.StatusServiceUnavailable
			}
			checks = append(checks, res)
		}
		writeJSON(w, status, map[string]any{"checks": checks})
	}
}
