package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/config"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/usecase"
)

func TestParseOrigins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{"*"}},
		{"*", []string{"*"}},
		{"https://a.com, https://b.com", []string{"https://a.com", "https://b.com"}},
		{"  ,  ", []string{"*"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseOrigins(tt.in), "input %q", tt.in)
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestBuildReadinessChecks(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tika := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "Apache Tika 2.9.1")
	}))
	t.Cleanup(tika.Close)

	checks := BuildReadinessChecks(config.Config{TikaURL: tika.URL + "/"}, pinger{}, rdb)
	require.Len(t, checks, 3)
	for _, c := range checks {
		assert.NoError(t, c.Check(context.Background()), c.Name)
	}

	failing := BuildReadinessChecks(config.Config{}, pinger{err: errors.New("pool closed")}, nil)
	for _, c := range failing {
		assert.Error(t, c.Check(context.Background()), c.Name)
	}

	mr.Close()
	assert.Error(t, checks[1].Check(context.Background()))
}

type stubInterviews struct{ httpserver.Interviews }

func (stubInterviews) Voices() []domain.Voice { return []domain.Voice{{Key: "zephyr"}} }

func (stubInterviews) Get(_ context.Context, id string) (domain.InterviewSession, error) {
	return domain.InterviewSession{ID: id}, nil
}

func (stubInterviews) SubmitAnswer(_ context.Context, id, _ string) (usecase.AnswerOutcome, error) {
	return usecase.AnswerOutcome{Session: domain.InterviewSession{ID: id}}, nil
}

func TestBuildRouter(t *testing.T) {
	t.Parallel()
	observability.InitMetrics()

	cfg := config.Config{CORSAllowOrigins: "https://coach.example", RateLimitPerMin: 2}
	srv := httpserver.NewServer(stubInterviews{}, 0, httpserver.ReadinessCheck{Name: "db", Check: func(context.Context) error { return nil }})
	h := BuildRouter(cfg, srv)

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/v1/voices", "/v1/interviews/sess-1"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"), path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	pre := httptest.NewRequest(http.MethodOptions, "/v1/voices", nil)
	pre.Header.Set("Origin", "https://coach.example")
	pre.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, pre)
	assert.Equal(t, "https://coach.example", rec.Header().Get("Access-Control-Allow-Origin"))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/interviews/sess-1/answers", strings.NewReader(`{"transcript":"hi"}`))
		req.RemoteAddr = "203.0.113.7:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
