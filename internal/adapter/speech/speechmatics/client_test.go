package speechmatics_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/speech/speechmatics"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

func newServer(t *testing.T, status func(n int32) string, transcript string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var cfg map[string]any
		assert.NoError(t, json.Unmarshal([]byte(r.FormValue("config")), &cfg))
		assert.Equal(t, "transcription", cfg["type"])
		assert.Equal(t, map[string]any{"language": "en"}, cfg["transcription_config"])
		f, hdr, err := r.FormFile("data_file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(f)
		assert.Equal(t, "RIFFdata", string(b))
		assert.Equal(t, "audio/wav", hdr.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"job-1"}`))
	})
	mux.HandleFunc("GET /v2/jobs/job-1", func(w http.ResponseWriter, _ *http.Request) {
		n := polls.Add(1)
		_, _ = w.Write([]byte(`{"job":{"id":"job-1","status":"` + status(n) + `"}}`))
	})
	mux.HandleFunc("GET /v2/jobs/job-1/transcript", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "txt", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte(transcript))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func TestClient_Transcribe(t *testing.T) {
	t.Parallel()

	srv, polls := newServer(t, func(n int32) string {
		if n < 3 {
			return "running"
		}
		return "done"
	}, "  I led the migration.\n")

	c := speechmatics.New(speechmatics.Config{APIKey: "key", BaseURL: srv.URL, PollInterval: 5 * time.Millisecond})
	got, err := c.Transcribe(context.Background(), []byte("RIFFdata"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "I led the migration.", got)
	assert.EqualValues(t, 3, polls.Load())
	assert.Equal(t, "speechmatics", c.Name())
}

func TestClient_Transcribe_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing_key", func(t *testing.T) {
		t.Parallel()
		_, err := speechmatics.New(speechmatics.Config{}).Transcribe(context.Background(), []byte("x"), "audio/wav")
		require.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("rejected_job", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t, func(int32) string { return "rejected" }, "")
		c := speechmatics.New(speechmatics.Config{APIKey: "key", BaseURL: srv.URL, PollInterval: time.Millisecond})
		_, err := c.Transcribe(context.Background(), []byte("RIFFdata"), "audio/wav")
		require.ErrorIs(t, err, domain.ErrRequestFailed)
	})

	t.Run("never_finishes", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t, func(int32) string { return "running" }, "")
		c := speechmatics.New(speechmatics.Config{APIKey: "key", BaseURL: srv.URL, PollInterval: 5 * time.Millisecond, Timeout: 60 * time.Millisecond})
		_, err := c.Transcribe(context.Background(), []byte("RIFFdata"), "audio/wav")
		require.ErrorIs(t, err, domain.ErrUpstreamTimeout)
	})

	t.Run("unauthorized", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		t.Cleanup(srv.Close)
		c := speechmatics.New(speechmatics.Config{APIKey: "bad", BaseURL: srv.URL})
		_, err := c.Transcribe(context.Background(), []byte("x"), "audio/wav")
		require.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("empty_transcript", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t, func(int32) string { return "done" }, " \n")
		c := speechmatics.New(speechmatics.Config{APIKey: "key", BaseURL: srv.URL, PollInterval: time.Millisecond})
		got, err := c.Transcribe(context.Background(), []byte("RIFFdata"), "audio/wav")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
