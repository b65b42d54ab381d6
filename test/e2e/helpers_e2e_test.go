//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

var baseURL = strings.TrimRight(getenv("E2E_BASE_URL", "http://localhost:8080"), "/")

// requireApp skips the test when the server under test is not reachable.
func requireApp(t *testing.T) *http.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}
	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		t.Skip("App not available; skipping E2E")
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skipf("App not healthy (%d); skipping E2E", resp.StatusCode)
	}
	return client
}

func startInterview(t *testing.T, client *http.Client, resume, jd string, maxQuestions string) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("job_description", jd))
	require.NoError(t, mw.WriteField("max_questions", maxQuestions))
	fw, err := mw.CreateFormFile("resume", "resume.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte(resume))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := client.Post(baseURL+"/v1/interviews", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return decode(t, resp, http.StatusCreated)
}

func postJSON(t *testing.T, client *http.Client, path string, body any, want int) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := client.Post(baseURL+path, "application/json", &buf)
	require.NoError(t, err)
	return decode(t, resp, want)
}

func decode(t *testing.T, resp *http.Response, want int) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, want, resp.StatusCode, "body: %#v", out)
	return out
}
