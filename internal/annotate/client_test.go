package annotate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"myperf/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentCompletion struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
}

func testConfig(endpoint string) config.AnnotationConfig {
	cfg := config.Default().Annotation
	cfg.Enabled = true
	cfg.Endpoint = endpoint
	cfg.Deployment = "diag-model"
	cfg.APIKey = "secret-key"
	cfg.TimeoutSeconds = 5
	return cfg
}

func TestSummarizeOutputSendsCompletionRequest(t *testing.T) {
	var got sentCompletion
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/openai/deployments/diag-model/completions", r.URL.Path)
		assert.Equal(t, "2023-05-15", r.URL.Query().Get("api-version"))
		assert.Equal(t, "secret-key", r.Header.Get("api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"text":"\n\nTwo sessions are idle.\n"}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), srv.Client())
	require.NoError(t, err)
	out, err := client.SummarizeOutput(context.Background(), "\"Id\",\"User\",\n\"5\",\"app\",\n")
	require.NoError(t, err)
	assert.Equal(t, "Two sessions are idle.", out)

	assert.Contains(t, got.Prompt, "#start of output")
	assert.Contains(t, got.Prompt, "\"5\",\"app\",")
	assert.InDelta(t, 0.7, got.Temperature, 1e-6)
	assert.Equal(t, 800, got.MaxTokens)
	assert.InDelta(t, 0.95, got.TopP, 1e-6)
	assert.NotEmpty(t, got.Model)
}

func TestExplainQueryUsesExplainSampling(t *testing.T) {
	var got sentCompletion
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"text":"Lists sessions."}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), srv.Client())
	require.NoError(t, err)
	out, err := client.ExplainQuery(context.Background(), "SHOW FULL PROCESSLIST;")
	require.NoError(t, err)
	assert.Equal(t, "Lists sessions.", out)
	assert.Contains(t, got.Prompt, "SHOW FULL PROCESSLIST;")
	assert.Equal(t, 300, got.MaxTokens)
	assert.InDelta(t, 0.75, got.Temperature, 1e-6)
}

func TestDeploymentNameKeptVerbatim(t *testing.T) {
	var path, version string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		version = r.URL.Query().Get("api-version")
		_, _ = w.Write([]byte(`{"choices":[{"text":"ok"}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Deployment = "diag.model-3.5"
	cfg.APIVersion = "2024-02-01"
	client, err := NewClient(cfg, srv.Client())
	require.NoError(t, err)
	_, err = client.ExplainQuery(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "/openai/deployments/diag.model-3.5/completions", path)
	assert.Equal(t, "2024-02-01", version)
}

func TestCompletionErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"401","message":"Access denied due to invalid subscription key."}}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), srv.Client())
	require.NoError(t, err)
	_, err = client.SummarizeOutput(context.Background(), "x")
	var annErr *AnnotationError
	require.True(t, errors.As(err, &annErr))
	assert.Equal(t, OpSummarize, annErr.Op)
	assert.Contains(t, err.Error(), "invalid subscription key")
	assert.True(t, strings.HasPrefix(Placeholder(err), "(annotation unavailable: "))
}

func TestCompletionNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), srv.Client())
	require.NoError(t, err)
	_, err = client.ExplainQuery(context.Background(), "SELECT 1")
	var annErr *AnnotationError
	require.True(t, errors.As(err, &annErr))
	assert.Equal(t, OpExplain, annErr.Op)
}

func TestCompletionTimeout(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(testConfig(srv.URL), srv.Client())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.SummarizeOutput(ctx, "x")
	var annErr *AnnotationError
	require.True(t, errors.As(err, &annErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClientRequiresEndpointAndDeployment(t *testing.T) {
	cfg := testConfig("")
	_, err := NewClient(cfg, nil)
	assert.Error(t, err)

	cfg = testConfig("http://localhost")
	cfg.Deployment = ""
	_, err = NewClient(cfg, nil)
	assert.Error(t, err)
}

func TestPromptTruncation(t *testing.T) {
	long := strings.Repeat("a", maxInputBytes+100)
	p := SummaryPrompt(long)
	assert.Contains(t, p, truncatedMarker)
	assert.Less(t, len(p), maxInputBytes+1024)
	assert.Equal(t, "", Placeholder(nil))
}
