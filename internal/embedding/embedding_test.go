package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequestBody struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// newEmbeddingServer answers each input with a vector whose first element is
// the input index. Data entries are returned in reverse order.
func newEmbeddingServer(t *testing.T, captured *embeddingRequestBody) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test-key", r.Header.Get("Authorization"))

		var body embeddingRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if captured != nil {
			*captured = body
		}

		data := make([]map[string]any, 0, len(body.Input))
		for i := len(body.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), 0.5, 0.25},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  body.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 4, "total_tokens": 4},
		})
	}))
}

func TestNewProvider_OpenAI(t *testing.T) {
	t.Parallel()

	server := newEmbeddingServer(t, nil)
	defer server.Close()

	p, err := NewProvider(FactoryConfig{
		Provider: "openai",
		Model:    "text-embedding-3-small",
		Timeout:  5 * time.Second,
		OpenAI:   OpenAIConfig{APIKey: "sk-test-key", BaseURL: server.URL},
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "text-embedding-3-small", p.Model())

	vecs, err := p.Embed(context.Background(), []string{"gut microbiome"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Len(t, vecs[0], 3)
}

func TestNewProvider_MissingKey(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(FactoryConfig{Provider: "openai"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestNewProvider_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(FactoryConfig{Provider: "bedrock"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported embedding provider")
}

func TestOpenAIProvider_Embed_PreservesInputOrder(t *testing.T) {
	t.Parallel()

	var captured embeddingRequestBody
	server := newEmbeddingServer(t, &captured)
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test-key", BaseURL: server.URL}, "", 256, time.Second)

	vecs, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.InDelta(t, float64(i), float64(v[0]), 1e-9, "vector %d", i)
	}

	assert.Equal(t, []string{"a", "b", "c"}, captured.Input)
	assert.Equal(t, defaultOpenAIModel, captured.Model)
	assert.Equal(t, 256, captured.Dimensions)
}

func TestOpenAIProvider_Embed_EmptyInput(t *testing.T) {
	t.Parallel()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test-key"}, "", 0, time.Second)
	_, err := p.Embed(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAIProvider_Embed_APIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "Rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test-key", BaseURL: server.URL}, "", 0, time.Second)
	_, err := p.Embed(context.Background(), []string{"text"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "openai", apiErr.Provider)
	assert.True(t, apiErr.IsTransient())
}

func TestOpenAIProvider_Embed_CountMismatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float64{0.1}},
			},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test-key", BaseURL: server.URL}, "", 0, time.Second)
	_, err := p.Embed(context.Background(), []string{"one", "two"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 embeddings")
}

func TestOpenAIProvider_Embed_ContextCanceled(t *testing.T) {
	t.Parallel()

	server := newEmbeddingServer(t, nil)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test-key", BaseURL: server.URL}, "", 0, time.Second)
	_, err := p.Embed(ctx, []string{"text"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAPIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       *APIError
		want      string
		transient bool
	}{
		{"with type", &APIError{Provider: "openai", StatusCode: 400, Message: "bad", Type: "invalid_request_error"}, "openai: API error (status 400, type invalid_request_error): bad", false},
		{"server error", &APIError{Provider: "openai", StatusCode: 503, Message: "down"}, "openai: API error (status 503): down", true},
		{"network", &APIError{Provider: "openai", Message: "dial"}, "openai: API error (status 0): dial", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.Equal(t, tt.transient, tt.err.IsTransient())
		})
	}
}
