// Package embedding turns paper text into dense vectors for content
// similarity. Providers are selected by name through NewProvider.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single embedding call when none is configured.
const DefaultTimeout = 30 * time.Second

// ErrEmptyInput is returned when Embed is called without any text.
var ErrEmptyInput = errors.New("embedding: no input texts")

// Provider produces one vector per input text, in input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name is the provider name, e.g. "openai".
	Name() string
	// Model is the model used for embeddings.
	Model() string
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// FactoryConfig holds the parameters needed to create a Provider.
type FactoryConfig struct {
	// Provider is the provider name. Only "openai" is supported.
	Provider   string
	Model      string
	Dimensions int
	Timeout    time.Duration
	OpenAI     OpenAIConfig
}

// NewProvider creates a Provider based on the factory configuration.
func NewProvider(cfg FactoryConfig) (Provider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		if cfg.OpenAI.APIKey == "" {
			return nil, errors.New("embedding: openai api key is required")
		}
		return NewOpenAIProvider(cfg.OpenAI, cfg.Model, cfg.Dimensions, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q (supported: openai)", cfg.Provider)
	}
}

// APIError represents an error returned by an embedding provider API.
type APIError struct {
	// Provider is the name of the provider (e.g., "openai").
	Provider string
	// StatusCode is the HTTP status code returned by the API. Zero means no
	// response was received.
	StatusCode int
	Message    string
	Type       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient returns true for rate limiting, server errors and network
// errors.
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}
