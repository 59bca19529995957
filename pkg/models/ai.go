// Package models contains shared data models used across the trip planner.
package models

import (
	"context"
	"fmt"
)

// AIProvider is the core interface that all LLM integrations must implement.
// Never call specific providers directly; always inject this interface.
type AIProvider interface {
	// Complete sends a system and user prompt and returns the first choice's text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider identifier (e.g., "openai", "ollama").
	Name() string
	// Model returns the configured model name.
	Model() string
}

// CompletionRequest is the provider-neutral chat completion input.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// UpstreamError is returned by providers when the LLM service answers with a
// non-success HTTP status.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: upstream status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
