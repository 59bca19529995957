package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

// maxBodyInMessage bounds how much of an upstream error body reaches the job record.
const maxBodyInMessage = 500

// GenerateRequest is one itinerary generation call.
type GenerateRequest struct {
	JobID        string
	SystemPrompt string
	UserPrompt   string
	Mobile       bool
}

// Invoker calls the configured provider once per job under a deadline chosen
// by the timeout policy, and classifies failures.
type Invoker struct {
	provider    models.AIProvider
	policy      TimeoutPolicy
	production  bool
	temperature float64
	maxTokens   int
}

// NewInvoker creates an Invoker. Zero temperature and maxTokens are sent as-is.
func NewInvoker(provider models.AIProvider, policy TimeoutPolicy, production bool, temperature float64, maxTokens int) *Invoker {
	return &Invoker{
		provider:    provider,
		policy:      policy,
		production:  production,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Provider returns the wrapped provider.
func (inv *Invoker) Provider() models.AIProvider { return inv.provider }

// PlanFor computes the timeout plan for req.
func (inv *Invoker) PlanFor(req GenerateRequest) Plan {
	return inv.policy.Plan(RequestContext{
		Mobile:     req.Mobile,
		Complex:    inv.policy.IsComplex(req.SystemPrompt + req.UserPrompt),
		Production: inv.production,
	})
}

// Generate returns the raw model text. Every failure is a *GenerationError.
// No retry is attempted.
func (inv *Invoker) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	plan := inv.PlanFor(req)

	callCtx, cancel := context.WithTimeout(ctx, plan.Timeout)
	defer cancel()

	start := time.Now()
	text, err := inv.provider.Complete(callCtx, models.CompletionRequest{
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		Temperature:  inv.temperature,
		MaxTokens:    inv.maxTokens,
	})
	elapsed := time.Since(start)

	if err != nil {
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		genErr := classify(err, plan, timedOut)
		slog.Warn("generation failed",
			"job_id", req.JobID,
			"provider", inv.provider.Name(),
			"kind", genErr.Kind,
			"timeout", plan.Timeout,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return "", genErr
	}

	if strings.TrimSpace(text) == "" {
		return "", &GenerationError{
			Kind:    FailureEmptyResponse,
			Message: "The itinerary service returned an empty response. Please try again.",
			Err:     ErrEmptyResponse,
		}
	}

	slog.Info("generation completed",
		"job_id", req.JobID,
		"provider", inv.provider.Name(),
		"model", inv.provider.Model(),
		"duration_ms", elapsed.Milliseconds(),
		"chars", len(text),
	)
	return text, nil
}

// classify maps a provider error onto a FailureKind and a user-facing message.
func classify(err error, plan Plan, timedOut bool) *GenerationError {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}

	if timedOut || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrInferenceTimeout) {
		return &GenerationError{Kind: FailureTimeout, Message: plan.TimeoutMessage, Err: err}
	}

	var upErr *models.UpstreamError
	if errors.As(err, &upErr) {
		body := upErr.Body
		if len(body) > maxBodyInMessage {
			body = body[:maxBodyInMessage]
		}
		return &GenerationError{
			Kind:       FailureUpstream,
			Message:    fmt.Sprintf("The itinerary service returned an error (status %d): %s", upErr.StatusCode, body),
			StatusCode: upErr.StatusCode,
			Body:       upErr.Body,
			Err:        err,
		}
	}

	if errors.Is(err, ErrEmptyResponse) {
		return &GenerationError{
			Kind:    FailureEmptyResponse,
			Message: "The itinerary service returned an empty response. Please try again.",
			Err:     err,
		}
	}

	if errors.Is(err, ErrProviderUnavailable) || isNetworkError(err) {
		return &GenerationError{Kind: FailureNetwork, Message: NetworkMessage, Err: err}
	}

	return &GenerationError{
		Kind:    FailureUnknown,
		Message: fmt.Sprintf("Failed to generate itinerary: %v", err),
		Err:     err,
	}
}

// AsGenerationError converts any error into a *GenerationError with the
// generic timeout message, for failures raised outside Generate.
func AsGenerationError(err error) *GenerationError {
	return classify(err, DefaultTimeoutPolicy.Plan(RequestContext{}), false)
}
