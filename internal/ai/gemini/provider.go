package gemini

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/tripplanner/internal/config"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
	"google.golang.org/genai"
)

// Provider implements models.AIProvider using the Gemini API. The SDK client
// is created on first use because construction needs a context.
type Provider struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

func NewProvider(cfg config.GeminiConfig) *Provider {
	return &Provider{apiKey: cfg.APIKey, model: cfg.Model}
}

func (p *Provider) Name() string  { return "gemini" }
func (p *Provider) Model() string { return p.model }

func (p *Provider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	p.client = client
	return client, nil
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	result, err := client.Models.GenerateContent(ctx, p.model, genai.Text(req.UserPrompt), generateConfig(req))
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &models.UpstreamError{
				Provider:   "gemini",
				StatusCode: apiErr.Code,
				Body:       apiErr.Message,
				Err:        err,
			}
		}
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return result.Text(), nil
}

// generateConfig asks for a JSON response so the itinerary parser rarely has
// to repair anything.
func generateConfig(req models.CompletionRequest) *genai.GenerateContentConfig {
	temperature := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  int32(req.MaxTokens),
		ResponseMIMEType: "application/json",
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	return cfg
}

var _ models.AIProvider = (*Provider)(nil)
