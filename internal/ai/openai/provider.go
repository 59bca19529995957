package openai

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/tripplanner/internal/config"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Provider implements models.AIProvider using the OpenAI Chat Completions API.
// It also serves OpenAI-compatible servers such as vLLM through a base URL.
type Provider struct {
	client openai.Client
	name   string
	model  string
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return NewCompatible("openai", cfg.BaseURL, cfg.APIKey, cfg.Model)
}

// NewCompatible builds a provider for any endpoint speaking the Chat
// Completions protocol. An empty baseURL targets api.openai.com.
func NewCompatible(name, baseURL, apiKey, model string) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// One attempt per job; the invoker owns failure handling.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{
		client: openai.NewClient(opts...),
		name:   name,
		model:  model,
	}
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &models.UpstreamError{
				Provider:   p.name,
				StatusCode: apiErr.StatusCode,
				Body:       apiErr.Message,
				Err:        err,
			}
		}
		return "", err
	}

	if resp == nil || len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

var _ models.AIProvider = (*Provider)(nil)
