package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/kiranshivaraju/tripplanner/internal/config"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
	"github.com/ollama/ollama/api"
)

// Provider implements models.AIProvider using a local Ollama server.
type Provider struct {
	client *api.Client
	model  string
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		base, _ = url.Parse("http://localhost:11434")
	}
	return &Provider{
		client: api.NewClient(base, http.DefaultClient),
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string  { return "ollama" }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	stream := false
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	var messages []api.Message
	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.UserPrompt})

	var content string
	err := p.client.Chat(ctx, &api.ChatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", &models.UpstreamError{
				Provider:   "ollama",
				StatusCode: statusErr.StatusCode,
				Body:       statusErr.ErrorMessage,
				Err:        err,
			}
		}
		return "", err
	}
	return content, nil
}

var _ models.AIProvider = (*Provider)(nil)
