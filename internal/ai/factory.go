package ai

import (
	"fmt"

	"github.com/kiranshivaraju/tripplanner/internal/ai/anthropic"
	"github.com/kiranshivaraju/tripplanner/internal/ai/gemini"
	"github.com/kiranshivaraju/tripplanner/internal/ai/mock"
	"github.com/kiranshivaraju/tripplanner/internal/ai/ollama"
	"github.com/kiranshivaraju/tripplanner/internal/ai/openai"
	"github.com/kiranshivaraju/tripplanner/internal/ai/vllm"
	"github.com/kiranshivaraju/tripplanner/internal/config"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	case "gemini":
		return gemini.NewProvider(cfg.Gemini), nil
	case "mock":
		return mock.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic, gemini, mock", cfg.Provider)
	}
}

// NewTimeoutPolicy builds the generation timeout policy from config.
func NewTimeoutPolicy(cfg config.AIConfig) TimeoutPolicy {
	return TimeoutPolicy{
		Base:         cfg.BaseTimeout,
		Increment:    cfg.TimeoutIncrement,
		ComplexChars: cfg.ComplexPromptSize,
	}
}
