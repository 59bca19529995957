package vllm

import (
	"strings"

	"github.com/kiranshivaraju/tripplanner/internal/ai/openai"
	"github.com/kiranshivaraju/tripplanner/internal/config"
)

// NewProvider returns a provider for a vLLM server. vLLM exposes the OpenAI
// Chat Completions API under /v1 and ignores the API key.
func NewProvider(cfg config.VLLMConfig) *openai.Provider {
	return openai.NewCompatible("vllm", BaseURL(cfg.BaseURL), "EMPTY", cfg.Model)
}

// BaseURL appends the /v1/ API prefix to a vLLM server address.
func BaseURL(server string) string {
	server = strings.TrimRight(server, "/")
	if strings.HasSuffix(server, "/v1") {
		return server + "/"
	}
	return server + "/v1/"
}
