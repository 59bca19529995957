package gemini

import (
	"testing"

	"github.com/kiranshivaraju/tripplanner/internal/config"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

func TestNewProvider(t *testing.T) {
	p := NewProvider(config.GeminiConfig{APIKey: "gm-test", Model: "gemini-2.5-flash"})

	if p.Name() != "gemini" {
		t.Errorf("Name() = %q, want gemini", p.Name())
	}
	if p.Model() != "gemini-2.5-flash" {
		t.Errorf("Model() = %q, want gemini-2.5-flash", p.Model())
	}
	if p.client != nil {
		t.Error("client should be created lazily")
	}
}

func TestGenerateConfig(t *testing.T) {
	tests := []struct {
		name       string
		req        models.CompletionRequest
		wantSystem string
	}{
		{
			name:       "system prompt becomes instruction",
			req:        models.CompletionRequest{SystemPrompt: "You plan trips.", UserPrompt: "Paris", Temperature: 0.7, MaxTokens: 4000},
			wantSystem: "You plan trips.",
		},
		{
			name: "no system prompt",
			req:  models.CompletionRequest{UserPrompt: "Paris", Temperature: 0.2, MaxTokens: 100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := generateConfig(tt.req)

			if cfg.ResponseMIMEType != "application/json" {
				t.Errorf("ResponseMIMEType = %q", cfg.ResponseMIMEType)
			}
			if cfg.MaxOutputTokens != int32(tt.req.MaxTokens) {
				t.Errorf("MaxOutputTokens = %d, want %d", cfg.MaxOutputTokens, tt.req.MaxTokens)
			}
			if cfg.Temperature == nil || *cfg.Temperature != float32(tt.req.Temperature) {
				t.Errorf("Temperature = %v, want %v", cfg.Temperature, tt.req.Temperature)
			}

			if tt.wantSystem == "" {
				if cfg.SystemInstruction != nil {
					t.Errorf("SystemInstruction = %+v, want nil", cfg.SystemInstruction)
				}
				return
			}
			if cfg.SystemInstruction == nil || len(cfg.SystemInstruction.Parts) != 1 {
				t.Fatalf("SystemInstruction = %+v", cfg.SystemInstruction)
			}
			if got := cfg.SystemInstruction.Parts[0].Text; got != tt.wantSystem {
				t.Errorf("system text = %q, want %q", got, tt.wantSystem)
			}
		})
	}
}
