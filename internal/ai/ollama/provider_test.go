package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/tripplanner/internal/ai/ollama"
	"github.com/kiranshivaraju/tripplanner/internal/config"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete_SendsSystemAndUserMessages(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Options map[string]any `json:"options"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"{\"days\":[]}"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"})
	text, err := p.Complete(context.Background(), models.CompletionRequest{
		SystemPrompt: "system", UserPrompt: "user", Temperature: 0.7, MaxTokens: 4000,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"days":[]}`, text)

	assert.Equal(t, "llama3", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.EqualValues(t, 4000, got.Options["num_predict"])
}

func TestNewProvider_InvalidURLFallsBackToLocalhost(t *testing.T) {
	p := ollama.NewProvider(config.OllamaConfig{BaseURL: "::not a url", Model: "llama3"})
	assert.Equal(t, "ollama", p.Name())
	assert.Equal(t, "llama3", p.Model())
}
