package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkovalenko/chatrelay/internal/chat"
)

func TestRespondSendsPromptAndParsesChoice(t *testing.T) {
	var seen completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hello back"}},
			},
		})
	}))
	defer srv.Close()

	c, err := NewAzureClient(AzureConfig{
		APIKey:     "secret",
		Endpoint:   srv.URL + "/",
		Deployment: "gpt-4o",
	})
	require.NoError(t, err)

	reply, err := c.Respond(context.Background(), []chat.PromptMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello back", reply)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "user", seen.Messages[1].Role)
	assert.Equal(t, 512, seen.MaxTokens)
}

func TestRespondUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewAzureClient(AzureConfig{APIKey: "k", Endpoint: srv.URL + "/", Deployment: "d"})
	require.NoError(t, err)

	_, err = c.Respond(context.Background(), []chat.PromptMessage{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNewAzureClientRequiresCredentials(t *testing.T) {
	_, err := NewAzureClient(AzureConfig{Endpoint: "https://example.test/"})
	require.Error(t, err)
}
