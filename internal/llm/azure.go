// Package llm implements the model-call side of the relay against the
// Azure OpenAI chat-completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkovalenko/chatrelay/internal/chat"
	"github.com/mkovalenko/chatrelay/internal/reliability"
)

const apiVersion = "2024-02-15-preview"

// AzureConfig carries the deployment coordinates and generation settings.
type AzureConfig struct {
	APIKey      string
	Endpoint    string
	Deployment  string
	MaxTokens   int
	Temperature float64
}

// AzureClient calls one Azure OpenAI chat-completions deployment.
type AzureClient struct {
	cfg    AzureConfig
	client *http.Client
}

func NewAzureClient(cfg AzureConfig) (*AzureClient, error) {
	if cfg.APIKey == "" || cfg.Endpoint == "" || cfg.Deployment == "" {
		return nil, fmt.Errorf("azure openai: api key, endpoint and deployment are all required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	return &AzureClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type completionRequest struct {
	Messages    []chat.PromptMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float64              `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Respond sends the rendered prompt and returns the first choice's text.
func (c *AzureClient) Respond(ctx context.Context, prompt []chat.PromptMessage) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Messages:    prompt,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%sopenai/deployments/%s/chat/completions?api-version=%s",
		ensureTrailingSlash(c.cfg.Endpoint), c.cfg.Deployment, apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return "", fmt.Errorf("azure openai status %d (retryable): %s", res.StatusCode, string(body))
		}
		return "", fmt.Errorf("azure openai status %d: %s", res.StatusCode, string(body))
	}

	var parsed completionResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("azure openai returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func ensureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
