// Package llm provides a minimal client for the Anthropic messages API, which
// backs every analysis feature.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1000
)

// ErrNoAPIKey is returned when a completion is requested without a configured
// API key.
var ErrNoAPIKey = errors.New("llm: API key not configured")

// Client calls the Anthropic messages API.
type Client struct {
	// BaseURL may be overridden in tests.
	BaseURL string

	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a client for the given key and model.
func NewClient(apiKey, model, baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type completionResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends a single-turn prompt and returns the model's text response.
// There is no retry; the caller surfaces failures directly.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	body, err := json.Marshal(completionRequest{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("llm: API returned status %d: %s", resp.StatusCode, snippet)
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(cr.Content) == 0 {
		return "", errors.New("llm: empty response content")
	}
	return cr.Content[0].Text, nil
}
