package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	model      string
	apiURL     string
	httpClient *http.Client
}

// AnthropicOpts holds parameters for creating an AnthropicClient.
type AnthropicOpts struct {
	APIKey  string
	Model   string
	APIURL  string        // override for tests
	Timeout time.Duration // defaults to 30s
}

// NewAnthropicClient creates an AnthropicClient.
func NewAnthropicClient(opts AnthropicOpts) (*AnthropicClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: anthropic api key is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = defaultAnthropicURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AnthropicClient{
		apiKey:     opts.APIKey,
		model:      opts.Model,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a Messages API request. The system prompt goes in the
// top-level system field; history and the user message become the messages
// array.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	var messages []anthropicMessage
	for _, m := range req.History {
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, anthropicMessage{Role: "user", Content: req.User})

	body := anthropicRequest{
		Model:     c.model,
		System:    req.System,
		Messages:  messages,
		MaxTokens: 1000,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm: marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm: build anthropic request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm: anthropic call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("llm: read anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: anthropic status %d", resp.StatusCode)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("llm: decode anthropic response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llm: anthropic error: %s", parsed.Error.Type)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("llm: anthropic returned no text content")
}
