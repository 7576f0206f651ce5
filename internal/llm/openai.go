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

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient calls the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey     string
	model      string
	apiURL     string
	httpClient *http.Client
}

// OpenAIOpts holds parameters for creating an OpenAIClient.
type OpenAIOpts struct {
	APIKey  string
	Model   string
	APIURL  string        // override for tests
	Timeout time.Duration // defaults to 30s
}

// NewOpenAIClient creates an OpenAIClient.
func NewOpenAIClient(opts OpenAIOpts) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: openai api key is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = defaultOpenAIURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{
		apiKey:     opts.APIKey,
		model:      opts.Model,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a chat completion request in JSON mode and returns the
// raw assistant text.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := []openAIMessage{{Role: "system", Content: req.System}}
	for _, m := range req.History {
		messages = append(messages, openAIMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.User})

	body := openAIRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   1000,
		ResponseFormat: &struct {
			Type string `json:"type"`
		}{Type: "json_object"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm: marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm: build openai request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm: openai call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("llm: read openai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: openai status %d", resp.StatusCode)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("llm: decode openai response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llm: openai error: %s", parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm: openai returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
