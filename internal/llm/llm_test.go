package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openvalet/valet/internal/config"
)

func TestOpenAIClient_Complete(t *testing.T) {
	var gotReq openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want Bearer sk-test", got)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": `{"action":"none"}`}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIOpts{APIKey: "sk-test", Model: "gpt-4-turbo-preview", APIURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}

	out, err := client.Complete(context.Background(), Request{
		System:  "you are a test",
		History: []Message{{Role: "user", Content: "earlier"}, {Role: "assistant", Content: "reply"}},
		User:    "lock my car",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"action":"none"}` {
		t.Errorf("out = %q", out)
	}

	if len(gotReq.Messages) != 4 {
		t.Fatalf("sent %d messages, want 4 (system + 2 history + user)", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", gotReq.Messages[0].Role)
	}
	if gotReq.Messages[3].Content != "lock my car" {
		t.Errorf("last message = %q, want user text", gotReq.Messages[3].Content)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Error("expected json_object response format")
	}
}

func TestOpenAIClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, _ := NewOpenAIClient(OpenAIOpts{APIKey: "k", Model: "m", APIURL: srv.URL})
	if _, err := client.Complete(context.Background(), Request{User: "hi"}); err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestAnthropicClient_Complete(t *testing.T) {
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "sk-ant" {
			t.Errorf("x-api-key = %q, want sk-ant", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicAPIVersion {
			t.Errorf("anthropic-version = %q, want %q", got, anthropicAPIVersion)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": `{"action":"lock"}`}},
		})
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(AnthropicOpts{APIKey: "sk-ant", Model: "claude-3-5-sonnet-20241022", APIURL: srv.URL})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}

	out, err := client.Complete(context.Background(), Request{System: "sys", User: "lock it"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"action":"lock"}` {
		t.Errorf("out = %q", out)
	}
	if gotReq.System != "sys" {
		t.Errorf("system = %q, want top-level sys", gotReq.System)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("messages = %+v, want single user message", gotReq.Messages)
	}
}

func TestNewClient_ProviderSelection(t *testing.T) {
	openai, err := NewClient(config.LLMConfig{Provider: "openai", OpenAIAPIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("NewClient openai: %v", err)
	}
	if _, ok := openai.(*OpenAIClient); !ok {
		t.Errorf("got %T, want *OpenAIClient", openai)
	}

	anthropic, err := NewClient(config.LLMConfig{Provider: "anthropic", AnthropicAPIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("NewClient anthropic: %v", err)
	}
	if _, ok := anthropic.(*AnthropicClient); !ok {
		t.Errorf("got %T, want *AnthropicClient", anthropic)
	}

	if _, err := NewClient(config.LLMConfig{Provider: "openai"}); err == nil {
		t.Error("expected error for missing key")
	}
}
