package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/raaee/pkg/provider/llm"
	"github.com/MrWong99/raaee/pkg/types"
)

// newMockServer serves /chat/completions with the given status and body and
// records the decoded request body.
func newMockServer(t *testing.T, status int, body string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			_ = json.NewDecoder(r.Body).Decode(got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "llama-3.1-8b-instant",
  "choices": [{"index": 0, "finish_reason": "stop",
    "message": {"role": "assistant", "content": "گندم کی بوائی نومبر میں کریں۔"}}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func TestToMessages(t *testing.T) {
	msgs, err := toMessages(llm.CompletionRequest{
		SystemPrompt: "You advise Pakistani farmers.",
		Messages: []types.Message{
			{Role: "user", Content: "wheat?"},
			{Role: "assistant", Content: "November."},
			{Role: "user", Content: "rice?"},
		},
	})
	if err != nil {
		t.Fatalf("toMessages: %v", err)
	}
	if len(msgs) != 4 || msgs[0].OfSystem == nil || msgs[2].OfAssistant == nil {
		t.Errorf("messages = %+v", msgs)
	}

	if _, err := toMessages(llm.CompletionRequest{Messages: []types.Message{{Role: "tool", Content: "x"}}}); err == nil {
		t.Error("expected error for unsupported role")
	}
	if _, err := toMessages(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for an empty request")
	}
}

func TestComplete_StripsReasoningAndFlagsTruncation(t *testing.T) {
	body := `{"id":"x","object":"chat.completion","created":1,"model":"deepseek-r1-distill-llama-70b",
  "choices":[{"index":0,"finish_reason":"length",
    "message":{"role":"assistant","content":"<think>farmer asks about cotton</think>\nکپاس اپریل میں"}}]}`
	srv := newMockServer(t, http.StatusOK, body, nil)
	p, _ := New("k", "deepseek-r1-distill-llama-70b", WithBaseURL(srv.URL))

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "cotton?"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "کپاس اپریل میں" {
		t.Errorf("content = %q", resp.Content)
	}
	if !resp.Truncated {
		t.Error("finish_reason length not reported as truncated")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "m"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("k", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestComplete_Success(t *testing.T) {
	var got map[string]any
	srv := newMockServer(t, http.StatusOK, okBody, &got)

	p, err := New("test-key", "llama-3.1-8b-instant", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "system",
		Messages:     []types.Message{{Role: "user", Content: "wheat?"}},
		Temperature:  0.7,
		MaxTokens:    500,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "گندم کی بوائی نومبر میں کریں۔" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if got["model"] != "llama-3.1-8b-instant" {
		t.Errorf("unexpected model in request: %v", got["model"])
	}
	if got["max_tokens"] != float64(500) {
		t.Errorf("expected max_tokens 500, got %v", got["max_tokens"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestComplete_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		target error
	}{
		{"unauthorized", http.StatusUnauthorized, llm.ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, llm.ErrRateLimited},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newMockServer(t, tc.status, `{"error":{"message":"nope","type":"x"}}`, nil)
			p, _ := New("k", "m", WithBaseURL(srv.URL))
			_, err := p.Complete(context.Background(), llm.CompletionRequest{
				Messages: []types.Message{{Role: "user", Content: "hi"}},
			})
			if !errors.Is(err, tc.target) {
				t.Fatalf("want %v, got %v", tc.target, err)
			}
		})
	}

	srv := newMockServer(t, http.StatusBadRequest, `{"error":{"message":"bad","type":"x"}}`, nil)
	p, _ := New("k", "m", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	var se *llm.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("want StatusError 400, got %v", err)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := newMockServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, nil)
	p, _ := New("k", "m", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("want ErrEmptyResponse, got %v", err)
	}
}

func TestComplete_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, _ := New("k", "m", WithBaseURL(url))
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}
