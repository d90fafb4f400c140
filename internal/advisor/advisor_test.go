package advisor_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/raaee/internal/advisor"
	"github.com/MrWong99/raaee/internal/knowledge"
	"github.com/MrWong99/raaee/internal/resilience"
	"github.com/MrWong99/raaee/pkg/provider/llm"
	"github.com/MrWong99/raaee/pkg/provider/llm/mock"
)

func TestAsk_SendsPersonaAndContext(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  گندم میں یوریا ڈالیں۔ \n"}}
	a := advisor.New(p)

	crop := &knowledge.Match{Crop: "wheat", Data: json.RawMessage(`{"fertilizer":"DAP"}`)}
	reply, err := a.Ask(context.Background(), "گندم کی کھاد", crop)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply != "گندم میں یوریا ڈالیں۔" {
		t.Errorf("reply = %q, want trimmed model text", reply)
	}

	if len(p.CompleteCalls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0].Req
	if req.SystemPrompt != advisor.DefaultSystemPrompt {
		t.Error("system prompt is not the default persona")
	}
	if req.Temperature != 0.7 || req.MaxTokens != 500 {
		t.Errorf("temperature/max tokens = %v/%d, want 0.7/500", req.Temperature, req.MaxTokens)
	}
	msg := req.Messages[0].Content
	for _, want := range []string{`"fertilizer": "DAP"`, `"گندم کی کھاد"`, "جواب سادہ اردو میں ہو اور عملی ہو۔"} {
		if !strings.Contains(msg, want) {
			t.Errorf("user message missing %q:\n%s", want, msg)
		}
	}
}

func TestAsk_NoCrop(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: advisor.ReplyOffTopic}}
	a := advisor.New(p, advisor.WithSystemPrompt("custom"), advisor.WithTemperature(0.2), advisor.WithMaxTokens(50))

	if _, err := a.Ask(context.Background(), "motorcycle", nil); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	req := p.CompleteCalls[0].Req
	if req.SystemPrompt != "custom" || req.Temperature != 0.2 || req.MaxTokens != 50 {
		t.Errorf("options not applied: %+v", req)
	}
	if !strings.Contains(req.Messages[0].Content, "کسی مخصوص فصل کا ڈیٹا دستیاب نہیں۔") {
		t.Errorf("missing no-crop note in %q", req.Messages[0].Content)
	}
}

func TestAsk_NilProvider(t *testing.T) {
	t.Parallel()
	reply, err := advisor.New(nil).Ask(context.Background(), "q", nil)
	if !errors.Is(err, advisor.ErrNoProvider) || reply != advisor.ReplyMissingProvider {
		t.Fatalf("got %q, %v", reply, err)
	}
}

func TestAsk_EmptyContent(t *testing.T) {
	t.Parallel()
	a := advisor.New(&mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "   "}})
	reply, err := a.Ask(context.Background(), "q", nil)
	if !errors.Is(err, llm.ErrEmptyResponse) || reply != advisor.ReplyEmpty {
		t.Fatalf("got %q, %v", reply, err)
	}
}

func TestAsk_Timeout(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	a := advisor.New(p, advisor.WithTimeout(10*time.Millisecond))
	reply, err := a.Ask(context.Background(), "q", nil)
	if !errors.Is(err, context.DeadlineExceeded) || reply != advisor.ReplyTimeout {
		t.Fatalf("got %q, %v", reply, err)
	}
}

func TestFallbackReply(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", llm.ClassifyStatus(401, errors.New("bad key")), advisor.ReplyUnauthorized},
		{"rate limited", llm.ClassifyStatus(429, errors.New("slow down")), advisor.ReplyRateLimited},
		{"other status", llm.ClassifyStatus(503, errors.New("down")), advisor.ReplyHTTP},
		{"unavailable", fmt.Errorf("x: %w", llm.ErrUnavailable), advisor.ReplyConnection},
		{"circuit open", resilience.ErrCircuitOpen, advisor.ReplyConnection},
		{"deadline", context.DeadlineExceeded, advisor.ReplyTimeout},
		{"empty", llm.ErrEmptyResponse, advisor.ReplyEmpty},
		{"all failed wraps cause", fmt.Errorf("%w: %w", resilience.ErrAllFailed, llm.ErrRateLimited), advisor.ReplyRateLimited},
		{"unknown", errors.New("boom"), advisor.ReplyUnexpected},
		{"nil", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := advisor.FallbackReply(tc.err); got != tc.want {
				t.Errorf("FallbackReply(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestSystemPrompt_ContainsOffTopicReply(t *testing.T) {
	t.Parallel()
	if !strings.Contains(advisor.DefaultSystemPrompt, advisor.ReplyOffTopic) {
		t.Error("persona must instruct the off-topic reply")
	}
}
