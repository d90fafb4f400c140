// Package openai talks to chat completion APIs that follow the OpenAI wire
// format. Groq is the usual deployment; other compatible servers are reached
// through [WithBaseURL].
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/raaee/pkg/provider/llm"
	"github.com/MrWong99/raaee/pkg/types"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

var _ llm.Provider = (*Provider)(nil)

// Provider is an [llm.Provider] backed by the openai-go SDK.
type Provider struct {
	client oai.Client
	model  string
}

// Option adds SDK request options when building a [Provider].
type Option func(*[]option.RequestOption)

func with(o option.RequestOption) Option {
	return func(opts *[]option.RequestOption) { *opts = append(*opts, o) }
}

// WithBaseURL sends requests to another compatible server.
func WithBaseURL(url string) Option { return with(option.WithBaseURL(url)) }

// WithOrganization sets the OpenAI organization header.
func WithOrganization(org string) Option { return with(option.WithOrganization(org)) }

// WithMaxRetries lets the SDK retry throttled or failed calls. Default 0;
// failover between backends is handled above this layer.
func WithMaxRetries(n int) Option { return with(option.WithMaxRetries(n)) }

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option { return with(option.WithHTTPClient(hc)) }

// WithTimeout bounds each HTTP request. It replaces any client set earlier.
func WithTimeout(d time.Duration) Option {
	return WithHTTPClient(&http.Client{Timeout: d})
}

// New returns a Provider that sends every completion to model.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: api key required")
	case model == "":
		return nil, errors.New("openai: model required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

func (p *Provider) Model() string { return p.model }

// Complete sends one chat completion and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	msgs, err := toMessages(req)
	if err != nil {
		return nil, err
	}
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: msgs,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	// Groq still reads max_tokens rather than max_completion_tokens.
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai: %s: %w", p.model, llm.ClassifyStatus(apiErr.StatusCode, err))
		}
		return nil, fmt.Errorf("openai: %s: %w", p.model, llm.ClassifyTransport(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %s: %w", p.model, llm.ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	return &llm.CompletionResponse{
		Content:   llm.StripReasoning(choice.Message.Content),
		Truncated: choice.FinishReason == "length",
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

var roles = map[string]func(string) oai.ChatCompletionMessageParamUnion{
	"system": func(s string) oai.ChatCompletionMessageParamUnion { return oai.SystemMessage(s) },
	"user":   func(s string) oai.ChatCompletionMessageParamUnion { return oai.UserMessage(s) },
	"assistant": func(s string) oai.ChatCompletionMessageParamUnion {
		return oai.AssistantMessage(s)
	},
}

// toMessages puts the system prompt first and maps every message by role.
func toMessages(req llm.CompletionRequest) ([]oai.ChatCompletionMessageParamUnion, error) {
	all := req.Messages
	if req.SystemPrompt != "" {
		all = append([]types.Message{{Role: "system", Content: req.SystemPrompt}}, all...)
	}
	if len(all) == 0 {
		return nil, errors.New("openai: request has no messages")
	}
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(all))
	for _, m := range all {
		mk, ok := roles[m.Role]
		if !ok {
			return nil, fmt.Errorf("openai: unsupported role %q", m.Role)
		}
		out = append(out, mk(m.Content))
	}
	return out, nil
}
