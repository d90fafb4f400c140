// Package anyllm reaches chat backends through
// github.com/mozilla-ai/any-llm-go. It covers what the OpenAI-compatible
// client cannot: Anthropic, Gemini, Mistral, DeepSeek and local runtimes such
// as Ollama, llama.cpp and llamafile, which suit offline deployments.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/raaee/pkg/provider/llm"
	"github.com/MrWong99/raaee/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

// adapt lifts a backend constructor returning its concrete type.
func adapt[P anyllmlib.Provider](fn func(...anyllmlib.Option) (P, error)) constructor {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		return fn(opts...)
	}
}

var backends = map[string]constructor{
	"openai":    adapt(anyllmoai.New),
	"anthropic": adapt(anthropic.New),
	"gemini":    adapt(gemini.New),
	"ollama":    adapt(ollama.New),
	"deepseek":  adapt(deepseek.New),
	"mistral":   adapt(mistral.New),
	"groq":      adapt(groq.New),
	"llamacpp":  adapt(llamacpp.New),
	"llamafile": adapt(llamafile.New),
}

// Backends lists the names [New] accepts, sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Provider is an [llm.Provider] over one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

// New returns a Provider for backend name. Without anyllmlib.WithAPIKey the
// backend reads its usual environment variable, e.g. ANTHROPIC_API_KEY.
func New(name, model string, opts ...anyllmlib.Option) (*Provider, error) {
	name = strings.ToLower(name)
	if model == "" {
		return nil, errors.New("anyllm: model required")
	}
	mk, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unknown backend %q (have %s)", name, strings.Join(Backends(), ", "))
	}
	b, err := mk(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", name, err)
	}
	return &Provider{backend: b, name: name, model: model}, nil
}

func (p *Provider) Model() string { return p.model }

// Complete runs one completion. any-llm-go does not surface HTTP status
// codes uniformly, so only transport failures are classified.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", p.name, llm.ClassifyTransport(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s: %w", p.name, llm.ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	out := &llm.CompletionResponse{
		Content:   llm.StripReasoning(choice.Message.ContentString()),
		Truncated: choice.FinishReason == "length",
	}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

var knownRoles = []string{anyllmlib.RoleSystem, anyllmlib.RoleUser, anyllmlib.RoleAssistant}

func (p *Provider) params(req llm.CompletionRequest) (anyllmlib.CompletionParams, error) {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		if !slices.Contains(knownRoles, m.Role) {
			return anyllmlib.CompletionParams{}, fmt.Errorf("anyllm: unsupported role %q", m.Role)
		}
		msgs = append(msgs, message(m))
	}
	if len(msgs) == 0 {
		return anyllmlib.CompletionParams{}, errors.New("anyllm: request has no messages")
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params, nil
}

func message(m types.Message) anyllmlib.Message {
	return anyllmlib.Message{Role: m.Role, Content: m.Content}
}
