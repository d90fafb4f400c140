// Package advisor turns a farmer's question and an optional crop entry into
// an Urdu reply from the language model.
//
// Ask never leaves the caller without something to say: on any failure it
// returns one of the fixed replies in messages.go together with the error.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/raaee/internal/knowledge"
	"github.com/MrWong99/raaee/internal/observe"
	"github.com/MrWong99/raaee/internal/resilience"
	"github.com/MrWong99/raaee/pkg/provider/llm"
	"github.com/MrWong99/raaee/pkg/types"
)

// ErrNoProvider is returned when the advisor was built without an LLM.
var ErrNoProvider = errors.New("advisor: no language model configured")

// Defaults applied by [New] when the corresponding option is not given.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
	DefaultTimeout     = 30 * time.Second
)

// Option configures an [Advisor].
type Option func(*Advisor)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option { return func(a *Advisor) { a.temperature = t } }

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option { return func(a *Advisor) { a.maxTokens = n } }

// WithTimeout bounds each completion. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(a *Advisor) { a.timeout = d } }

// WithSystemPrompt replaces [DefaultSystemPrompt]. An empty prompt is ignored.
func WithSystemPrompt(p string) Option {
	return func(a *Advisor) {
		if strings.TrimSpace(p) != "" {
			a.systemPrompt = p
		}
	}
}

// WithMetrics records completion latency and provider outcomes.
func WithMetrics(m *observe.Metrics) Option { return func(a *Advisor) { a.metrics = m } }

// Advisor asks the language model for replies. It is safe for concurrent use.
type Advisor struct {
	llm          llm.Provider
	temperature  float64
	maxTokens    int
	timeout      time.Duration
	systemPrompt string
	metrics      *observe.Metrics
}

// New returns an Advisor backed by provider. provider may be nil, in which
// case every Ask returns [ReplyMissingProvider].
func New(provider llm.Provider, opts ...Option) *Advisor {
	a := &Advisor{
		llm:          provider,
		temperature:  DefaultTemperature,
		maxTokens:    DefaultMaxTokens,
		timeout:      DefaultTimeout,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Ask answers question using crop as grounding context. crop may be nil when
// the knowledge lookup found nothing.
//
// The returned reply is always non-empty. When err is non-nil the reply is the
// fixed fallback text that matches the failure.
func (a *Advisor) Ask(ctx context.Context, question string, crop *knowledge.Match) (string, error) {
	if a.llm == nil {
		return ReplyMissingProvider, ErrNoProvider
	}

	ctx, span := observe.StartSpan(ctx, "advisor.ask")
	defer span.End()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	req := llm.CompletionRequest{
		SystemPrompt: a.systemPrompt,
		Messages:     []types.Message{{Role: "user", Content: UserMessage(question, crop)}},
		Temperature:  a.temperature,
		MaxTokens:    a.maxTokens,
	}

	start := time.Now()
	resp, err := a.llm.Complete(ctx, req)
	a.record(ctx, start, err)

	if err != nil {
		span.RecordError(err)
		return FallbackReply(err), fmt.Errorf("advisor: complete: %w", err)
	}
	reply := ""
	if resp != nil {
		reply = strings.TrimSpace(resp.Content)
		if resp.Truncated {
			observe.Logger(ctx).Warn("advisor reply hit the token limit", "max_tokens", a.maxTokens)
		}
	}
	if reply == "" {
		return ReplyEmpty, fmt.Errorf("advisor: %w", llm.ErrEmptyResponse)
	}
	return reply, nil
}

func (a *Advisor) record(ctx context.Context, start time.Time, err error) {
	if a.metrics == nil {
		return
	}
	model := a.llm.Model()
	a.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("model", model)))
	status := "ok"
	if err != nil {
		status = "error"
		a.metrics.RecordProviderError(ctx, model, "llm")
	}
	a.metrics.RecordProviderRequest(ctx, model, "llm", status)
}

// UserMessage renders the question and crop context the way the persona
// expects them.
func UserMessage(question string, crop *knowledge.Match) string {
	var b strings.Builder
	b.WriteString(contextHeader)
	b.WriteByte('\n')
	b.WriteString(cropContext(crop))
	b.WriteString("\n\n")
	b.WriteString(questionHeader)
	b.WriteByte('\n')
	b.WriteString(`"` + question + `"`)
	b.WriteString("\n\n")
	b.WriteString(answerGuidance)
	return b.String()
}

func cropContext(crop *knowledge.Match) string {
	if crop == nil || len(crop.Data) == 0 {
		return noCropAvailable
	}
	var out bytes.Buffer
	if err := json.Indent(&out, crop.Data, "", "  "); err != nil {
		return string(crop.Data)
	}
	return out.String()
}

// FallbackReply maps a completion error onto the Urdu message shown to the
// farmer.
func FallbackReply(err error) string {
	var statusErr *llm.StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoProvider):
		return ReplyMissingProvider
	case errors.Is(err, llm.ErrEmptyResponse):
		return ReplyEmpty
	case errors.Is(err, context.DeadlineExceeded):
		return ReplyTimeout
	case errors.Is(err, llm.ErrUnauthorized):
		return ReplyUnauthorized
	case errors.Is(err, llm.ErrRateLimited):
		return ReplyRateLimited
	case errors.Is(err, llm.ErrUnavailable), errors.Is(err, resilience.ErrCircuitOpen):
		return ReplyConnection
	case errors.As(err, &statusErr):
		return ReplyHTTP
	default:
		return ReplyUnexpected
	}
}
