// Package mcp exposes the crop knowledge base and the advisor as Model
// Context Protocol tools, so that other agents can consult Raa'ee without
// going through speech.
//
// Three tools are registered by [NewServer]:
//   - "lookup_crop": resolve a question or crop name to a knowledge entry.
//   - "ask_advisor": get the advisor's Urdu reply to a text question.
//   - "recent_exchanges": list recently answered voice questions.
package mcp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/raaee/internal/knowledge"
	"github.com/MrWong99/raaee/internal/observe"
	"github.com/MrWong99/raaee/internal/pipeline"
	"github.com/MrWong99/raaee/pkg/memory"
)

// Answerer produces an advisor reply for a text question.
type Answerer interface {
	Answer(ctx context.Context, question string) pipeline.Answer
}

const maxRecent = 100

// Option configures the server built by [NewServer].
type Option func(*tools)

// WithJournal enables the recent_exchanges tool.
func WithJournal(j memory.ExchangeLog) Option { return func(t *tools) { t.journal = j } }

// WithMetrics records tool calls and latencies.
func WithMetrics(m *observe.Metrics) Option { return func(t *tools) { t.metrics = m } }

// WithVersion sets the implementation version reported to clients.
func WithVersion(v string) Option { return func(t *tools) { t.version = v } }

type tools struct {
	finder   *knowledge.Finder
	answerer Answerer
	journal  memory.ExchangeLog
	metrics  *observe.Metrics
	version  string
}

// NewServer builds an MCP server over finder and answerer.
func NewServer(finder *knowledge.Finder, answerer Answerer, opts ...Option) *mcpsdk.Server {
	t := &tools{finder: finder, answerer: answerer, version: "dev"}
	for _, o := range opts {
		o(t)
	}

	s := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "raaee", Version: t.version}, nil)

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "lookup_crop",
		Description: "Find the crop knowledge entry that an English question or crop name refers to. Tolerates misspelt crop names.",
	}, instrument(t, "lookup_crop", t.lookupCrop))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "ask_advisor",
		Description: "Ask the Raa'ee agricultural advisor a farming question. The reply is in simple Urdu.",
	}, instrument(t, "ask_advisor", t.askAdvisor))

	if t.journal != nil {
		mcpsdk.AddTool(s, &mcpsdk.Tool{
			Name:        "recent_exchanges",
			Description: "List the most recently answered voice questions, newest first.",
		}, instrument(t, "recent_exchanges", t.recentExchanges))
	}
	return s
}

// Handler serves s over the streamable HTTP transport.
func Handler(s *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s }, nil)
}

// LookupInput is the input of lookup_crop.
type LookupInput struct {
	Query string `json:"query" jsonschema:"English question or crop name"`
}

// LookupOutput is the result of lookup_crop.
type LookupOutput struct {
	Found   bool    `json:"found"`
	Crop    string  `json:"crop,omitempty"`
	Method  string  `json:"method,omitempty"`
	Score   float64 `json:"score,omitempty"`
	Details string  `json:"details,omitempty" jsonschema:"the knowledge entry as compact JSON"`
}

func (t *tools) lookupCrop(ctx context.Context, _ *mcpsdk.CallToolRequest, in LookupInput) (*mcpsdk.CallToolResult, LookupOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, LookupOutput{}, errors.New("lookup_crop: query must not be empty")
	}
	m, ok := t.finder.Find(ctx, in.Query)
	if !ok {
		return nil, LookupOutput{Found: false}, nil
	}
	return nil, LookupOutput{
		Found:   true,
		Crop:    m.Crop,
		Method:  string(m.Method),
		Score:   m.Score,
		Details: t.finder.Base().Document(m.Crop),
	}, nil
}

// AskInput is the input of ask_advisor.
type AskInput struct {
	Question string `json:"question" jsonschema:"the farmer's question, preferably in English"`
}

// AskOutput is the result of ask_advisor.
type AskOutput struct {
	Reply string `json:"reply"`
	Crop  string `json:"crop,omitempty"`
}

func (t *tools) askAdvisor(ctx context.Context, _ *mcpsdk.CallToolRequest, in AskInput) (*mcpsdk.CallToolResult, AskOutput, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, AskOutput{}, errors.New("ask_advisor: question must not be empty")
	}
	ans := t.answerer.Answer(ctx, in.Question)
	if ans.Err != nil {
		return nil, AskOutput{}, ans.Err
	}
	out := AskOutput{Reply: ans.Reply}
	if ans.Match != nil {
		out.Crop = ans.Match.Crop
	}
	return nil, out, nil
}

// RecentInput is the input of recent_exchanges.
type RecentInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of exchanges, default 20"`
}

// RecentExchange is one entry of recent_exchanges.
type RecentExchange struct {
	ID            string `json:"id"`
	Transcription string `json:"transcription"`
	Translation   string `json:"translation,omitempty"`
	Reply         string `json:"reply"`
	Crop          string `json:"crop,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// RecentOutput is the result of recent_exchanges.
type RecentOutput struct {
	Exchanges []RecentExchange `json:"exchanges"`
}

func (t *tools) recentExchanges(ctx context.Context, _ *mcpsdk.CallToolRequest, in RecentInput) (*mcpsdk.CallToolResult, RecentOutput, error) {
	limit := min(in.Limit, maxRecent)
	exs, err := t.journal.Recent(ctx, limit)
	if err != nil {
		return nil, RecentOutput{}, err
	}
	out := RecentOutput{Exchanges: make([]RecentExchange, 0, len(exs))}
	for _, ex := range exs {
		out.Exchanges = append(out.Exchanges, RecentExchange{
			ID:            ex.ID,
			Transcription: ex.Transcription,
			Translation:   ex.Translation,
			Reply:         ex.Reply,
			Crop:          ex.Crop,
			CreatedAt:     ex.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

// instrument wraps a tool handler with latency and outcome metrics.
func instrument[In, Out any](t *tools, name string, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
		start := time.Now()
		res, out, err := h(ctx, req, in)
		if t.metrics != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			t.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(attribute.String("tool", name)))
			t.metrics.RecordToolCall(ctx, name, status)
		}
		if err != nil {
			observe.Logger(ctx).Warn("mcp tool failed", "tool", name, "err", err)
		}
		return res, out, err
	}
}
