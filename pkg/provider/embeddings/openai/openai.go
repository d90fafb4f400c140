// Package openai embeds text through the OpenAI /embeddings endpoint or any
// server that mirrors it, such as Ollama's /v1 or a llama.cpp server.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/raaee/pkg/provider/embeddings"
)

// DefaultModel is used when no model is configured.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// DefaultBatchSize caps the number of inputs sent in one request.
const DefaultBatchSize = 256

var _ embeddings.Provider = (*Provider)(nil)

// knownDimensions maps model name fragments to their native vector length.
var knownDimensions = []struct {
	fragment string
	dims     int
}{
	{"text-embedding-3-large", 3072},
	{"text-embedding-3-small", 1536},
	{"text-embedding-ada-002", 1536},
	{"nomic-embed-text", 768},
	{"mxbai-embed-large", 1024},
	{"all-minilm", 384},
}

// Provider embeds crop descriptions and questions.
type Provider struct {
	client     oai.Client
	model      string
	dimensions int
	shorten    bool // request dimensions from a model that can truncate
	batchSize  int
}

type settings struct {
	baseURL    string
	timeout    time.Duration
	dimensions int
	batchSize  int
}

// Option configures a [Provider].
type Option func(*settings)

// WithBaseURL points the client at another OpenAI-compatible server. Local
// servers may then be used without an API key.
func WithBaseURL(url string) Option { return func(s *settings) { s.baseURL = url } }

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option { return func(s *settings) { s.timeout = d } }

// WithDimensions fixes the vector length. For text-embedding-3 models the
// server truncates to n; for other models n must be the native length.
func WithDimensions(n int) Option { return func(s *settings) { s.dimensions = n } }

// WithBatchSize caps inputs per request. Defaults to [DefaultBatchSize].
func WithBatchSize(n int) Option { return func(s *settings) { s.batchSize = n } }

// New returns a Provider for model, or [DefaultModel] when model is empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	s := settings{batchSize: DefaultBatchSize}
	for _, o := range opts {
		o(&s)
	}
	if apiKey == "" && s.baseURL == "" {
		return nil, fmt.Errorf("openai embeddings: api key required for the hosted API")
	}
	if model == "" {
		model = DefaultModel
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL))
	}
	if s.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}

	p := &Provider{
		client:     oai.NewClient(reqOpts...),
		model:      model,
		dimensions: s.dimensions,
		batchSize:  s.batchSize,
	}
	switch {
	case p.dimensions <= 0:
		p.dimensions = nativeDimensions(model)
	case strings.HasPrefix(model, "text-embedding-3"):
		p.shorten = true
	}
	return p, nil
}

// Embed returns the vector for one text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in chunks of at most the configured batch size.
// The result is ordered like texts.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		if err := p.embedChunk(ctx, texts[start:end], out[start:end]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Provider) embedChunk(ctx context.Context, texts []string, dst [][]float32) error {
	params := oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if p.shorten {
		params.Dimensions = param.NewOpt(int64(p.dimensions))
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return fmt.Errorf("openai embeddings: sent %d inputs, got %d vectors", len(texts), len(resp.Data))
	}
	for _, e := range resp.Data {
		i := int(e.Index)
		if i < 0 || i >= len(dst) || dst[i] != nil {
			return fmt.Errorf("openai embeddings: bad index %d in response", e.Index)
		}
		if len(e.Embedding) != p.dimensions {
			return fmt.Errorf("openai embeddings: %w: got %d, want %d",
				embeddings.ErrDimensionMismatch, len(e.Embedding), p.dimensions)
		}
		vec := make([]float32, len(e.Embedding))
		for j, v := range e.Embedding {
			vec[j] = float32(v)
		}
		dst[i] = vec
	}
	return nil
}

// Dimensions reports the vector length.
func (p *Provider) Dimensions() int { return p.dimensions }

// ModelID reports the model name.
func (p *Provider) ModelID() string { return p.model }

func nativeDimensions(model string) int {
	lower := strings.ToLower(model)
	for _, k := range knownDimensions {
		if strings.Contains(lower, k.fragment) {
			return k.dims
		}
	}
	return 1536
}
