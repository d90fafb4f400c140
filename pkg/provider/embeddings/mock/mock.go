// Package mock provides a test double for the embeddings.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    EmbedFunc:       func(text string) []float32 { return vectors[text] },
//	    DimensionsValue: 3,
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/raaee/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// EmbedFunc computes the vector for one text. If nil, Embed returns
	// EmbedResult for every input.
	EmbedFunc func(text string) []float32

	// EmbedResult is returned when EmbedFunc is nil.
	EmbedResult []float32

	// Err, if non-nil, is returned by Embed and EmbedBatch.
	Err error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EmbedTexts records every text passed to Embed, in order.
	EmbedTexts []string

	// EmbedBatchCalls records the texts of every EmbedBatch call.
	EmbedBatchCalls [][]string
}

// Embed records the call and returns the configured vector.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedTexts = append(p.EmbedTexts, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vector(text), nil
}

// EmbedBatch records the call and embeds each text like Embed.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, cp)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

func (p *Provider) vector(text string) []float32 {
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text)
	}
	return p.EmbedResult
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string { return p.ModelIDValue }
