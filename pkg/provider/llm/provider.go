// Package llm is the chat completion seam used by the advisor. Backends live
// in subpackages (openai for Groq and other OpenAI-compatible servers, anyllm
// for the rest) and report failures through the sentinels in errors.go.
package llm

import (
	"context"

	"github.com/MrWong99/raaee/pkg/types"
)

// Usage is the token count reported by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is one advisor turn. Messages or SystemPrompt must be set.
type CompletionRequest struct {
	SystemPrompt string          // sent first with the system role
	Messages     []types.Message // oldest first; the farmer's question is last
	Temperature  float64         // zero leaves the backend default
	MaxTokens    int             // zero leaves the backend default
}

type CompletionResponse struct {
	// Content has any reasoning block removed, see [StripReasoning].
	Content   string
	Truncated bool // stopped at MaxTokens
	Usage     Usage
}

// Provider must be safe for concurrent use.
type Provider interface {
	// Complete waits for the whole reply.
	//
	// Errors wrap one of [ErrUnauthorized], [ErrRateLimited] or
	// [ErrUnavailable] when the failure is recognised, or a [*StatusError] for
	// any other non-success HTTP status. A context deadline surfaces as
	// [context.DeadlineExceeded].
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	Model() string
}
