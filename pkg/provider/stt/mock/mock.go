// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    Transcript:  types.Transcript{Text: "گندم"},
//	    Translation: types.Transcript{Text: "wheat"},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/raaee/pkg/provider/stt"
	"github.com/MrWong99/raaee/pkg/types"
)

var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Ctx context.Context
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcript is returned for requests with Translate == false.
	Transcript types.Transcript

	// Translation is returned for requests with Translate == true.
	Translation types.Transcript

	// TranscribeErr, if non-nil, is returned for plain transcription requests.
	TranscribeErr error

	// TranslateErr, if non-nil, is returned for translation requests.
	TranslateErr error

	// TranscribeFunc, if set, overrides all of the above.
	TranscribeFunc func(ctx context.Context, req stt.Request) (types.Transcript, error)

	// TranscribeCalls records every call in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (types.Transcript, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: req})
	fn := p.TranscribeFunc
	tr, trErr := p.Transcript, p.TranscribeErr
	tl, tlErr := p.Translation, p.TranslateErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if req.Translate {
		return tl, tlErr
	}
	return tr, trErr
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}
