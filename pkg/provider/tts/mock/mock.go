// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeAudio:  &tts.Audio{Data: []byte("mp3"), MediaType: "audio/mpeg"},
//	    ListVoicesResult: []types.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/raaee/pkg/provider/tts"
	"github.com/MrWong99/raaee/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice types.VoiceProfile
}

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
// Fragments holds the text received before the input channel closed.
type SynthesizeStreamCall struct {
	Voice     types.VoiceProfile
	Fragments []string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeAudio is returned by Synthesize. Nil yields an empty clip.
	SynthesizeAudio *tts.Audio

	// SynthesizeErr, if non-nil, is returned by Synthesize.
	SynthesizeErr error

	// StreamChunks are emitted by SynthesizeStream after the text channel closes.
	StreamChunks [][]byte

	// StreamErr, if non-nil, is returned by SynthesizeStream.
	StreamErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []types.VoiceProfile

	// ListVoicesErr, if non-nil, is returned by ListVoices.
	ListVoicesErr error

	SynthesizeCalls       []SynthesizeCall
	SynthesizeStreamCalls []SynthesizeStreamCall
	ListVoicesCalls       int
}

// Synthesize records the call and returns SynthesizeAudio, SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Audio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	if p.SynthesizeAudio == nil {
		return &tts.Audio{MediaType: "audio/mpeg"}, nil
	}
	cp := *p.SynthesizeAudio
	return &cp, nil
}

// SynthesizeStream drains text, records the fragments and emits StreamChunks.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	idx := len(p.SynthesizeStreamCalls)
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Voice: voice})
	p.mu.Unlock()

	out := make(chan []byte, len(chunks))
	go func() {
		defer close(out)
		for {
			select {
			case frag, ok := <-text:
				if !ok {
					for _, c := range chunks {
						select {
						case out <- c:
						case <-ctx.Done():
							return
						}
					}
					return
				}
				p.mu.Lock()
				p.SynthesizeStreamCalls[idx].Fragments = append(p.SynthesizeStreamCalls[idx].Fragments, frag)
				p.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns a copy of the recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}
