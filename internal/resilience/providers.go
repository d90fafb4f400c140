package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/raaee/pkg/provider/llm"
	"github.com/MrWong99/raaee/pkg/provider/stt"
	"github.com/MrWong99/raaee/pkg/provider/tts"
	"github.com/MrWong99/raaee/pkg/types"
)

var (
	_ llm.Provider = (*LLMFallback)(nil)
	_ stt.Provider = (*STTFallback)(nil)
	_ tts.Provider = (*TTSFallback)(nil)
)

// fallback carries the group shared by the typed wrappers below.
type fallback[T any] struct {
	group *Group[T]
}

// AddFallback registers another backend after those already added.
func (f fallback[T]) AddFallback(name string, p T) { f.group.Add(name, p) }

// Breakers reports the breaker state of every backend by name.
func (f fallback[T]) Breakers() map[string]State { return f.group.States() }

// except narrows the configured classifier so that errors matching target
// are answers rather than outages.
func except(cfg BreakerConfig, target error) BreakerConfig {
	base := cfg.withDefaults().IsFailure
	cfg.IsFailure = func(err error) bool {
		return base(err) && !errors.Is(err, target)
	}
	return cfg
}

// LLMFallback is an [llm.Provider] that fails over between chat backends.
type LLMFallback struct{ fallback[llm.Provider] }

// NewLLMFallback wraps primary in an [LLMFallback].
func NewLLMFallback(primary llm.Provider, name string, cfg BreakerConfig) *LLMFallback {
	return &LLMFallback{fallback[llm.Provider]{NewGroup(primary, name, cfg)}}
}

func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Model reports the primary's model; it is metadata and does not fail over.
func (f *LLMFallback) Model() string { return f.group.Primary().Model() }

// STTFallback is an [stt.Provider] that fails over between transcription
// backends. A silent clip ([stt.ErrNoSpeech]) is returned as is.
type STTFallback struct{ fallback[stt.Provider] }

// NewSTTFallback wraps primary in an [STTFallback].
func NewSTTFallback(primary stt.Provider, name string, cfg BreakerConfig) *STTFallback {
	return &STTFallback{fallback[stt.Provider]{NewGroup(primary, name, except(cfg, stt.ErrNoSpeech))}}
}

func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (types.Transcript, error) {
	return Do(ctx, f.group, func(p stt.Provider) (types.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}

// TTSFallback is a [tts.Provider] that fails over between voices. Empty
// text ([tts.ErrEmptyText]) is returned as is.
type TTSFallback struct{ fallback[tts.Provider] }

// NewTTSFallback wraps primary in a [TTSFallback].
func NewTTSFallback(primary tts.Provider, name string, cfg BreakerConfig) *TTSFallback {
	return &TTSFallback{fallback[tts.Provider]{NewGroup(primary, name, except(cfg, tts.ErrEmptyText))}}
}

func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Audio, error) {
	return Do(ctx, f.group, func(p tts.Provider) (*tts.Audio, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// SynthesizeStream fails over on stream setup only. Once a backend has
// accepted the text channel it owns it, and later errors surface through
// the closed audio channel.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	return Do(ctx, f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return Do(ctx, f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
