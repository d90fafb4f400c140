// Package speech is the server-side text-to-speech proxy. It holds the
// provider credential and voice configuration so that clients only ever send
// text.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/raaee/internal/config"
	"github.com/MrWong99/raaee/internal/observe"
	"github.com/MrWong99/raaee/pkg/provider/tts"
	"github.com/MrWong99/raaee/pkg/types"
)

var (
	// ErrTextTooLong is returned when the text exceeds the configured limit.
	ErrTextTooLong = errors.New("speech: text too long")

	// ErrUpstream wraps every provider failure.
	ErrUpstream = errors.New("speech: synthesis failed")
)

// Option configures a [Proxy].
type Option func(*Proxy)

// WithMetrics records synthesis latency and request outcomes.
func WithMetrics(m *observe.Metrics) Option { return func(p *Proxy) { p.metrics = m } }

// WithProviderName labels metrics with the provider name.
func WithProviderName(name string) Option { return func(p *Proxy) { p.providerName = name } }

// Proxy synthesizes replies with a fixed voice.
type Proxy struct {
	provider     tts.Provider
	providerName string
	voice        types.VoiceProfile
	maxChars     int
	metrics      *observe.Metrics
}

// New returns a Proxy over provider configured from cfg.
func New(provider tts.Provider, cfg config.SpeechConfig, opts ...Option) (*Proxy, error) {
	if provider == nil {
		return nil, errors.New("speech: provider must not be nil")
	}
	p := &Proxy{
		provider:     provider,
		providerName: "tts",
		voice: types.VoiceProfile{
			ID:              cfg.VoiceID,
			Model:           cfg.Model,
			Stability:       cfg.Stability,
			SimilarityBoost: cfg.SimilarityBoost,
		},
		maxChars: cfg.MaxChars,
	}
	for _, o := range opts {
		o(p)
	}
	p.voice.Provider = p.providerName
	return p, nil
}

// Voice returns the voice every request is rendered with.
func (p *Proxy) Voice() types.VoiceProfile { return p.voice }

// Validate trims text and checks it against the length limit.
func (p *Proxy) Validate(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", tts.ErrEmptyText
	}
	if p.maxChars > 0 {
		if n := utf8.RuneCountInString(text); n > p.maxChars {
			return "", fmt.Errorf("%w: %d characters, limit %d", ErrTextTooLong, n, p.maxChars)
		}
	}
	return text, nil
}

// Synthesize renders text as one clip.
func (p *Proxy) Synthesize(ctx context.Context, text string) (*tts.Audio, error) {
	text, err := p.Validate(text)
	if err != nil {
		p.recordRequest(ctx, "batch", "rejected")
		return nil, err
	}

	ctx, span := observe.StartSpan(ctx, "speech.synthesize")
	defer span.End()

	start := time.Now()
	audio, err := p.provider.Synthesize(ctx, text, p.voice)
	p.recordLatency(ctx, "batch", start)
	if err != nil {
		span.RecordError(err)
		p.recordFailure(ctx, "batch")
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	p.recordRequest(ctx, "batch", "ok")
	return audio, nil
}

// Stream renders text through the provider's streaming interface. The
// returned channel is closed when synthesis ends or ctx is cancelled.
func (p *Proxy) Stream(ctx context.Context, text string) (<-chan []byte, error) {
	text, err := p.Validate(text)
	if err != nil {
		p.recordRequest(ctx, "stream", "rejected")
		return nil, err
	}

	in := make(chan string, 1)
	in <- text
	close(in)

	start := time.Now()
	chunks, err := p.provider.SynthesizeStream(ctx, in, p.voice)
	if err != nil {
		p.recordFailure(ctx, "stream")
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer p.recordLatency(context.WithoutCancel(ctx), "stream", start)
		for c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				// Drain so the provider goroutine can exit.
				for range chunks {
				}
				p.recordRequest(context.WithoutCancel(ctx), "stream", "cancelled")
				return
			}
		}
		p.recordRequest(context.WithoutCancel(ctx), "stream", "ok")
	}()
	return out, nil
}

// Voices lists the provider's voices.
func (p *Proxy) Voices(ctx context.Context) ([]types.VoiceProfile, error) {
	voices, err := p.provider.ListVoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return voices, nil
}

func (p *Proxy) recordLatency(ctx context.Context, mode string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("mode", mode)))
}

func (p *Proxy) recordFailure(ctx context.Context, mode string) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordProviderError(ctx, p.providerName, "tts")
	p.metrics.RecordSpeechRequest(ctx, mode, "error")
}

func (p *Proxy) recordRequest(ctx context.Context, mode, status string) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordSpeechRequest(ctx, mode, status)
}
