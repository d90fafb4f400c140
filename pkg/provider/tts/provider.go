// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns reply text into encoded audio. Batch synthesis returns
// one complete clip; streaming synthesis consumes text fragments from a
// channel and emits audio chunks as the backend produces them.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/raaee/pkg/types"
)

// ErrEmptyText is returned when synthesis is requested for blank text.
var ErrEmptyText = errors.New("tts: empty text")

// StatusError is a non-success HTTP status returned by a TTS backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tts: upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("tts: upstream status %d: %s", e.StatusCode, e.Body)
}

// Audio is one synthesized clip.
type Audio struct {
	// Data is the encoded audio.
	Data []byte

	// MediaType is the MIME type of Data, e.g. "audio/mpeg".
	MediaType string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice and returns the complete clip.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*Audio, error)

	// SynthesizeStream reads text fragments until the text channel closes and
	// returns a channel of encoded audio chunks. The audio channel is closed
	// when synthesis finishes or ctx is cancelled. Callers must drain it.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the voices available to the configured account.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
