// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (a whisper.cpp server
// or an OpenAI-compatible audio API such as Groq's) and turns one recorded
// clip into text. Providers that support it can also translate the speech
// into English in the same call.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/raaee/pkg/types"
)

// ErrNoSpeech is returned when the provider produced an empty transcript.
// Callers treat it as "speech not recognised" rather than a service failure.
var ErrNoSpeech = errors.New("stt: no speech recognised")

// Request describes one clip to transcribe.
type Request struct {
	// Audio is the encoded clip as uploaded by the client.
	Audio []byte

	// MediaType is the MIME type of Audio, e.g. "audio/webm".
	MediaType string

	// Filename is forwarded to multipart backends. Some servers infer the
	// container format from its extension.
	Filename string

	// Language is the ISO-639-1 code of the spoken language (e.g. "ur").
	// Empty lets the backend auto-detect.
	Language string

	// Translate asks for an English translation instead of a same-language
	// transcript.
	Translate bool
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe converts req.Audio to text. It returns [ErrNoSpeech] (wrapped)
	// when the backend answered but recognised nothing.
	Transcribe(ctx context.Context, req Request) (types.Transcript, error)
}
