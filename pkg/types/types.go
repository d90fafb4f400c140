// Package types defines the shared types used across Raa'ee packages.
//
// Providers, the processing pipeline and the journal exchange these values.
// Each package keeps its own domain types; cross-cutting data structures live
// here to avoid circular imports.
package types

import "time"

// Clip is one recorded utterance as uploaded by a client.
type Clip struct {
	// Data is the encoded audio (typically WebM/Opus from a browser or the
	// terminal client, WAV from test fixtures).
	Data []byte

	// MediaType is the MIME type of Data, e.g. "audio/webm".
	MediaType string

	// Filename is the name the client gave the upload part.
	Filename string
}

// Transcript represents a speech-to-text result from an STT provider.
type Transcript struct {
	// Text is the transcribed (or translated) speech content.
	Text string

	// Language is the language of Text as reported or requested.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Duration is the length of the utterance when the provider reports it.
	Duration time.Duration
}

// Exchange is one completed question/answer round recorded by the backend.
type Exchange struct {
	// ID is a random UUID assigned when the exchange is recorded.
	ID string

	// Transcription is the Urdu transcript of the question.
	Transcription string

	// Translation is the English translation used for the knowledge lookup.
	Translation string

	// Reply is the Urdu answer returned to the client.
	Reply string

	// Crop is the knowledge-base entry the reply was grounded on, or empty.
	Crop string

	// AudioKey is the archive object key of the uploaded clip, or empty when
	// archiving is disabled.
	AudioKey string

	// AudioBytes is the size of the uploaded clip.
	AudioBytes int

	// AudioDuration is the measured clip length, zero when unknown.
	AudioDuration time.Duration

	// CreatedAt is when the exchange finished.
	CreatedAt time.Time
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// VoiceProfile describes a TTS voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Model is the synthesis model, e.g. "eleven_multilingual_v2".
	Model string

	// Stability and SimilarityBoost are the ElevenLabs voice settings (0.0–1.0).
	Stability       float64
	SimilarityBoost float64

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}
