// Package voicechat implements the voice-chat client as an event-driven state
// machine.
//
// A [Machine] owns the client state on a single goroutine started by
// [Machine.Run]. External happenings (the user pressing the record button,
// the microphone granting access, audio fragments, upload and synthesis
// results) are posted as [Event] values through [Machine.Dispatch] and each
// event kind has exactly one handler. Blocking work (opening the microphone,
// uploading a recording, synthesising and playing a reply) runs on worker
// goroutines that post their outcome back as result events, so every state
// mutation happens on the event loop.
//
// Speech uses a cancel-superseded policy: a newer reply, a new capture session
// or the end of Run cancels the in-flight synthesis and playback, and results
// from a superseded generation are ignored.
package voicechat

import (
	"context"
	"errors"

	"github.com/MrWong99/raaee/pkg/api"
	"github.com/MrWong99/raaee/pkg/types"
)

// Error taxonomy. Every error is terminal for the operation that raised it.
// Collaborators wrap them with %w so callers can match using errors.Is.
var (
	// ErrPermissionDenied is returned by a [Microphone] that may not capture.
	ErrPermissionDenied = errors.New("voicechat: microphone permission denied")

	// ErrUploadFailed marks a failed /process_audio round trip.
	ErrUploadFailed = errors.New("voicechat: upload failed")

	// ErrSpeechSynthesisFailed marks a failed synthesis or playback.
	ErrSpeechSynthesisFailed = errors.New("voicechat: speech synthesis failed")
)

// Fixed user-facing texts.
const (
	// PermissionDeniedAlert is shown when the microphone cannot be opened.
	PermissionDeniedAlert = "Microphone access denied."

	// UploadErrorReply replaces the reply when an upload fails.
	UploadErrorReply = "⚠️ Server error while processing audio."
)

// Microphone opens capture sessions.
type Microphone interface {
	// Open requests access and starts capturing. A refusal is reported as an
	// error wrapping [ErrPermissionDenied]. ctx is cancelled when the session
	// is abandoned.
	Open(ctx context.Context) (Capture, error)
}

// Capture is one running capture session.
type Capture interface {
	// Fragments delivers encoded audio in arrival order. The channel is
	// closed once capturing has fully stopped.
	Fragments() <-chan []byte

	// Stop asks the capture to finish. It must not block; completion is
	// signalled by closing the Fragments channel.
	Stop()

	// MediaType is the MIME type of the fragments, e.g. "audio/webm".
	MediaType() string
}

// Uploader sends a recording to the backend and returns its answer.
type Uploader interface {
	Upload(ctx context.Context, clip types.Clip) (api.ProcessResponse, error)
}

// Synthesizer turns reply text into playable audio through the speech proxy.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player plays synthesised audio. Play returns when playback has finished or
// ctx is cancelled.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// Alerter surfaces a blocking message to the user.
type Alerter interface {
	Alert(msg string)
}

// AlerterFunc adapts a function to [Alerter].
type AlerterFunc func(msg string)

// Alert calls f(msg).
func (f AlerterFunc) Alert(msg string) { f(msg) }
