package voicechat

import "github.com/MrWong99/raaee/pkg/api"

// Phase is the recording state of the machine.
type Phase int

const (
	// Idle means no capture session is active.
	Idle Phase = iota

	// Starting means microphone access has been requested and is pending.
	Starting

	// Capturing means fragments are being collected.
	Capturing
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Capturing:
		return "capturing"
	}
	return "unknown"
}

// State is a snapshot of everything the presentation depends on.
type State struct {
	Phase         Phase
	Transcription string
	Reply         string

	// Loading is true while at least one upload is in flight.
	Loading bool

	HelpVisible bool

	// Speaking is true while the current reply is being synthesised or played.
	Speaking bool

	// Alert is the last user-facing alert. The next toggle clears it.
	Alert string
}

// Recording reports whether a capture session is active or being started.
func (s State) Recording() bool {
	return s.Phase != Idle
}

// Event is something that happened to the client. The set of events is
// closed; see the types below.
type Event interface {
	event()
}

// Toggle is the user pressing the record button.
type Toggle struct{}

// ToggleHelp is the user opening or closing the help overlay.
type ToggleHelp struct{}

// PermissionResult carries the outcome of [Microphone.Open].
type PermissionResult struct {
	Session uint64
	Capture Capture
	Err     error
}

// Fragment is one chunk of captured audio.
type Fragment struct {
	Session uint64
	Data    []byte
}

// CaptureStopped reports that a capture has delivered its last fragment.
type CaptureStopped struct {
	Session uint64
}

// UploadResult carries the backend's answer to one recording.
type UploadResult struct {
	Session  uint64
	Response api.ProcessResponse
	Err      error
}

// SynthesisResult reports the end of speaking one reply.
type SynthesisResult struct {
	Generation uint64
	Err        error
}

func (Toggle) event()           {}
func (ToggleHelp) event()       {}
func (PermissionResult) event() {}
func (Fragment) event()         {}
func (CaptureStopped) event()   {}
func (UploadResult) event()     {}
func (SynthesisResult) event()  {}
