// Package api holds the HTTP wire contract shared by the Raa'ee backend and
// its clients.
package api

// Upload form constants for POST /process_audio.
const (
	// AudioField is the multipart field carrying the recording.
	AudioField = "audio"

	// DefaultFilename is the filename clients attach to the recording part.
	DefaultFilename = "recording.webm"

	// DefaultMediaType is the media type of browser and terminal recordings.
	DefaultMediaType = "audio/webm"
)

// Status values reported in JSON bodies.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
)

// ProcessResponse is the success body of POST /process_audio.
type ProcessResponse struct {
	ID            string `json:"id,omitempty"`
	Transcription string `json:"transcription"`
	Response      string `json:"response"`
	Status        string `json:"status"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SpeechRequest is the body of POST /speech and POST /speech/stream.
// Voice, model and settings are fixed server-side.
type SpeechRequest struct {
	Text string `json:"text"`
}

// StatusResponse is the body of GET /.
type StatusResponse struct {
	Message   string            `json:"message"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
}

// Voice is one entry of GET /speech/voices.
type Voice struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Provider string            `json:"provider"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ExchangeRecord is one entry of GET /exchanges.
type ExchangeRecord struct {
	ID              string `json:"id"`
	Transcription   string `json:"transcription"`
	Translation     string `json:"translation"`
	Response        string `json:"response"`
	Crop            string `json:"crop,omitempty"`
	AudioKey        string `json:"audio_key,omitempty"`
	AudioBytes      int    `json:"audio_bytes"`
	AudioDurationMS int64  `json:"audio_duration_ms,omitempty"`
	CreatedAt       string `json:"created_at"`
}
