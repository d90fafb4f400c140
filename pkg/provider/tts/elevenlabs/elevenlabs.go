// Package elevenlabs provides an ElevenLabs-backed TTS provider. Batch
// synthesis uses the REST text-to-speech endpoint; streaming synthesis uses
// the stream-input WebSocket API. It implements the tts.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/raaee/pkg/provider/tts"
	"github.com/MrWong99/raaee/pkg/types"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultWSBaseURL = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "mp3_44100_128"

	// ElevenLabs service defaults, used when a voice carries no settings.
	defaultStability       = 0.5
	defaultSimilarityBoost = 0.75
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the default ElevenLabs model ID. A voice profile with a
// Model set overrides it.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g. "mp3_44100_128",
// "pcm_16000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the REST API origin.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithWSBaseURL overrides the WebSocket API origin.
func WithWSBaseURL(u string) Option {
	return func(p *Provider) {
		p.wsBaseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the HTTP timeout for REST calls.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements tts.Provider backed by ElevenLabs.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	baseURL      string
	wsBaseURL    string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
		wsBaseURL:    defaultWSBaseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- REST synthesis ----

// synthesisRequest is the JSON body of POST /v1/text-to-speech/{voice}.
type synthesisRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}

	body, err := json.Marshal(synthesisRequest{
		Text:          text,
		ModelID:       p.modelFor(voice),
		VoiceSettings: settingsFor(voice),
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.synthesisURL(voice.ID), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", mediaTypeFor(p.outputFormat))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs: synthesize: %w", &tts.StatusError{
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(msg)),
		})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	mt := resp.Header.Get("Content-Type")
	if mt == "" || mt == "application/octet-stream" {
		mt = mediaTypeFor(p.outputFormat)
	}
	return &tts.Audio{Data: data, MediaType: mt}, nil
}

// ---- WebSocket streaming ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// boiMessage is the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// audioResponse is the JSON message received over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// SynthesizeStream implements tts.Provider. It opens a WebSocket to
// ElevenLabs, pipes text fragments from the text channel and emits decoded
// audio chunks. The audio channel closes after the server sends its final
// message, the connection drops or ctx is cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	conn.SetReadLimit(4 << 20)

	boi, _ := json.Marshal(boiMessage{
		Text:          " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: settingsFor(voice),
		XiAPIKey:      p.apiKey,
	})
	if err := conn.Write(ctx, websocket.MessageText, boi); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send BOI")
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	audioCh := make(chan []byte, 256)

	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				_, msg, err := conn.Read(ctx)
				if err != nil {
					return
				}
				var resp audioResponse
				if err := json.Unmarshal(msg, &resp); err != nil {
					continue
				}
				if resp.Audio != "" {
					chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
					if err == nil {
						select {
						case audioCh <- chunk:
						case <-ctx.Done():
							return
						}
					}
				}
				if resp.IsFinal {
					return
				}
			}
		}()

		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					flush, _ := buildWSMessage("", nil)
					_ = conn.Write(ctx, websocket.MessageText, flush)
					<-readDone
					return
				}
				if fragment == "" {
					continue
				}
				// ElevenLabs expects each fragment to end with a space.
				if !strings.HasSuffix(fragment, " ") {
					fragment += " "
				}
				msg, _ := buildWSMessage(fragment, nil)
				if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
					return
				}
			case <-readDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", &tts.StatusError{StatusCode: resp.StatusCode})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	profiles, err := parseVoicesResponse(data)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return profiles, nil
}

// ---- helpers ----

func (p *Provider) modelFor(voice types.VoiceProfile) string {
	if voice.Model != "" {
		return voice.Model
	}
	return p.model
}

func (p *Provider) synthesisURL(voiceID string) string {
	q := url.Values{"output_format": {p.outputFormat}}
	return fmt.Sprintf("%s/v1/text-to-speech/%s?%s", p.baseURL, url.PathEscape(voiceID), q.Encode())
}

func (p *Provider) streamURL(voice types.VoiceProfile) string {
	q := url.Values{
		"model_id":      {p.modelFor(voice)},
		"output_format": {p.outputFormat},
	}
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.wsBaseURL, url.PathEscape(voice.ID), q.Encode())
}

// settingsFor returns the voice settings of voice, falling back to the
// service defaults for unset values.
func settingsFor(voice types.VoiceProfile) *voiceSettings {
	vs := &voiceSettings{Stability: defaultStability, SimilarityBoost: defaultSimilarityBoost}
	if voice.Stability > 0 {
		vs.Stability = voice.Stability
	}
	if voice.SimilarityBoost > 0 {
		vs.SimilarityBoost = voice.SimilarityBoost
	}
	return vs
}

// mediaTypeFor maps an ElevenLabs output_format to a MIME type.
func mediaTypeFor(format string) string {
	switch {
	case strings.HasPrefix(format, "mp3_"):
		return "audio/mpeg"
	case strings.HasPrefix(format, "pcm_"):
		return "audio/pcm"
	case strings.HasPrefix(format, "ulaw_"):
		return "audio/basic"
	case strings.HasPrefix(format, "opus_"):
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// buildWSMessage constructs the JSON text payload for a single text fragment.
func buildWSMessage(text string, vs *voiceSettings) ([]byte, error) {
	return json.Marshal(textMessage{Text: text, VoiceSettings: vs})
}

// parseVoicesResponse parses a /v1/voices body into voice profiles.
func parseVoicesResponse(data []byte) ([]types.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	profiles := make([]types.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, types.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles, nil
}
