// Package openai provides an STT provider for OpenAI-compatible audio APIs.
// Groq's hosted Whisper models are the default deployment target.
//
// Plain transcription uses the /audio/transcriptions endpoint; requests with
// Translate set use /audio/translations, which always produces English.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/raaee/pkg/provider/stt"
	"github.com/MrWong99/raaee/pkg/types"
)

// GroqBaseURL is the OpenAI-compatible endpoint of Groq.
const GroqBaseURL = "https://api.groq.com/openai/v1"

const (
	defaultFilename  = "audio.webm"
	defaultMediaType = "audio/webm"
)

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the openai-go audio endpoints.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

type config struct {
	baseURL    string
	language   string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the default language used when a request carries none.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a Provider. model is e.g. "whisper-large-v3" on Groq or
// "whisper-1" on OpenAI.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		return nil, errors.New("openai stt: model must not be empty")
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (types.Transcript, error) {
	if len(req.Audio) == 0 {
		return types.Transcript{}, errors.New("openai stt: empty audio")
	}
	filename := req.Filename
	if filename == "" {
		filename = defaultFilename
	}
	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = defaultMediaType
	}
	file := oai.File(bytes.NewReader(req.Audio), filename, mediaType)

	if req.Translate {
		resp, err := p.client.Audio.Translations.New(ctx, oai.AudioTranslationNewParams{
			File:  file,
			Model: oai.AudioModel(p.model),
		})
		if err != nil {
			return types.Transcript{}, fmt.Errorf("openai stt: translate: %w", err)
		}
		return result(resp.Text, "en")
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	params := oai.AudioTranscriptionNewParams{
		File:  file,
		Model: oai.AudioModel(p.model),
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return result(resp.Text, lang)
}

func result(text, lang string) (types.Transcript, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Transcript{}, fmt.Errorf("openai stt: %w", stt.ErrNoSpeech)
	}
	return types.Transcript{Text: text, Language: lang}, nil
}
