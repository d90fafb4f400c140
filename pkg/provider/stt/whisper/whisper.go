// Package whisper provides an STT provider for a running whisper.cpp server.
//
// The server exposes POST /inference which accepts a multipart upload with a
// "file" field plus optional "language", "translate" and "response_format"
// fields. The server must be started with --convert so it accepts WebM/Opus
// uploads as produced by browsers.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8081", whisper.WithLanguage("ur"))
//	tr, err := p.Transcribe(ctx, stt.Request{Audio: clip, Filename: "recording.webm"})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/raaee/pkg/provider/stt"
	"github.com/MrWong99/raaee/pkg/types"
)

const defaultFilename = "audio.webm"

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server. When empty the
// server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language code used when a request carries
// none.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the default HTTP client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider for the server at serverURL
// (e.g. "http://localhost:8081"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (types.Transcript, error) {
	if len(req.Audio) == 0 {
		return types.Transcript{}, errors.New("whisper: empty audio")
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	body, contentType, err := p.buildForm(req, lang)
	if err != nil {
		return types.Transcript{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return types.Transcript{}, fmt.Errorf("whisper: %w", stt.ErrNoSpeech)
	}
	out := types.Transcript{Text: text, Language: lang}
	if req.Translate {
		out.Language = "en"
	}
	return out, nil
}

// buildForm encodes the multipart body for /inference.
func (p *Provider) buildForm(req stt.Request, lang string) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	filename := req.Filename
	if filename == "" {
		filename = defaultFilename
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(req.Audio); err != nil {
		return nil, "", fmt.Errorf("whisper: write audio data: %w", err)
	}

	fields := map[string]string{"response_format": "json"}
	if lang != "" {
		fields["language"] = lang
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	if req.Translate {
		fields["translate"] = "true"
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}
