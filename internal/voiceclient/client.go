// Package voiceclient talks to the Raa'ee backend on behalf of the terminal
// voice-chat client: it uploads recordings to /process_audio and fetches
// synthesised replies from the /speech proxy.
//
// Usage:
//
//	c, err := voiceclient.New(cfg.Client)
//	res, err := c.Upload(ctx, clip)
//	mp3, err := c.Synthesize(ctx, res.Response)
package voiceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/MrWong99/raaee/internal/config"
	"github.com/MrWong99/raaee/internal/voicechat"
	"github.com/MrWong99/raaee/pkg/api"
	"github.com/MrWong99/raaee/pkg/types"
)

// maxAudioBytes bounds a synthesised reply read into memory.
const maxAudioBytes = 32 << 20

var (
	_ voicechat.Uploader    = (*Client)(nil)
	_ voicechat.Synthesizer = (*Client)(nil)
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Per-call timeouts still
// come from the configuration.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client is safe for concurrent use.
type Client struct {
	endpoint       string
	speechEndpoint string
	uploadTimeout  time.Duration
	speechTimeout  time.Duration
	httpClient     *http.Client
}

// New creates a Client from the client configuration. Both endpoints must be
// set; zero timeouts fall back to the configuration defaults.
func New(cfg config.ClientConfig, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("voiceclient: endpoint must not be empty")
	}
	if cfg.SpeechEndpoint == "" {
		return nil, errors.New("voiceclient: speech endpoint must not be empty")
	}
	c := &Client{
		endpoint:       cfg.Endpoint,
		speechEndpoint: cfg.SpeechEndpoint,
		uploadTimeout:  cfg.UploadTimeout,
		speechTimeout:  cfg.SpeechTimeout,
		httpClient:     &http.Client{},
	}
	if c.uploadTimeout <= 0 {
		c.uploadTimeout = config.DefaultUploadTimeout
	}
	if c.speechTimeout <= 0 {
		c.speechTimeout = config.DefaultSpeechTimeout
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Upload posts clip as the "audio" part of a multipart form and returns the
// backend's answer. Every failure wraps [voicechat.ErrUploadFailed].
func (c *Client) Upload(ctx context.Context, clip types.Clip) (api.ProcessResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	body, contentType, err := buildForm(clip)
	if err != nil {
		return api.ProcessResponse{}, fmt.Errorf("%w: %w", voicechat.ErrUploadFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return api.ProcessResponse{}, fmt.Errorf("%w: create request: %w", voicechat.ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return api.ProcessResponse{}, fmt.Errorf("%w: %w", voicechat.ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return api.ProcessResponse{}, fmt.Errorf("%w: %w", voicechat.ErrUploadFailed, statusError(resp))
	}
	var out api.ProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return api.ProcessResponse{}, fmt.Errorf("%w: decode response: %w", voicechat.ErrUploadFailed, err)
	}
	return out, nil
}

// Synthesize asks the speech proxy for the audio of text. Every failure wraps
// [voicechat.ErrSpeechSynthesisFailed]; a cancelled ctx is returned as is.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.speechTimeout)
	defer cancel()

	payload, err := json.Marshal(api.SpeechRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", voicechat.ErrSpeechSynthesisFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.speechEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", voicechat.ErrSpeechSynthesisFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", voicechat.ErrSpeechSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %w", voicechat.ErrSpeechSynthesisFailed, statusError(resp))
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read audio: %w", voicechat.ErrSpeechSynthesisFailed, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", voicechat.ErrSpeechSynthesisFailed)
	}
	return audio, nil
}

// buildForm encodes the single-part upload body.
func buildForm(clip types.Clip) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	filename := clip.Filename
	if filename == "" {
		filename = api.DefaultFilename
	}
	mediaType := clip.MediaType
	if mediaType == "" {
		mediaType = api.DefaultMediaType
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", multipart.FileContentDisposition(api.AudioField, filename))
	h.Set("Content-Type", mediaType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

// statusError describes a non-200 reply, preferring the backend's JSON error.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e api.ErrorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		if e.Details != "" {
			return fmt.Errorf("HTTP %d: %s (%s)", resp.StatusCode, e.Error, e.Details)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
}
