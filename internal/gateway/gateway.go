// Package gateway is the HTTP surface of the Raa'ee backend: the audio upload
// endpoint, the speech proxy, the exchange journal, health, metrics and the
// optional MCP endpoint.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/MrWong99/raaee/internal/health"
	"github.com/MrWong99/raaee/internal/observe"
	"github.com/MrWong99/raaee/internal/pipeline"
	"github.com/MrWong99/raaee/pkg/api"
	"github.com/MrWong99/raaee/pkg/memory"
	"github.com/MrWong99/raaee/pkg/provider/tts"
	"github.com/MrWong99/raaee/pkg/types"
)

// StatusMessage is the greeting returned by GET /.
const StatusMessage = "🌾 Pakistani Farming Chatbot Backend"

// DefaultMaxUploadBytes caps /process_audio bodies when no limit is set.
const DefaultMaxUploadBytes = 25 << 20

// maxSpeechBody caps JSON bodies of the speech routes.
const maxSpeechBody = 64 << 10

// Processor answers one uploaded clip.
type Processor interface {
	Process(ctx context.Context, clip types.Clip) (pipeline.Result, error)
}

// Speaker is the speech proxy.
type Speaker interface {
	Synthesize(ctx context.Context, text string) (*tts.Audio, error)
	Stream(ctx context.Context, text string) (<-chan []byte, error)
	Voices(ctx context.Context) ([]types.VoiceProfile, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithCORSOrigins sets the allowed browser origins. Empty allows all.
func WithCORSOrigins(origins []string) Option { return func(s *Server) { s.origins = origins } }

// WithMaxUploadBytes caps the /process_audio request body.
func WithMaxUploadBytes(n int64) Option { return func(s *Server) { s.maxUpload = n } }

// WithRateLimit limits upload and speech requests per client IP. A
// non-positive requests value disables the limit.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(s *Server) { s.rateRequests, s.rateWindow = requests, window }
}

// WithMetrics enables the observe middleware.
func WithMetrics(m *observe.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option { return func(s *Server) { s.health = h } }

// WithJournal mounts GET /exchanges.
func WithJournal(j memory.ExchangeLog) Option { return func(s *Server) { s.journal = j } }

// WithMetricsHandler mounts a scrape handler on /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metricsHandler = h } }

// WithMCP mounts an MCP handler on path.
func WithMCP(path string, h http.Handler) Option {
	return func(s *Server) { s.mcpPath, s.mcp = path, h }
}

// Server routes requests. It implements [http.Handler].
type Server struct {
	proc    Processor
	speaker Speaker

	origins        []string
	maxUpload      int64
	rateRequests   int
	rateWindow     time.Duration
	metrics        *observe.Metrics
	health         *health.Handler
	journal        memory.ExchangeLog
	metricsHandler http.Handler
	mcpPath        string
	mcp            http.Handler

	router chi.Router
}

// New builds the router. proc is required; speaker may be nil, in which case
// the speech routes are not mounted.
func New(proc Processor, speaker Speaker, opts ...Option) *Server {
	s := &Server{
		proc:      proc,
		speaker:   speaker,
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, o := range opts {
		o(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
	}

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{observe.CorrelationHeader},
		MaxAge:         300,
	}))

	r.Get("/", s.handleStatus)

	r.Group(func(r chi.Router) {
		if s.rateRequests > 0 {
			r.Use(httprate.LimitByIP(s.rateRequests, s.rateWindow))
		}
		r.Post("/process_audio", s.handleProcessAudio)
		if s.speaker != nil {
			r.Post("/speech", s.handleSpeech)
			r.Post("/speech/stream", s.handleSpeechStream)
		}
	})
	if s.speaker != nil {
		r.Get("/speech/voices", s.handleVoices)
	}
	if s.journal != nil {
		r.Get("/exchanges", s.handleExchanges)
		r.Get("/exchanges/{id}", s.handleExchange)
	}
	if s.health != nil {
		s.health.Register(r)
	}
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}
	if s.mcp != nil && s.mcpPath != "" {
		r.Handle(s.mcpPath, s.mcp)
		r.Handle(s.mcpPath+"/*", s.mcp)
	}
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	endpoints := map[string]string{
		"process_audio": "POST /process_audio - Process WebM/WAV audio files",
	}
	if s.speaker != nil {
		endpoints["speech"] = "POST /speech - Synthesize reply text"
		endpoints["speech_stream"] = "POST /speech/stream - Stream synthesized reply audio"
		endpoints["speech_voices"] = "GET /speech/voices - List available voices"
	}
	if s.journal != nil {
		endpoints["exchanges"] = "GET /exchanges?limit=n - Recent answered questions"
	}
	if s.mcp != nil && s.mcpPath != "" {
		endpoints["mcp"] = s.mcpPath + " - Model Context Protocol tools"
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{
		Message:   StatusMessage,
		Status:    api.StatusRunning,
		Endpoints: endpoints,
	})
}
