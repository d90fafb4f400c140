// Package config provides the configuration schema, loader, and provider
// registry shared by the Raa'ee server and the terminal client.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Speech    SpeechConfig    `yaml:"speech"`
	Advisor   AdvisorConfig   `yaml:"advisor"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Storage   StorageConfig   `yaml:"storage"`
	Archive   ArchiveConfig   `yaml:"archive"`
	MCP       MCPConfig       `yaml:"mcp"`
	Client    ClientConfig    `yaml:"client"`
}

// ServerConfig holds network and logging settings for the backend.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists the origins allowed to call the API from a browser.
	CORSOrigins []string `yaml:"cors_origins"`

	// MaxUploadBytes caps the size of one /process_audio body.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// RateLimit throttles upload and speech routes per client IP.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// Environment is reported with every metric and trace, e.g. "staging".
	Environment string `yaml:"environment"`

	// TraceSampleRatio is the share of new traces recorded. Zero records all.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// RateLimitConfig configures per-IP request limits. Requests == 0 disables
// limiting.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM        ProviderEntry `yaml:"llm"`
	STT        ProviderEntry `yaml:"stt"`
	TTS        ProviderEntry `yaml:"tts"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "groq", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Use ${VAR} to read it from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// SpeechConfig is the server-held voice configuration used by the speech
// proxy. Clients never see the TTS credential.
type SpeechConfig struct {
	VoiceID         string  `yaml:"voice_id"`
	Model           string  `yaml:"model"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`

	// MaxChars rejects longer texts before they reach the provider.
	MaxChars int `yaml:"max_chars"`
}

// AdvisorConfig tunes the reply generation.
type AdvisorConfig struct {
	// Language is the spoken language of questions and replies (ISO-639-1).
	Language    string        `yaml:"language"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`

	// SystemPrompt replaces the built-in Urdu persona when non-empty.
	SystemPrompt string `yaml:"system_prompt"`
}

// KnowledgeConfig points at the crop knowledge base.
type KnowledgeConfig struct {
	// Path is the JSON file mapping crop names to their details.
	Path string `yaml:"path"`

	// ReloadInterval is the polling period for hot reload. Zero disables it.
	ReloadInterval time.Duration `yaml:"reload_interval"`

	// PhoneticThreshold and FuzzyThreshold tune the spelling-tolerant match.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
	FuzzyThreshold    float64 `yaml:"fuzzy_threshold"`

	// SemanticMaxDistance is the largest cosine distance accepted from the
	// vector index. Zero disables the semantic fallback.
	SemanticMaxDistance float64 `yaml:"semantic_max_distance"`
}

// StorageConfig holds PostgreSQL settings for the exchange journal and the
// crop vector index.
type StorageConfig struct {
	// PostgresDSN is the connection string. Empty keeps the journal in memory
	// and disables the vector index.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions must match providers.embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// ArchiveConfig configures the S3-compatible bucket uploaded clips are kept
// in. Empty Endpoint disables archiving.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// MCPConfig controls the Model Context Protocol endpoint.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ClientConfig configures the terminal voice-chat client.
type ClientConfig struct {
	// Endpoint is the /process_audio URL.
	Endpoint string `yaml:"endpoint"`

	// SpeechEndpoint is the /speech URL of the speech proxy.
	SpeechEndpoint string `yaml:"speech_endpoint"`

	UploadTimeout time.Duration `yaml:"upload_timeout"`
	SpeechTimeout time.Duration `yaml:"speech_timeout"`

	Microphone MicrophoneConfig `yaml:"microphone"`
	Playback   PlaybackConfig   `yaml:"playback"`
}

// MicrophoneConfig describes the capture source. The terminal client reads
// an encoded recording from Source and delivers it in fragments, the way a
// browser recorder would.
type MicrophoneConfig struct {
	Source           string        `yaml:"source"`
	MediaType        string        `yaml:"media_type"`
	FragmentBytes    int           `yaml:"fragment_bytes"`
	FragmentInterval time.Duration `yaml:"fragment_interval"`
}

// PlaybackConfig describes how replies are played.
type PlaybackConfig struct {
	// OutputDir receives one WAV file per reply.
	OutputDir string `yaml:"output_dir"`

	// SampleRate and Channels convert decoded MP3 replies before they are
	// written. Zero keeps the decoder's format; Channels may be 1 or 2.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// Command, when set, is run with the written file path as its last
	// argument (e.g. "aplay" or "afplay").
	Command []string `yaml:"command"`
}
