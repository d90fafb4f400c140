package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultListenAddr       = ":5000"
	DefaultMaxUploadBytes   = 25 << 20
	DefaultVoiceID          = "IKne3meq5aSn9XLyUdCD"
	DefaultSpeechModel      = "eleven_multilingual_v2"
	DefaultStability        = 0.4
	DefaultSimilarityBoost  = 0.8
	DefaultSpeechMaxChars   = 2500
	DefaultAdvisorLanguage  = "ur"
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 500
	DefaultAdvisorTimeout   = 30 * time.Second
	DefaultKnowledgePath    = "data.json"
	DefaultPhonetic         = 0.70
	DefaultFuzzy            = 0.85
	DefaultEmbeddingDims    = 1536
	DefaultMCPPath          = "/mcp"
	DefaultClientEndpoint   = "http://localhost:5000/process_audio"
	DefaultSpeechEndpoint   = "http://localhost:5000/speech"
	DefaultUploadTimeout    = 60 * time.Second
	DefaultSpeechTimeout    = 30 * time.Second
	DefaultFragmentBytes    = 16 << 10
	DefaultFragmentInterval = 250 * time.Millisecond
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"groq", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "llamacpp", "llamafile"},
	"stt":        {"groq", "openai", "whisper"},
	"tts":        {"elevenlabs"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references from
// the environment, fills defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied. It is what an
// empty YAML document decodes to.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.MaxUploadBytes == 0 {
		s.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if s.RateLimit.Requests > 0 && s.RateLimit.Window == 0 {
		s.RateLimit.Window = time.Minute
	}

	sp := &cfg.Speech
	if sp.VoiceID == "" {
		sp.VoiceID = DefaultVoiceID
	}
	if sp.Model == "" {
		sp.Model = DefaultSpeechModel
	}
	if sp.Stability == 0 {
		sp.Stability = DefaultStability
	}
	if sp.SimilarityBoost == 0 {
		sp.SimilarityBoost = DefaultSimilarityBoost
	}
	if sp.MaxChars == 0 {
		sp.MaxChars = DefaultSpeechMaxChars
	}

	a := &cfg.Advisor
	if a.Language == "" {
		a.Language = DefaultAdvisorLanguage
	}
	if a.Temperature == 0 {
		a.Temperature = DefaultTemperature
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = DefaultMaxTokens
	}
	if a.Timeout == 0 {
		a.Timeout = DefaultAdvisorTimeout
	}

	k := &cfg.Knowledge
	if k.Path == "" {
		k.Path = DefaultKnowledgePath
	}
	if k.PhoneticThreshold == 0 {
		k.PhoneticThreshold = DefaultPhonetic
	}
	if k.FuzzyThreshold == 0 {
		k.FuzzyThreshold = DefaultFuzzy
	}

	if cfg.Storage.EmbeddingDimensions == 0 {
		cfg.Storage.EmbeddingDimensions = DefaultEmbeddingDims
	}
	if cfg.Archive.Endpoint != "" && cfg.Archive.Bucket == "" {
		cfg.Archive.Bucket = "raaee-recordings"
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}

	c := &cfg.Client
	if c.Endpoint == "" {
		c.Endpoint = DefaultClientEndpoint
	}
	if c.SpeechEndpoint == "" {
		c.SpeechEndpoint = DefaultSpeechEndpoint
	}
	if c.UploadTimeout == 0 {
		c.UploadTimeout = DefaultUploadTimeout
	}
	if c.SpeechTimeout == 0 {
		c.SpeechTimeout = DefaultSpeechTimeout
	}
	if c.Microphone.MediaType == "" {
		c.Microphone.MediaType = "audio/webm"
	}
	if c.Microphone.FragmentBytes == 0 {
		c.Microphone.FragmentBytes = DefaultFragmentBytes
	}
	if c.Microphone.FragmentInterval == 0 {
		c.Microphone.FragmentInterval = DefaultFragmentInterval
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.RateLimit.Requests < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit.requests %d must not be negative", cfg.Server.RateLimit.Requests))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Provider name validation, warn for unknown provider names.
	for kind, entry := range map[string]ProviderEntry{
		"llm":        cfg.Providers.LLM,
		"stt":        cfg.Providers.STT,
		"tts":        cfg.Providers.TTS,
		"embeddings": cfg.Providers.Embeddings,
	} {
		validateProviderName(kind, entry.Name)
		for i, fb := range entry.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
				continue
			}
			validateProviderName(kind, fb.Name)
		}
	}

	// Speech
	if cfg.Speech.Stability < 0 || cfg.Speech.Stability > 1 {
		errs = append(errs, fmt.Errorf("speech.stability %.2f is out of range [0, 1]", cfg.Speech.Stability))
	}
	if cfg.Speech.SimilarityBoost < 0 || cfg.Speech.SimilarityBoost > 1 {
		errs = append(errs, fmt.Errorf("speech.similarity_boost %.2f is out of range [0, 1]", cfg.Speech.SimilarityBoost))
	}
	if cfg.Speech.MaxChars < 0 {
		errs = append(errs, fmt.Errorf("speech.max_chars %d must not be negative", cfg.Speech.MaxChars))
	}

	// Advisor
	if cfg.Advisor.Temperature < 0 || cfg.Advisor.Temperature > 2 {
		errs = append(errs, fmt.Errorf("advisor.temperature %.2f is out of range [0, 2]", cfg.Advisor.Temperature))
	}
	if cfg.Advisor.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("advisor.max_tokens %d must not be negative", cfg.Advisor.MaxTokens))
	}

	// Knowledge
	for name, v := range map[string]float64{
		"knowledge.phonetic_threshold":    cfg.Knowledge.PhoneticThreshold,
		"knowledge.fuzzy_threshold":       cfg.Knowledge.FuzzyThreshold,
		"knowledge.semantic_max_distance": cfg.Knowledge.SemanticMaxDistance,
	} {
		if v < 0 || v > 2 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range", name, v))
		}
	}
	if cfg.Knowledge.PhoneticThreshold > 1 || cfg.Knowledge.FuzzyThreshold > 1 {
		errs = append(errs, errors.New("knowledge thresholds must not exceed 1"))
	}

	// Storage
	if cfg.Storage.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("storage.embedding_dimensions %d must not be negative", cfg.Storage.EmbeddingDimensions))
	}
	if cfg.Knowledge.SemanticMaxDistance > 0 {
		if cfg.Storage.PostgresDSN == "" {
			slog.Warn("knowledge.semantic_max_distance is set but storage.postgres_dsn is empty; semantic lookup disabled")
		}
		if cfg.Providers.Embeddings.Name == "" {
			slog.Warn("knowledge.semantic_max_distance is set but providers.embeddings is not configured; semantic lookup disabled")
		}
	}

	// Archive
	if cfg.Archive.Endpoint != "" {
		if cfg.Archive.AccessKey == "" || cfg.Archive.SecretKey == "" {
			errs = append(errs, errors.New("archive.access_key and archive.secret_key are required when archive.endpoint is set"))
		}
		if strings.Contains(cfg.Archive.Endpoint, "://") {
			errs = append(errs, fmt.Errorf("archive.endpoint %q must be host[:port] without a scheme; use archive.use_ssl", cfg.Archive.Endpoint))
		}
	}

	// MCP
	if cfg.MCP.Enabled && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}

	// Client
	for name, raw := range map[string]string{
		"client.endpoint":        cfg.Client.Endpoint,
		"client.speech_endpoint": cfg.Client.SpeechEndpoint,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s %q must be an absolute http(s) URL", name, raw))
		}
	}
	if cfg.Client.UploadTimeout < 0 || cfg.Client.SpeechTimeout < 0 {
		errs = append(errs, errors.New("client timeouts must not be negative"))
	}
	if pb := cfg.Client.Playback; pb.SampleRate < 0 || pb.Channels < 0 || pb.Channels > 2 {
		errs = append(errs, fmt.Errorf("client.playback: sample_rate %d must not be negative and channels %d must be 0, 1 or 2", pb.SampleRate, pb.Channels))
	}
	if cfg.Client.Microphone.FragmentBytes < 0 {
		errs = append(errs, fmt.Errorf("client.microphone.fragment_bytes %d must not be negative", cfg.Client.Microphone.FragmentBytes))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
