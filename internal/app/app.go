// Package app wires all Raa'ee backend subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithJournal,
// WithCropIndex, WithArchive, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/raaee/internal/advisor"
	"github.com/MrWong99/raaee/internal/archive"
	"github.com/MrWong99/raaee/internal/config"
	"github.com/MrWong99/raaee/internal/gateway"
	"github.com/MrWong99/raaee/internal/health"
	"github.com/MrWong99/raaee/internal/knowledge"
	"github.com/MrWong99/raaee/internal/knowledge/phonetic"
	"github.com/MrWong99/raaee/internal/knowledge/semantic"
	"github.com/MrWong99/raaee/internal/mcp"
	"github.com/MrWong99/raaee/internal/observe"
	"github.com/MrWong99/raaee/internal/pipeline"
	"github.com/MrWong99/raaee/internal/resilience"
	"github.com/MrWong99/raaee/internal/speech"
	"github.com/MrWong99/raaee/pkg/memory"
	"github.com/MrWong99/raaee/pkg/memory/inmem"
	"github.com/MrWong99/raaee/pkg/memory/postgres"
	"github.com/MrWong99/raaee/pkg/provider/embeddings"
	"github.com/MrWong99/raaee/pkg/provider/llm"
	"github.com/MrWong99/raaee/pkg/provider/stt"
	"github.com/MrWong99/raaee/pkg/provider/tts"
)

const (
	readHeaderTimeout = 10 * time.Second
	drainTimeout      = 10 * time.Second
	resyncTimeout     = time.Minute
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics  *observe.Metrics
	journal  memory.ExchangeLog
	crops    memory.CropIndex
	archive  archive.Archiver
	base     *knowledge.Base
	finder   *knowledge.Finder
	index    *semantic.Index
	watcher  *knowledge.Watcher
	pipeline *pipeline.Pipeline
	speech   *speech.Proxy
	handler  http.Handler
	checkers []health.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithJournal injects an exchange journal instead of creating one from config.
func WithJournal(j memory.ExchangeLog) Option {
	return func(a *App) { a.journal = j }
}

// WithCropIndex injects the vector index used for semantic crop lookup.
func WithCropIndex(c memory.CropIndex) Option {
	return func(a *App) { a.crops = c }
}

// WithArchive injects a clip archive instead of connecting to the bucket.
func WithArchive(ar archive.Archiver) Option {
	return func(a *App) { a.archive = ar }
}

// WithKnowledgeBase injects the crop knowledge base instead of loading
// knowledge.path. Hot reload is disabled.
func WithKnowledgeBase(b *knowledge.Base) Option {
	return func(a *App) { a.base = b }
}

// WithMetrics injects the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). LLM and STT are
// required; without TTS the speech proxy routes are not mounted.
//
// New performs all initialisation synchronously: storage connection and
// migration, bucket creation, knowledge loading and embedding, and router
// assembly.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an llm provider is required")
	}
	if providers.STT == nil {
		return nil, errors.New("app: an stt provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Archive ───────────────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 3. Knowledge ─────────────────────────────────────────────────────
	if err := a.initKnowledge(ctx); err != nil {
		return nil, fmt.Errorf("app: init knowledge: %w", err)
	}

	// ── 4. Pipeline + speech proxy ───────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 5. HTTP gateway ──────────────────────────────────────────────────
	a.addProviderChecks()
	a.initGateway()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStorage connects PostgreSQL when configured, otherwise keeps the
// journal in memory and leaves semantic lookup disabled.
func (a *App) initStorage(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		a.journal = inmem.New(inmem.DefaultCapacity)
		slog.Info("exchange journal kept in memory", "capacity", inmem.DefaultCapacity)
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn, a.cfg.Storage.EmbeddingDimensions)
	if err != nil {
		return err
	}
	a.journal = store.Exchanges()
	if a.crops == nil {
		a.crops = store.Crops()
	}
	a.checkers = append(a.checkers, health.Checker{Name: "postgres", Check: store.Ping})
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	slog.Info("connected to postgres", "embedding_dimensions", a.cfg.Storage.EmbeddingDimensions)
	return nil
}

var errAllCircuitsOpen = errors.New("every backend circuit is open")

// breakerReporter is implemented by the resilience fallback wrappers.
type breakerReporter interface {
	Breakers() map[string]resilience.State
}

// addProviderChecks reports a provider kind as degraded while every backend
// configured for it has an open circuit.
func (a *App) addProviderChecks() {
	kinds := []struct {
		name string
		p    any
	}{
		{"llm", a.providers.LLM},
		{"stt", a.providers.STT},
		{"tts", a.providers.TTS},
	}
	for _, k := range kinds {
		br, ok := k.p.(breakerReporter)
		if !ok {
			continue
		}
		a.checkers = append(a.checkers, health.Checker{
			Name:     k.name + "_providers",
			Optional: true,
			Check: func(context.Context) error {
				for _, s := range br.Breakers() {
					if s != resilience.StateOpen {
						return nil
					}
				}
				return errAllCircuitsOpen
			},
		})
	}
}

// initArchive connects the clip bucket when an endpoint is configured.
func (a *App) initArchive(ctx context.Context) error {
	if a.archive != nil || a.cfg.Archive.Endpoint == "" {
		return nil
	}
	store, err := archive.New(a.cfg.Archive)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return err
	}
	a.archive = store
	a.checkers = append(a.checkers, health.Checker{Name: "archive", Check: store.Ping, Optional: true})
	slog.Info("archiving recordings", "endpoint", a.cfg.Archive.Endpoint, "bucket", a.cfg.Archive.Bucket)
	return nil
}

// initKnowledge loads the crop base, builds the finder and, when a vector
// index and embedder are available, embeds the base for semantic lookup.
func (a *App) initKnowledge(ctx context.Context) error {
	kc := a.cfg.Knowledge
	injected := a.base != nil
	if !injected {
		base, err := knowledge.Load(kc.Path)
		if err != nil {
			return err
		}
		a.base = base
	}

	opts := []knowledge.Option{
		knowledge.WithMatcher(phonetic.New(
			phonetic.WithPhoneticThreshold(kc.PhoneticThreshold),
			phonetic.WithFuzzyThreshold(kc.FuzzyThreshold),
		)),
		knowledge.WithMetrics(a.metrics),
	}
	if a.crops != nil && a.providers.Embeddings != nil && kc.SemanticMaxDistance > 0 {
		a.index = semantic.New(a.crops, a.providers.Embeddings)
		a.syncIndex(ctx, a.base)
		opts = append(opts, knowledge.WithSemantic(a.index, kc.SemanticMaxDistance))
	}
	a.finder = knowledge.NewFinder(a.base, opts...)
	slog.Info("knowledge base loaded", "crops", a.base.Len(), "semantic", a.index != nil)

	if injected || kc.ReloadInterval <= 0 {
		return nil
	}
	w, err := knowledge.NewWatcher(kc.Path, a.reloadKnowledge, knowledge.WithInterval(kc.ReloadInterval))
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

// reloadKnowledge is the watcher callback for a changed knowledge file.
func (a *App) reloadKnowledge(b *knowledge.Base) {
	a.finder.Swap(b)
	slog.Info("knowledge base reloaded", "crops", b.Len())
	if a.index != nil {
		ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
		defer cancel()
		a.syncIndex(ctx, b)
	}
}

// syncIndex embeds changed entries. Failures leave the previous vectors in
// place; lookups still work through the exact and phonetic paths.
func (a *App) syncIndex(ctx context.Context, b *knowledge.Base) {
	stats, err := a.index.Sync(ctx, b)
	if err != nil {
		slog.Warn("semantic index sync failed", "err", err)
		return
	}
	slog.Info("semantic index synced", "embedded", stats.Embedded, "unchanged", stats.Unchanged)
}

// initPipeline builds the advisor, the processing pipeline and the speech
// proxy.
func (a *App) initPipeline() error {
	ac := a.cfg.Advisor
	adv := advisor.New(a.providers.LLM,
		advisor.WithTemperature(ac.Temperature),
		advisor.WithMaxTokens(ac.MaxTokens),
		advisor.WithTimeout(ac.Timeout),
		advisor.WithSystemPrompt(ac.SystemPrompt),
		advisor.WithMetrics(a.metrics),
	)

	opts := []pipeline.Option{
		pipeline.WithJournal(a.journal),
		pipeline.WithLanguage(ac.Language),
		pipeline.WithMetrics(a.metrics),
	}
	if a.archive != nil {
		opts = append(opts, pipeline.WithArchive(a.archive))
	}
	p, err := pipeline.New(a.providers.STT, a.finder, adv, opts...)
	if err != nil {
		return err
	}
	a.pipeline = p

	if a.providers.TTS == nil {
		slog.Warn("no tts provider configured; speech proxy disabled")
		return nil
	}
	name := a.cfg.Providers.TTS.Name
	if name == "" {
		name = "tts"
	}
	sp, err := speech.New(a.providers.TTS, a.cfg.Speech,
		speech.WithMetrics(a.metrics),
		speech.WithProviderName(name),
	)
	if err != nil {
		return err
	}
	a.speech = sp
	return nil
}

// initGateway assembles the router.
func (a *App) initGateway() {
	sc := a.cfg.Server
	opts := []gateway.Option{
		gateway.WithCORSOrigins(sc.CORSOrigins),
		gateway.WithMaxUploadBytes(sc.MaxUploadBytes),
		gateway.WithRateLimit(sc.RateLimit.Requests, sc.RateLimit.Window),
		gateway.WithMetrics(a.metrics),
		gateway.WithHealth(health.New(a.checkers...)),
		gateway.WithJournal(a.journal),
		gateway.WithMetricsHandler(observe.Handler()),
	}
	if a.cfg.MCP.Enabled {
		srv := mcp.NewServer(a.finder, a.pipeline,
			mcp.WithJournal(a.journal),
			mcp.WithMetrics(a.metrics),
			mcp.WithVersion(a.version),
		)
		opts = append(opts, gateway.WithMCP(a.cfg.MCP.Path, mcp.Handler(srv)))
	}

	// A nil *speech.Proxy must not become a non-nil interface.
	var speaker gateway.Speaker
	if a.speech != nil {
		speaker = a.speech
	}
	a.handler = gateway.New(a.pipeline, speaker, opts...)
}

// Handler returns the assembled HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on server.listen_addr and serves until ctx is cancelled. When
// ctx is done, in-flight requests get a grace period and Run returns
// context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen on %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is [App.Run] on an existing listener. It takes ownership of ln.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		return srv.Shutdown(drainCtx)
	})

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	if err := g.Wait(); err != nil {
		return fmt.Errorf("app: serve: %w", err)
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
