package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/raaee/pkg/provider/embeddings"
	"github.com/MrWong99/raaee/pkg/provider/llm"
	"github.com/MrWong99/raaee/pkg/provider/stt"
	"github.com/MrWong99/raaee/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create when no factory is known
// under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// Factories holds the named constructors for one provider kind. It is safe
// for concurrent use.
type Factories[T any] struct {
	kind string

	mu sync.RWMutex
	m  map[string]Factory[T]
}

func newFactories[T any](kind string) *Factories[T] {
	return &Factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

// Register adds fn under name, replacing any earlier registration.
func (f *Factories[T]) Register(name string, fn Factory[T]) {
	f.mu.Lock()
	f.m[name] = fn
	f.mu.Unlock()
}

// Create builds the provider named by entry.Name.
func (f *Factories[T]) Create(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	fn, ok := f.m[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return fn(entry)
}

// Names lists the registered names in sorted order.
func (f *Factories[T]) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.m))
	for n := range f.m {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Registry groups the factories of every provider kind the server uses.
type Registry struct {
	LLM        *Factories[llm.Provider]
	STT        *Factories[stt.Provider]
	TTS        *Factories[tts.Provider]
	Embeddings *Factories[embeddings.Provider]
}

// NewRegistry returns a Registry with no factories.
func NewRegistry() *Registry {
	return &Registry{
		LLM:        newFactories[llm.Provider]("llm"),
		STT:        newFactories[stt.Provider]("stt"),
		TTS:        newFactories[tts.Provider]("tts"),
		Embeddings: newFactories[embeddings.Provider]("embeddings"),
	}
}

// Missing lists the configured provider names, fallbacks included, that have
// no factory. Entries are formatted as "kind/name".
func (r *Registry) Missing(p ProvidersConfig) []string {
	var out []string
	check := func(kind string, names []string, e ProviderEntry) {
		for _, n := range entryNames(e) {
			if !slices.Contains(names, n) {
				out = append(out, kind+"/"+n)
			}
		}
	}
	check("llm", r.LLM.Names(), p.LLM)
	check("stt", r.STT.Names(), p.STT)
	check("tts", r.TTS.Names(), p.TTS)
	check("embeddings", r.Embeddings.Names(), p.Embeddings)
	return out
}

func entryNames(e ProviderEntry) []string {
	if e.Name == "" {
		return nil
	}
	names := []string{e.Name}
	for _, fb := range e.Fallbacks {
		names = append(names, fb.Name)
	}
	return names
}

// OptString returns Options[key] when it is a string.
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptInt returns Options[key] as an int. Floats are truncated.
func (e ProviderEntry) OptInt(key string) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
