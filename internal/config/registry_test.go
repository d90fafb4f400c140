package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/raaee/internal/config"
	"github.com/MrWong99/raaee/pkg/provider/llm"
	llmmock "github.com/MrWong99/raaee/pkg/provider/llm/mock"
	"github.com/MrWong99/raaee/pkg/provider/tts"
	ttsmock "github.com/MrWong99/raaee/pkg/provider/tts/mock"
)

func TestFactories_Create(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &llmmock.Provider{ModelName: "llama3-70b-8192"}
	reg.LLM.Register("groq", func(e config.ProviderEntry) (llm.Provider, error) {
		if e.Model != "llama3-70b-8192" {
			t.Errorf("factory got model %q", e.Model)
		}
		return want, nil
	})

	got, err := reg.LLM.Create(config.ProviderEntry{Name: "groq", Model: "llama3-70b-8192"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got != want {
		t.Error("Create returned a different provider")
	}

	_, err = reg.LLM.Create(config.ProviderEntry{Name: "missing"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	// Kinds do not share names.
	_, err = reg.TTS.Create(config.ProviderEntry{Name: "groq"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("tts err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestFactories_NamesSorted(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	mk := func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil }
	reg.TTS.Register("elevenlabs", mk)
	reg.TTS.Register("azure", mk)
	reg.TTS.Register("elevenlabs", mk)

	if got := reg.TTS.Names(); !slices.Equal(got, []string{"azure", "elevenlabs"}) {
		t.Errorf("Names = %v", got)
	}
}

func TestRegistry_Missing(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.LLM.Register("groq", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })

	p := config.ProvidersConfig{
		LLM: config.ProviderEntry{
			Name:      "groq",
			Fallbacks: []config.ProviderEntry{{Name: "ollama"}},
		},
		TTS: config.ProviderEntry{Name: "elevenlabs"},
	}
	want := []string{"llm/ollama", "tts/elevenlabs"}
	if got := reg.Missing(p); !slices.Equal(got, want) {
		t.Errorf("Missing = %v, want %v", got, want)
	}
}

func TestProviderEntry_Options(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{"language": "ur", "dimensions": 768, "ratio": 1.5}}
	if got := e.OptString("language"); got != "ur" {
		t.Errorf("OptString = %q", got)
	}
	if got := e.OptInt("dimensions"); got != 768 {
		t.Errorf("OptInt = %d", got)
	}
	if got := e.OptInt("ratio"); got != 1 {
		t.Errorf("OptInt(float) = %d", got)
	}
	if got := e.OptString("missing"); got != "" {
		t.Errorf("OptString(missing) = %q", got)
	}
}
