package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/raaee/pkg/provider/llm"
	llmmock "github.com/MrWong99/raaee/pkg/provider/llm/mock"
	"github.com/MrWong99/raaee/pkg/provider/stt"
	sttmock "github.com/MrWong99/raaee/pkg/provider/stt/mock"
	"github.com/MrWong99/raaee/pkg/provider/tts"
	ttsmock "github.com/MrWong99/raaee/pkg/provider/tts/mock"
	"github.com/MrWong99/raaee/pkg/types"
)

var urduVoice = types.VoiceProfile{ID: "v1", Name: "Urdu"}

func TestLLMFallback(t *testing.T) {
	primary := &llmmock.Provider{ModelName: "llama3-70b-8192", CompleteErr: llm.ErrRateLimited}
	backup := &llmmock.Provider{
		ModelName:        "llama3",
		CompleteResponse: &llm.CompletionResponse{Content: "گندم کی بوائی نومبر میں کریں۔"},
	}
	fb := NewLLMFallback(primary, "groq", BreakerConfig{})
	fb.AddFallback("ollama", backup)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "گندم کی بوائی نومبر میں کریں۔" {
		t.Errorf("content = %q", resp.Content)
	}
	if got := fb.Model(); got != "llama3-70b-8192" {
		t.Errorf("Model = %q, want the primary's", got)
	}
}

func TestLLMFallback_AllFailKeepsCause(t *testing.T) {
	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: errUpstream}, "groq", BreakerConfig{})
	fb.AddFallback("ollama", &llmmock.Provider{CompleteErr: llm.ErrUnauthorized})

	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, llm.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping ErrUnauthorized", err)
	}
}

func TestSTTFallback(t *testing.T) {
	tests := map[string]struct {
		primaryErr  error
		wantErr     error
		backupCalls int
	}{
		"fails over":              {primaryErr: errUpstream, backupCalls: 1},
		"silence is an answer":    {primaryErr: stt.ErrNoSpeech, wantErr: stt.ErrNoSpeech},
		"cancelled caller":        {primaryErr: context.Canceled, wantErr: context.Canceled},
		"primary transcribes too": {},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			primary := &sttmock.Provider{
				Transcript:    types.Transcript{Text: "primary"},
				TranscribeErr: tt.primaryErr,
			}
			backup := &sttmock.Provider{Transcript: types.Transcript{Text: "backup"}}
			fb := NewSTTFallback(primary, "groq", BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
			fb.AddFallback("openai", backup)

			_, err := fb.Transcribe(context.Background(), stt.Request{Audio: []byte("webm")})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := len(backup.Calls()); got != tt.backupCalls {
				t.Errorf("backup calls = %d, want %d", got, tt.backupCalls)
			}
			// Only a real outage trips the primary.
			wantState := StateClosed
			if errors.Is(tt.primaryErr, errUpstream) {
				wantState = StateOpen
			}
			if got := fb.Breakers()["groq"]; got != wantState {
				t.Errorf("groq breaker = %v, want %v", got, wantState)
			}
		})
	}
}

func TestTTSFallback_Synthesize(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: &tts.StatusError{StatusCode: 503}}
	backup := &ttsmock.Provider{SynthesizeAudio: &tts.Audio{Data: []byte("mp3"), MediaType: "audio/mpeg"}}
	fb := NewTTSFallback(primary, "elevenlabs", BreakerConfig{})
	fb.AddFallback("backup", backup)

	audio, err := fb.Synthesize(context.Background(), "سلام", urduVoice)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "mp3" {
		t.Errorf("data = %q", audio.Data)
	}
	if len(primary.Calls()) != 1 || len(backup.Calls()) != 1 {
		t.Errorf("calls = %d/%d, want 1/1", len(primary.Calls()), len(backup.Calls()))
	}
}

func TestTTSFallback_EmptyTextNotRetried(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: tts.ErrEmptyText}
	backup := &ttsmock.Provider{}
	fb := NewTTSFallback(primary, "elevenlabs", BreakerConfig{})
	fb.AddFallback("backup", backup)

	if _, err := fb.Synthesize(context.Background(), "", urduVoice); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if len(backup.Calls()) != 0 {
		t.Error("backup tried for empty text")
	}
}

func TestTTSFallback_SynthesizeStream(t *testing.T) {
	primary := &ttsmock.Provider{StreamErr: errUpstream}
	backup := &ttsmock.Provider{StreamChunks: [][]byte{[]byte("a"), []byte("b")}}
	fb := NewTTSFallback(primary, "elevenlabs", BreakerConfig{})
	fb.AddFallback("backup", backup)

	text := make(chan string, 1)
	text <- "سلام"
	close(text)
	out, err := fb.SynthesizeStream(context.Background(), text, urduVoice)
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	var got string
	for chunk := range out {
		got += string(chunk)
	}
	if got != "ab" {
		t.Errorf("audio = %q, want ab", got)
	}
}

func TestTTSFallback_ListVoices(t *testing.T) {
	fb := NewTTSFallback(&ttsmock.Provider{ListVoicesErr: errUpstream}, "elevenlabs", BreakerConfig{})
	fb.AddFallback("backup", &ttsmock.Provider{ListVoicesResult: []types.VoiceProfile{urduVoice}})

	voices, err := fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "v1" {
		t.Errorf("voices = %v", voices)
	}
}
