package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/raaee/internal/app"
	"github.com/MrWong99/raaee/internal/config"
	"github.com/MrWong99/raaee/internal/health"
	"github.com/MrWong99/raaee/internal/knowledge"
	"github.com/MrWong99/raaee/internal/resilience"
	"github.com/MrWong99/raaee/pkg/api"
	memorymock "github.com/MrWong99/raaee/pkg/memory/mock"
	"github.com/MrWong99/raaee/pkg/provider/llm"
	llmmock "github.com/MrWong99/raaee/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/raaee/pkg/provider/stt/mock"
	"github.com/MrWong99/raaee/pkg/provider/tts"
	ttsmock "github.com/MrWong99/raaee/pkg/provider/tts/mock"
	"github.com/MrWong99/raaee/pkg/types"
)

// testConfig returns the default config with the listener on a free port.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Providers.TTS.Name = "test"
	return cfg
}

func testBase(t *testing.T) *knowledge.Base {
	t.Helper()
	b, err := knowledge.NewBase(map[string]any{
		"wheat": map[string]any{"sowing": "November", "water": "4-6 irrigations"},
	})
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}
	return b
}

// testProviders returns mock providers for every slot except embeddings.
func testProviders() *app.Providers {
	return &app.Providers{
		LLM: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Sow wheat in November."}},
		STT: &sttmock.Provider{
			Transcript:  types.Transcript{Text: "گندم کب بوئیں؟"},
			Translation: types.Transcript{Text: "When should I sow wheat?"},
		},
		TTS: &ttsmock.Provider{SynthesizeAudio: &tts.Audio{Data: []byte("mp3"), MediaType: "audio/mpeg"}},
	}
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithKnowledgeBase(testBase(t))}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	tests := map[string]*app.Providers{
		"nil":    nil,
		"no llm": {STT: &sttmock.Provider{}},
		"no stt": {LLM: &llmmock.Provider{}},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := app.New(context.Background(), testConfig(), p); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_MissingKnowledgeFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Knowledge.Path = t.TempDir() + "/missing.json"
	if _, err := app.New(context.Background(), cfg, testProviders()); err == nil {
		t.Error("expected error for missing knowledge file")
	}
}

func upload(t *testing.T, h http.Handler, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(api.AudioField, api.DefaultFilename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/process_audio", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ProcessAudio(t *testing.T) {
	t.Parallel()

	journal := &memorymock.ExchangeLog{}
	providers := testProviders()
	a := newApp(t, testConfig(), providers, app.WithJournal(journal))

	rec := upload(t, a.Handler(), []byte("webm"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var res api.ProcessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Transcription != "گندم کب بوئیں؟" {
		t.Errorf("transcription = %q", res.Transcription)
	}
	if res.Response != "Sow wheat in November." {
		t.Errorf("response = %q", res.Response)
	}
	if res.Status != api.StatusSuccess {
		t.Errorf("status = %q", res.Status)
	}

	recorded := journal.RecordedExchanges()
	if len(recorded) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(recorded))
	}
	if recorded[0].Crop != "wheat" {
		t.Errorf("journal crop = %q, want wheat", recorded[0].Crop)
	}

	// The matched crop record reaches the advisor prompt.
	calls := providers.LLM.(*llmmock.Provider).CompleteCalls
	if len(calls) != 1 {
		t.Fatalf("llm calls = %d", len(calls))
	}
	var prompt strings.Builder
	for _, m := range calls[0].Req.Messages {
		prompt.WriteString(m.Content)
	}
	if !strings.Contains(prompt.String(), "November") {
		t.Error("crop record missing from advisor prompt")
	}
}

func TestHandler_Speech(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), testProviders())
	req := httptest.NewRequest(http.MethodPost, "/speech", strings.NewReader(`{"text":"سلام"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec.Body.String() != "mp3" {
		t.Errorf("body = %q", rec.Body)
	}
}

func TestHandler_NoTTS(t *testing.T) {
	t.Parallel()

	p := testProviders()
	p.TTS = nil
	a := newApp(t, testConfig(), p)

	req := httptest.NewRequest(http.MethodPost, "/speech", strings.NewReader(`{"text":"x"}`))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code == http.StatusOK {
		t.Error("speech route served without a tts provider")
	}
}

func TestHandler_ReadyzDegradedWhileProvidersDown(t *testing.T) {
	t.Parallel()

	llmGroup := resilience.NewLLMFallback(&llmmock.Provider{CompleteErr: errors.New("groq 503")}, "groq",
		resilience.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	p := testProviders()
	p.LLM = llmGroup
	a := newApp(t, testConfig(), p)

	readyz := func() health.Report {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("/readyz = %d, body = %s", rec.Code, rec.Body)
		}
		var rep health.Report
		if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
			t.Fatal(err)
		}
		return rep
	}

	if rep := readyz(); rep.Status != health.StatusOK {
		t.Fatalf("status before outage = %q", rep.Status)
	}
	_, _ = llmGroup.Complete(context.Background(), llm.CompletionRequest{})
	rep := readyz()
	if rep.Status != health.StatusDegraded || rep.Checks["llm_providers"].Status != health.StatusFail {
		t.Errorf("report = %+v", rep)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), testProviders())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	// Wait until the server answers.
	url := "http://" + ln.Addr().String() + "/"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("GET / = %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never answered: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), testProviders(), app.WithKnowledgeBase(testBase(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
