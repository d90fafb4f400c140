package observe

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup wires a private meter provider and an in-memory span exporter.
func testSetup(t *testing.T) (*meterFixture, *tracetest.InMemoryExporter) {
	t.Helper()
	return newMeterFixture(t), useTestTracer(t)
}

// durationAttrs collects the attribute sets of the request duration series.
func durationAttrs(f *meterFixture) []map[string]string {
	f.t.Helper()
	hist, ok := f.get("raaee.http.request.duration").(metricdata.Histogram[float64])
	if !ok {
		f.t.Fatal("raaee.http.request.duration is not a histogram")
	}
	var out []map[string]string
	for _, dp := range hist.DataPoints {
		attrs := map[string]string{}
		for _, kv := range dp.Attributes.ToSlice() {
			attrs[string(kv.Key)] = kv.Value.AsString()
		}
		out = append(out, attrs)
	}
	return out
}

func TestMiddleware_CorrelationHeader(t *testing.T) {
	f, _ := testSetup(t)
	m := f.m

	tests := map[string]struct {
		traceparent string
		want        string
	}{
		"new trace":       {},
		"continued trace": {traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", want: "4bf92f3577b34da6a3ce929d0e0e4736"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var seen string
			h := Middleware(m)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = CorrelationID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodPost, "/process_audio", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if len(seen) != 32 {
				t.Fatalf("correlation id = %q", seen)
			}
			if tt.want != "" && seen != tt.want {
				t.Errorf("correlation id = %q, want %q", seen, tt.want)
			}
			if got := rec.Header().Get(CorrelationHeader); got != seen {
				t.Errorf("%s = %q, want %q", CorrelationHeader, got, seen)
			}
		})
	}
}

func TestMiddleware_SpanAndMetrics(t *testing.T) {
	f, exp := testSetup(t)
	m := f.m

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.Get("/exchanges/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Post("/process_audio", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/exchanges/abc", nil),
		httptest.NewRequest(http.MethodPost, "/process_audio", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Name != "HTTP GET /exchanges/abc" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var code int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			code = a.Value.AsInt64()
		}
	}
	if code != http.StatusNotFound {
		t.Errorf("span status code = %d, want 404", code)
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("4xx span marked as error")
	}
	if spans[1].Status.Code != codes.Error {
		t.Error("5xx span not marked as error")
	}

	series := durationAttrs(f)
	want := map[string]map[string]string{
		"/exchanges/{id}": {"method": "GET", "status": "4xx"},
		"/process_audio":  {"method": "POST", "status": "5xx"},
	}
	if len(series) != len(want) {
		t.Fatalf("series = %v", series)
	}
	for _, attrs := range series {
		w, ok := want[attrs["path"]]
		if !ok {
			t.Errorf("unexpected path %q", attrs["path"])
			continue
		}
		if attrs["method"] != w["method"] || attrs["status"] != w["status"] {
			t.Errorf("%s attrs = %v, want %v", attrs["path"], attrs, w)
		}
	}
}

func TestMiddleware_LogLevels(t *testing.T) {
	f, _ := testSetup(t)
	m := f.m

	tests := map[string]struct {
		path   string
		status int
		want   string
	}{
		"ok":          {path: "/process_audio", status: http.StatusOK, want: "level=INFO"},
		"bad request": {path: "/process_audio", status: http.StatusBadRequest, want: "level=WARN"},
		"failure":     {path: "/speech", status: http.StatusBadGateway, want: "level=ERROR"},
		"probe":       {path: "/healthz", status: http.StatusOK, want: "level=DEBUG"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			buf := captureLogs(t)
			slog.SetDefault(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

			h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("log %q missing %q", out, tt.want)
			}
			if !strings.Contains(out, "bytes=4") {
				t.Errorf("log %q missing byte count", out)
			}
		})
	}
}

func TestMiddleware_ForwardsFlush(t *testing.T) {
	f, _ := testSetup(t)
	m := f.m

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer does not implement http.Flusher")
		}
		_, _ = w.Write([]byte("chunk"))
		f.Flush()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/speech/stream", nil))
	if !rec.Flushed {
		t.Error("recorder was not flushed")
	}
}
