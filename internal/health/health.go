// Package health serves the liveness and readiness probes.
//
// /healthz answers 200 while the process can serve HTTP. /readyz runs every
// registered [Checker] concurrently and answers 200 unless a required check
// fails. A failing optional check, such as the clip archive, reports the
// service as "degraded" but keeps it in rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single check.
const checkTimeout = 5 * time.Second

// Status values used in reports.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker probes one dependency.
type Checker struct {
	Name string

	// Check returns nil when the dependency is usable.
	Check func(ctx context.Context) error

	// Optional checks degrade the report instead of failing it.
	Optional bool
}

// CheckResult is the outcome of one [Checker].
type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report is the /readyz response body.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. Its checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New returns a Handler evaluating checkers on every readiness probe.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Run evaluates every checker and folds the results into a [Report].
func (h *Handler) Run(ctx context.Context) Report {
	var (
		mu  sync.Mutex
		g   errgroup.Group
		rep = Report{Status: StatusOK, Checks: make(map[string]CheckResult, len(h.checkers))}
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			res := run(ctx, c)

			mu.Lock()
			defer mu.Unlock()
			rep.Checks[c.Name] = res
			switch {
			case res.Status == StatusOK:
			case c.Optional && rep.Status == StatusOK:
				rep.Status = StatusDegraded
			case !c.Optional:
				rep.Status = StatusFail
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func run(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	res := CheckResult{Status: StatusOK, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = StatusFail
		res.Error = err.Error()
	}
	return res
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz answers 503 when a required check fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Run(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Register mounts /healthz and /readyz on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
