// Package mock provides in-memory test doubles for the memory layer interfaces.
//
// Each mock records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. All mocks are safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	log := &mock.ExchangeLog{}
//	log.RecentResult = []types.Exchange{{ID: "x"}}
//
//	// inject log into the system under test …
//
//	if got := log.CallCount("Record"); got != 1 {
//	    t.Errorf("expected 1 Record call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/raaee/pkg/memory"
	"github.com/MrWong99/raaee/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

type recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *recorder) record(method string, args ...any) {
	r.calls = append(r.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of all recorded method invocations.
func (r *recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (r *recorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ExchangeLog mock (L1)
// ─────────────────────────────────────────────────────────────────────────────

// ExchangeLog is a configurable test double for [memory.ExchangeLog].
// Recorded exchanges are kept in Recorded so tests can inspect them.
type ExchangeLog struct {
	recorder

	// RecordErr is returned by [ExchangeLog.Record] when non-nil.
	RecordErr error

	// Recorded holds every exchange passed to a successful Record call.
	Recorded []types.Exchange

	// RecentResult is returned by [ExchangeLog.Recent]. When nil, Recent
	// returns an empty non-nil slice.
	RecentResult []types.Exchange

	// RecentErr is returned by [ExchangeLog.Recent] when non-nil.
	RecentErr error

	// GetResult is returned by [ExchangeLog.Get] when GetErr is nil.
	GetResult types.Exchange

	// GetErr is returned by [ExchangeLog.Get] when non-nil.
	GetErr error
}

// Record implements [memory.ExchangeLog].
func (m *ExchangeLog) Record(_ context.Context, ex types.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Record", ex)
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.Recorded = append(m.Recorded, ex)
	return nil
}

// Recent implements [memory.ExchangeLog].
func (m *ExchangeLog) Recent(_ context.Context, limit int) ([]types.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Recent", limit)
	if m.RecentErr != nil {
		return nil, m.RecentErr
	}
	if m.RecentResult == nil {
		return []types.Exchange{}, nil
	}
	return m.RecentResult, nil
}

// Get implements [memory.ExchangeLog].
func (m *ExchangeLog) Get(_ context.Context, id string) (types.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Get", id)
	if m.GetErr != nil {
		return types.Exchange{}, m.GetErr
	}
	return m.GetResult, nil
}

// RecordedExchanges returns a copy of Recorded taken under the lock.
func (m *ExchangeLog) RecordedExchanges() []types.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Exchange, len(m.Recorded))
	copy(out, m.Recorded)
	return out
}

var _ memory.ExchangeLog = (*ExchangeLog)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// CropIndex mock (L2)
// ─────────────────────────────────────────────────────────────────────────────

// CropIndex is a configurable test double for [memory.CropIndex].
// Upsert and Prune mutate DigestsResult so that a Sync followed by another
// Sync behaves like a real store.
type CropIndex struct {
	recorder

	// DigestsResult is returned by [CropIndex.Digests].
	DigestsResult map[string]string

	// DigestsErr is returned by [CropIndex.Digests] when non-nil.
	DigestsErr error

	// UpsertErr is returned by [CropIndex.Upsert] when non-nil.
	UpsertErr error

	// PruneErr is returned by [CropIndex.Prune] when non-nil.
	PruneErr error

	// NearestResult is returned by [CropIndex.Nearest]. When nil, Nearest
	// returns an empty non-nil slice.
	NearestResult []memory.CropResult

	// NearestErr is returned by [CropIndex.Nearest] when non-nil.
	NearestErr error
}

// Digests implements [memory.CropIndex].
func (m *CropIndex) Digests(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Digests")
	if m.DigestsErr != nil {
		return nil, m.DigestsErr
	}
	out := make(map[string]string, len(m.DigestsResult))
	for k, v := range m.DigestsResult {
		out[k] = v
	}
	return out, nil
}

// Upsert implements [memory.CropIndex].
func (m *CropIndex) Upsert(_ context.Context, vectors []memory.CropVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Upsert", vectors)
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if m.DigestsResult == nil {
		m.DigestsResult = make(map[string]string)
	}
	for _, v := range vectors {
		m.DigestsResult[v.Name] = v.Digest
	}
	return nil
}

// Prune implements [memory.CropIndex].
func (m *CropIndex) Prune(_ context.Context, keep []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Prune", keep)
	if m.PruneErr != nil {
		return m.PruneErr
	}
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	for name := range m.DigestsResult {
		if !kept[name] {
			delete(m.DigestsResult, name)
		}
	}
	return nil
}

// Nearest implements [memory.CropIndex].
func (m *CropIndex) Nearest(_ context.Context, embedding []float32, topK int) ([]memory.CropResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Nearest", embedding, topK)
	if m.NearestErr != nil {
		return nil, m.NearestErr
	}
	if m.NearestResult == nil {
		return []memory.CropResult{}, nil
	}
	if topK > 0 && len(m.NearestResult) > topK {
		return m.NearestResult[:topK], nil
	}
	return m.NearestResult, nil
}

var _ memory.CropIndex = (*CropIndex)(nil)
