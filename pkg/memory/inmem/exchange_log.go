// Package inmem provides an in-process [memory.ExchangeLog] used when no
// database is configured. It keeps the most recent exchanges only.
package inmem

import (
	"context"
	"sync"

	"github.com/MrWong99/raaee/pkg/memory"
	"github.com/MrWong99/raaee/pkg/types"
)

var _ memory.ExchangeLog = (*ExchangeLog)(nil)

// DefaultCapacity is the number of exchanges kept by [New] when capacity <= 0.
const DefaultCapacity = 500

// ExchangeLog is a bounded ring of exchanges. Older entries are evicted once
// the capacity is reached.
type ExchangeLog struct {
	mu    sync.RWMutex
	ring  []types.Exchange
	next  int
	count int
	byID  map[string]int
}

// New returns an ExchangeLog holding at most capacity exchanges.
func New(capacity int) *ExchangeLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ExchangeLog{
		ring: make([]types.Exchange, capacity),
		byID: make(map[string]int, capacity),
	}
}

// Record implements [memory.ExchangeLog].
func (l *ExchangeLog) Record(_ context.Context, ex types.Exchange) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == len(l.ring) {
		// A re-recorded ID points at its newer slot; keep that entry.
		if old := l.ring[l.next].ID; l.byID[old] == l.next {
			delete(l.byID, old)
		}
	} else {
		l.count++
	}
	l.ring[l.next] = ex
	l.byID[ex.ID] = l.next
	l.next = (l.next + 1) % len(l.ring)
	return nil
}

// Recent implements [memory.ExchangeLog].
func (l *ExchangeLog) Recent(_ context.Context, limit int) ([]types.Exchange, error) {
	if limit <= 0 {
		limit = memory.DefaultRecentLimit
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := min(limit, l.count)
	out := make([]types.Exchange, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.ring)) % len(l.ring)
		out = append(out, l.ring[idx])
	}
	return out, nil
}

// Get implements [memory.ExchangeLog].
func (l *ExchangeLog) Get(_ context.Context, id string) (types.Exchange, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.byID[id]
	if !ok {
		return types.Exchange{}, memory.ErrNotFound
	}
	return l.ring[idx], nil
}

// Len reports how many exchanges are held.
func (l *ExchangeLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}
