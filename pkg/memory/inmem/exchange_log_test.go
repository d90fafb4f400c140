package inmem_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/raaee/pkg/memory"
	"github.com/MrWong99/raaee/pkg/memory/inmem"
	"github.com/MrWong99/raaee/pkg/types"
)

func TestExchangeLog_RecentNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := inmem.New(10)

	for i := range 3 {
		if err := l.Record(ctx, types.Exchange{ID: fmt.Sprint(i), Reply: fmt.Sprint("reply ", i)}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := l.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "1" {
		t.Fatalf("Recent(2) = %+v, want ids [2 1]", got)
	}
}

func TestExchangeLog_Eviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := inmem.New(2)

	for i := range 3 {
		_ = l.Record(ctx, types.Exchange{ID: fmt.Sprint(i)})
	}
	if l.Len() != 2 {
		t.Fatalf("Len = %d, want 2", l.Len())
	}
	if _, err := l.Get(ctx, "0"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Get(evicted) err = %v, want ErrNotFound", err)
	}
	ex, err := l.Get(ctx, "2")
	if err != nil || ex.ID != "2" {
		t.Errorf("Get(2) = %+v, %v", ex, err)
	}

	got, _ := l.Recent(ctx, 0)
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "1" {
		t.Errorf("Recent(0) = %+v, want ids [2 1]", got)
	}
}

func TestExchangeLog_EvictingOlderCopyKeepsNewer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := inmem.New(2)

	_ = l.Record(ctx, types.Exchange{ID: "a", Reply: "first"})
	_ = l.Record(ctx, types.Exchange{ID: "a", Reply: "second"})
	_ = l.Record(ctx, types.Exchange{ID: "b"}) // evicts the first "a"

	ex, err := l.Get(ctx, "a")
	if err != nil || ex.Reply != "second" {
		t.Fatalf("Get(a) = %+v, %v, want the newer copy", ex, err)
	}
	if _, err := l.Get(ctx, "b"); err != nil {
		t.Errorf("Get(b): %v", err)
	}

	_ = l.Record(ctx, types.Exchange{ID: "c"}) // evicts the newer "a"
	if _, err := l.Get(ctx, "a"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Get(a) after eviction err = %v, want ErrNotFound", err)
	}
}

func TestExchangeLog_DefaultCapacity(t *testing.T) {
	t.Parallel()
	l := inmem.New(0)
	got, err := l.Recent(context.Background(), 5)
	if err != nil || len(got) != 0 {
		t.Fatalf("Recent on empty log = %+v, %v", got, err)
	}
}
