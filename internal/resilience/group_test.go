package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

// answer is a backend that returns a fixed reply or error and counts calls.
type answer struct {
	reply string
	err   error
	calls int
}

func (a *answer) ask() (string, error) {
	a.calls++
	return a.reply, a.err
}

func ask(a *answer) (string, error) { return a.ask() }

func TestDo(t *testing.T) {
	tests := map[string]struct {
		members   []*answer
		want      string
		wantErr   error
		wantCalls []int
	}{
		"primary answers": {
			members:   []*answer{{reply: "groq"}, {reply: "ollama"}},
			want:      "groq",
			wantCalls: []int{1, 0},
		},
		"fails over in order": {
			members:   []*answer{{err: errUpstream}, {err: errUpstream}, {reply: "third"}},
			want:      "third",
			wantCalls: []int{1, 1, 1},
		},
		"all fail": {
			members:   []*answer{{err: errors.New("first")}, {err: errUpstream}},
			wantErr:   errUpstream,
			wantCalls: []int{1, 1},
		},
		"cancellation stops the walk": {
			members:   []*answer{{err: context.Canceled}, {reply: "unused"}},
			wantErr:   context.Canceled,
			wantCalls: []int{1, 0},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			g := NewGroup(tt.members[0], "m0", BreakerConfig{MaxFailures: 3})
			for i, m := range tt.members[1:] {
				g.Add("m"+string(rune('1'+i)), m)
			}

			got, err := Do(context.Background(), g, ask)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Do: %v", err)
			}
			if got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
			allFailed := errors.Is(err, ErrAllFailed)
			if name == "all fail" && !allFailed {
				t.Errorf("err = %v, want ErrAllFailed", err)
			}
			if name == "cancellation stops the walk" && allFailed {
				t.Error("cancellation reported as ErrAllFailed")
			}
			var calls []int
			for _, m := range tt.members {
				calls = append(calls, m.calls)
			}
			if !slices.Equal(calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", calls, tt.wantCalls)
			}
		})
	}
}

func TestDo_SkipsOpenMember(t *testing.T) {
	primary := &answer{err: errUpstream}
	backup := &answer{reply: "backup"}
	g := NewGroup(primary, "primary", BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	g.Add("backup", backup)

	for range 4 {
		if got, err := Do(context.Background(), g, ask); err != nil || got != "backup" {
			t.Fatalf("Do = %q, %v", got, err)
		}
	}
	if primary.calls != 2 {
		t.Errorf("primary calls = %d, want 2 before its breaker opened", primary.calls)
	}
	states := g.States()
	if states["primary"] != StateOpen || states["backup"] != StateClosed {
		t.Errorf("states = %v", states)
	}
}

func TestGroup_NamesAndPrimary(t *testing.T) {
	first := &answer{reply: "a"}
	g := NewGroup(first, "groq", BreakerConfig{})
	g.Add("ollama", &answer{})
	g.Add("openai", &answer{})

	if got := g.Names(); !slices.Equal(got, []string{"groq", "ollama", "openai"}) {
		t.Errorf("Names = %v", got)
	}
	if g.Primary() != first {
		t.Error("Primary is not the first member")
	}
}

func TestGroup_BreakersAreNamed(t *testing.T) {
	var opened []string
	cfg := BreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
		OnStateChange: func(name string, _, to State) {
			if to == StateOpen {
				opened = append(opened, name)
			}
		},
	}
	g := NewGroup(&answer{err: errUpstream}, "groq", cfg)
	g.Add("ollama", &answer{err: errUpstream})

	_, _ = Do(context.Background(), g, ask)
	if !slices.Equal(opened, []string{"groq", "ollama"}) {
		t.Errorf("opened = %v", opened)
	}
}
