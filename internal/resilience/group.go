package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/raaee/internal/observe"
)

// ErrAllFailed is returned when no member of a [Group] produced a result.
// The last member's error stays in the chain.
var ErrAllFailed = errors.New("all providers failed")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group is an ordered list of interchangeable backends. Members are tried
// in registration order; one whose breaker is open is skipped. An error the
// classifier does not count as a failure ends the walk immediately, since
// another backend would give the same answer.
//
// Members must be added before the group is shared.
type Group[T any] struct {
	cfg     BreakerConfig
	members []member[T]
}

// NewGroup returns a group with primary as its first member. Every member
// gets its own [Breaker] built from cfg with Name set to the member name.
func NewGroup[T any](primary T, name string, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg.withDefaults()}
	g.Add(name, primary)
	return g
}

// Add appends a fallback member.
func (g *Group[T]) Add(name string, v T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: v, breaker: NewBreaker(cfg)})
}

// Primary returns the first member.
func (g *Group[T]) Primary() T { return g.members[0].value }

// Names lists the members in the order they are tried.
func (g *Group[T]) Names() []string {
	out := make([]string, len(g.members))
	for i, m := range g.members {
		out[i] = m.name
	}
	return out
}

// States reports each member's breaker state by name.
func (g *Group[T]) States() map[string]State {
	out := make(map[string]State, len(g.members))
	for _, m := range g.members {
		out[m.name] = m.breaker.State()
	}
	return out
}

// Do runs fn against the members of g until one succeeds.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	log := observe.Logger(ctx)
	for i, m := range g.members {
		var out R
		err := m.breaker.Execute(func() error {
			var err error
			out, err = fn(m.value)
			return err
		})
		switch {
		case err == nil:
			if i > 0 {
				log.Info("served by fallback provider", "provider", m.name)
			}
			return out, nil
		case errors.Is(err, ErrCircuitOpen):
			log.Debug("provider skipped, circuit open", "provider", m.name)
		case !g.cfg.IsFailure(err):
			return zero, err
		default:
			log.Warn("provider failed", "provider", m.name, "err", err)
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
