package knowledge

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/MrWong99/raaee/internal/knowledge/phonetic"
	"github.com/MrWong99/raaee/internal/observe"
)

// Semantic resolves a free-form question to the nearest crop name.
type Semantic interface {
	Nearest(ctx context.Context, query string) (crop string, distance float64, err error)
}

// stopWords are common question words that sound like crop names ("what"
// and "wheat" share a Double Metaphone code) and are never crop names.
var stopWords = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "how": {},
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {}, "are": {},
	"should": {}, "would": {}, "can": {}, "could": {}, "my": {}, "our": {}, "your": {},
	"crop": {}, "crops": {}, "plant": {}, "field": {}, "farm": {},
}

// Option configures a [Finder].
type Option func(*Finder)

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(f *Finder) { f.matcher = m }
}

// WithoutPhonetic disables the phonetic fallback.
func WithoutPhonetic() Option {
	return func(f *Finder) { f.matcher = nil }
}

// WithSemantic enables the semantic fallback. Matches further than
// maxDistance (cosine distance) are discarded.
func WithSemantic(s Semantic, maxDistance float64) Option {
	return func(f *Finder) {
		f.semantic = s
		f.maxDistance = maxDistance
	}
}

// WithMetrics records lookup outcomes.
func WithMetrics(m *observe.Metrics) Option {
	return func(f *Finder) { f.metrics = m }
}

// Finder resolves questions against the current [Base]. It is safe for
// concurrent use; [Finder.Swap] replaces the base atomically.
type Finder struct {
	base        atomic.Pointer[Base]
	matcher     *phonetic.Matcher
	semantic    Semantic
	maxDistance float64
	metrics     *observe.Metrics
}

// NewFinder returns a Finder over base with the phonetic fallback enabled.
func NewFinder(base *Base, opts ...Option) *Finder {
	f := &Finder{matcher: phonetic.New()}
	for _, o := range opts {
		o(f)
	}
	f.base.Store(base)
	return f
}

// Base returns the base currently in use.
func (f *Finder) Base() *Base { return f.base.Load() }

// Swap replaces the base. In-flight lookups finish against the old one.
func (f *Finder) Swap(b *Base) {
	if b == nil {
		return
	}
	f.base.Store(b)
	slog.Info("knowledge base swapped", "entries", b.Len())
}

// Find resolves query to a crop entry. Semantic failures are logged and
// treated as a miss; a question without crop context is still answerable.
func (f *Finder) Find(ctx context.Context, query string) (Match, bool) {
	b := f.base.Load()
	if b == nil || strings.TrimSpace(query) == "" {
		return Match{}, false
	}

	if m, ok := b.Lookup(query); ok {
		f.record(ctx, string(MethodExact))
		return m, true
	}
	if m, ok := f.findPhonetic(b, query); ok {
		f.record(ctx, string(MethodPhonetic))
		return m, true
	}
	if m, ok := f.findSemantic(ctx, b, query); ok {
		f.record(ctx, string(MethodSemantic))
		return m, true
	}
	f.record(ctx, "miss")
	return Match{}, false
}

func (f *Finder) findPhonetic(b *Base, query string) (Match, bool) {
	if f.matcher == nil || b.Len() == 0 {
		return Match{}, false
	}
	words := queryWords(query)
	if len(words) == 0 {
		return Match{}, false
	}

	// Group names by word count so each is compared with phrases of the
	// same length.
	bySize := make(map[int][]string)
	for _, name := range b.names {
		n := len(strings.Fields(name))
		bySize[n] = append(bySize[n], name)
	}

	var best Match
	for size, names := range bySize {
		for i := 0; i+size <= len(words); i++ {
			phrase := strings.Join(words[i:i+size], " ")
			name, score, ok := f.matcher.Match(phrase, names)
			if !ok {
				continue
			}
			if score > best.Score || (score == best.Score && before(b, name, best.Crop)) {
				best = Match{Crop: name, Data: b.entries[name], Method: MethodPhonetic, Score: score}
			}
		}
	}
	return best, best.Crop != ""
}

func (f *Finder) findSemantic(ctx context.Context, b *Base, query string) (Match, bool) {
	if f.semantic == nil || f.maxDistance <= 0 {
		return Match{}, false
	}
	crop, dist, err := f.semantic.Nearest(ctx, query)
	if err != nil {
		slog.Warn("semantic crop lookup failed", "err", err)
		return Match{}, false
	}
	if dist > f.maxDistance {
		slog.Debug("semantic crop candidate too far", "crop", crop, "distance", dist)
		return Match{}, false
	}
	data, ok := b.entries[crop]
	if !ok {
		// Index is ahead of or behind the file; ignore until the next sync.
		return Match{}, false
	}
	return Match{Crop: crop, Data: data, Method: MethodSemantic, Score: 1 - dist}, true
}

func (f *Finder) record(ctx context.Context, method string) {
	if f.metrics != nil {
		f.metrics.RecordKnowledgeLookup(ctx, method)
	}
}

// before reports whether a precedes b in the base's lookup order.
func before(base *Base, a, b string) bool {
	if b == "" {
		return true
	}
	for _, n := range base.names {
		switch n {
		case a:
			return true
		case b:
			return false
		}
	}
	return false
}

// queryWords lowercases query, strips punctuation and drops stop words and
// words shorter than three letters.
func queryWords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := fields[:0]
	for _, w := range fields {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		words = append(words, w)
	}
	return words
}
