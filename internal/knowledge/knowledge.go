// Package knowledge holds the crop knowledge base the advisor grounds its
// replies on.
//
// The base is a JSON object that maps crop names to arbitrary JSON details.
// [Finder] resolves an English question to one crop entry, trying in order:
// a case-insensitive substring match of crop names in the question, a
// phonetic match for misheard names, and an optional semantic match through
// a vector index. The base can be swapped at runtime for hot reload.
package knowledge

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"unicode/utf8"
)

// ErrInvalidBase is returned when a knowledge file is not a JSON object of
// named entries.
var ErrInvalidBase = errors.New("knowledge: invalid knowledge base")

// Method names how a [Match] was found.
type Method string

const (
	MethodExact    Method = "exact"
	MethodPhonetic Method = "phonetic"
	MethodSemantic Method = "semantic"
)

// Match is a resolved crop entry.
type Match struct {
	// Crop is the name as written in the knowledge base.
	Crop string

	// Data is the entry's JSON details, verbatim.
	Data json.RawMessage

	// Method is the strategy that produced the match.
	Method Method

	// Score is 1 for exact matches, the Jaro-Winkler score for phonetic
	// matches, and 1 minus the cosine distance for semantic matches.
	Score float64
}

// Base is an immutable crop knowledge base.
type Base struct {
	entries map[string]json.RawMessage

	// names is ordered longest first, then alphabetically, so that "sweet
	// potato" wins over "potato" and lookups are deterministic.
	names []string
}

// Parse decodes a knowledge base from r.
func Parse(r io.Reader) (*Base, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBase, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: top level must be an object", ErrInvalidBase)
	}
	return newBase(raw)
}

// Load reads and parses the knowledge file at path.
func Load(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: read %q: %w", path, err)
	}
	b, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("knowledge: parse %q: %w", path, err)
	}
	return b, nil
}

// NewBase builds a base from in-memory entries. Each value is marshalled to
// JSON.
func NewBase(entries map[string]any) (*Base, error) {
	raw := make(map[string]json.RawMessage, len(entries))
	for name, v := range entries {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("knowledge: marshal %q: %w", name, err)
		}
		raw[name] = data
	}
	return newBase(raw)
}

func newBase(raw map[string]json.RawMessage) (*Base, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: empty crop name", ErrInvalidBase)
		}
		names = append(names, name)
	}
	// Longest name in characters first, so "sweet potato" wins over
	// "potato" and an Urdu name is not ranked by its byte width.
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(utf8.RuneCountInString(b), utf8.RuneCountInString(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return &Base{entries: raw, names: names}, nil
}

// Len reports the number of entries.
func (b *Base) Len() int { return len(b.names) }

// Names returns the crop names in lookup order.
func (b *Base) Names() []string { return slices.Clone(b.names) }

// Get returns the details for the crop called name.
func (b *Base) Get(name string) (json.RawMessage, bool) {
	data, ok := b.entries[name]
	return data, ok
}

// Lookup returns the first crop, in lookup order, whose name appears in
// query. Matching is case-insensitive.
func (b *Base) Lookup(query string) (Match, bool) {
	q := strings.ToLower(query)
	if strings.TrimSpace(q) == "" {
		return Match{}, false
	}
	for _, name := range b.names {
		if strings.Contains(q, strings.ToLower(name)) {
			return Match{Crop: name, Data: b.entries[name], Method: MethodExact, Score: 1}, true
		}
	}
	return Match{}, false
}

// Document renders an entry as the text embedded for semantic search.
func (b *Base) Document(name string) string {
	data, ok := b.entries[name]
	if !ok {
		return ""
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return name + ": " + string(data)
	}
	return name + ": " + compact.String()
}
