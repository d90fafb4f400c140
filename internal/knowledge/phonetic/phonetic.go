// Package phonetic matches misheard or misspelled crop names against the
// names in the knowledge base.
//
// Translated speech regularly produces near misses such as "wheet" for
// "wheat" or "sugar cane" for "sugarcane". The matcher works in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the phrase and of each crop name. A crop whose codes
//     overlap with the phrase's becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the crop with the
//     highest Jaro-Winkler similarity wins, provided it reaches the phonetic
//     threshold (default 0.70). Without a phonetic candidate a crop is only
//     accepted on pure Jaro-Winkler similarity above the stricter fuzzy
//     threshold (default 0.85).
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically matched crop to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.phoneticThreshold = threshold
		}
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.fuzzyThreshold = threshold
		}
	}
}

// Matcher is a phonetic crop-name matcher. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the name in names that is most similar to phrase. phrase may
// hold several words. When matched is false, name is empty and confidence
// is 0. Ties keep the earliest name, so callers control precedence through
// the order of names.
func (m *Matcher) Match(phrase string, names []string) (name string, confidence float64, matched bool) {
	phraseLower := strings.ToLower(strings.TrimSpace(phrase))
	if len(names) == 0 || phraseLower == "" {
		return "", 0, false
	}
	phraseTokens := strings.Fields(phraseLower)
	phraseCodes := codesForTokens(phraseTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, n := range names {
		nameLower := strings.ToLower(strings.TrimSpace(n))
		if nameLower == "" {
			continue
		}
		nameTokens := strings.Fields(nameLower)

		phoneticMatch := codesOverlap(phraseCodes, codesForTokens(nameTokens))
		score := bestJWScore(phraseTokens, nameTokens, phraseLower, nameLower)

		switch {
		case phoneticMatch && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = n, score, true
			}
		case !phoneticMatch && !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = n, score
		}
	}

	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity over the full strings,
// the space-stripped strings ("sugar cane" vs "sugarcane") and, for
// multi-word crop names, every word pair.
func bestJWScore(phraseTokens, nameTokens []string, phraseFull, nameFull string) float64 {
	score := matchr.JaroWinkler(phraseFull, nameFull, false)

	if len(phraseTokens) > 1 || len(nameTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(phraseTokens, ""), strings.Join(nameTokens, ""), false); s > score {
			score = s
		}
	}

	// Pairwise scores only help when the name itself has several words;
	// for single-word names they would let any close word of a longer
	// phrase through.
	if len(nameTokens) > 1 {
		for _, pt := range phraseTokens {
			for _, nt := range nameTokens {
				if s := matchr.JaroWinkler(pt, nt, false); s > score {
					score = s
				}
			}
		}
	}
	return score
}
