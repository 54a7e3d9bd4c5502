package profile

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// MatcherOption configures a [Matcher].
type MatcherOption func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a name that
// shares a Double Metaphone code with the input. Default: 0.70.
func WithPhoneticThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a name with no
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher ranks candidate names against an input by Double Metaphone overlap
// and Jaro-Winkler similarity. It is read-only after construction.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewMatcher returns a Matcher with the default thresholds.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the candidate closest to input. A phonetic candidate above
// the phonetic threshold always beats a purely fuzzy one. When nothing
// qualifies, matched is false and best is empty.
func (m *Matcher) Match(input string, candidates []string) (best string, score float64, matched bool) {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" || len(candidates) == 0 {
		return "", 0, false
	}
	inTokens := strings.Fields(in)
	inCodes := codesFor(inTokens)

	var bestPhonetic bool
	for _, cand := range candidates {
		c := strings.ToLower(strings.TrimSpace(cand))
		if c == "" {
			continue
		}
		cTokens := strings.Fields(c)
		s := similarity(inTokens, cTokens, in, c)

		if overlaps(inCodes, codesFor(cTokens)) {
			if s >= m.phoneticThreshold && (!bestPhonetic || s > score) {
				best, score, bestPhonetic = cand, s, true
			}
			continue
		}
		if !bestPhonetic && s >= m.fuzzyThreshold && s > score {
			best, score = cand, s
		}
	}
	return best, score, best != ""
}

func codesFor(tokens []string) map[string]struct{} {
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

func overlaps(a, b map[string]struct{}) bool {
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

// similarity is the best Jaro-Winkler score over the full strings, the
// strings with spaces removed, and every token pair.
func similarity(inTokens, cTokens []string, in, c string) float64 {
	score := matchr.JaroWinkler(in, c, false)
	if len(inTokens) > 1 || len(cTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inTokens, ""), strings.Join(cTokens, ""), false); s > score {
			score = s
		}
	}
	for _, a := range inTokens {
		for _, b := range cTokens {
			if s := matchr.JaroWinkler(a, b, false); s > score {
				score = s
			}
		}
	}
	return score
}
