package species

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// SuggesterOption is a functional option for configuring a [Suggester].
type SuggesterOption func(*Suggester)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically matched lexicon entry to be suggested. Default: 0.70.
func WithPhoneticThreshold(threshold float64) SuggesterOption {
	return func(s *Suggester) { s.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match exists and the suggester falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) SuggesterOption {
	return func(s *Suggester) { s.fuzzyThreshold = threshold }
}

// Suggester proposes known common names for unknown candidates, so the
// possibly-new-species review list can distinguish genuinely novel sightings
// from misheard or misspelled known species.
//
// Matching runs in two stages: Double Metaphone codes filter the lexicon to
// phonetic candidates, then Jaro-Winkler similarity (on accent-folded
// strings) ranks them. When no phonetic candidate clears the threshold, a
// pure-similarity fallback with a stricter threshold applies.
//
// A Suggester is read-only after construction and safe for concurrent use.
type Suggester struct {
	lexicon           []string
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewSuggester returns a Suggester over the given lexicon. A nil or empty
// lexicon defaults to the taxonomy tables' [Lexicon].
func NewSuggester(lexicon []string, opts ...SuggesterOption) *Suggester {
	if len(lexicon) == 0 {
		lexicon = Lexicon()
	}
	s := &Suggester{
		lexicon:           lexicon,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Suggest returns the lexicon entry most similar to name, its similarity
// score, and whether any entry cleared the applicable threshold. When ok is
// false, suggestion is empty and score is 0.
func (s *Suggester) Suggest(name string) (suggestion string, score float64, ok bool) {
	query := FoldAccents(strings.ToLower(strings.TrimSpace(name)))
	if query == "" {
		return "", 0, false
	}
	queryCodes := metaphoneCodes(query)

	type candidate struct {
		entry    string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, entry := range s.lexicon {
		folded := FoldAccents(strings.ToLower(entry))
		jw := matchr.JaroWinkler(query, folded, false)

		if codesOverlap(queryCodes, metaphoneCodes(folded)) {
			if jw >= s.phoneticThreshold && (!best.phonetic || jw > best.score) {
				best = candidate{entry: entry, score: jw, phonetic: true}
			}
		} else if !best.phonetic && jw >= s.fuzzyThreshold && jw > best.score {
			best = candidate{entry: entry, score: jw, phonetic: false}
		}
	}

	if best.entry == "" {
		return "", 0, false
	}
	return best.entry, best.score, true
}

// metaphoneCodes returns the union of Double Metaphone codes over the words
// of s. Codes are empty for very short or vowel-only words and are skipped.
func metaphoneCodes(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 4)
	for _, w := range strings.Fields(s) {
		p, sec := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
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
