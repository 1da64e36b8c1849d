// Package species holds the static marine-species domain data — common-name
// patterns, taxonomy association tables, Spanish vocabulary sets — and the
// lexical normalizer that maps raw transcript matches onto canonical names.
//
// The normalizer is a rule-based Spanish heuristic, not a linguistically
// complete stemmer: it folds accents, strips diminutives, and singularizes
// the final token. That is an accepted limitation — the goal is a stable
// grouping key for mentions of the same organism, not correct Spanish.
//
// All data in this package is fixed at compile time and all functions are
// pure, so everything here is safe for concurrent use.
package species

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	diminutiveCIto = regexp.MustCompile(`(cito|cita|citos|citas)$`)
	diminutiveIto  = regexp.MustCompile(`(ito|ita|itos|itas)$`)
)

// accentFolder strips combining marks after NFKD decomposition and
// recomposes, turning "camarón" into "camaron".
var accentFolder = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// accentRestorations maps fully normalized accent-folded forms back to their
// accented canonical spelling. Purely cosmetic: grouping always happens on
// the folded form, so restoring accents cannot split a group.
var accentRestorations = map[string]string{
	"camaron":   "camarón",
	"crustaceo": "crustáceo",
	"decapodo":  "decápodo",
	"isopodo":   "isópodo",
	"anfipodo":  "anfípodo",
	"quiton":    "quitón",
	"atun":      "atún",
	"tiburon":   "tiburón",
	"ventonico": "ventónico",
}

// FoldAccents returns s with diacritics removed (NFKD decomposition, then
// combining marks stripped). Input that fails to transform is returned
// unchanged; for well-formed UTF-8 that does not happen.
func FoldAccents(s string) string {
	folded, _, err := transform.String(accentFolder, s)
	if err != nil {
		return s
	}
	return folded
}

// Normalize maps a raw common-name string onto its canonical form, the
// identity key used for deduplication grouping and taxonomy lookup.
//
// The steps run in a fixed order and every step is total:
//
//  1. Trim, lowercase, collapse internal whitespace.
//  2. Fold accents to base Latin letters.
//  3. Return known multi-word phrases immediately — suffix stripping would
//     corrupt them ("caballito de mar" must not lose its diminutive).
//  4. Per token: strip -cito/-cita/-citos/-citas unconditionally, then
//     collapse -ito/-ita/-itos/-itas to the bare vowel form, but only for
//     tokens longer than four characters so short canonical words survive.
//  5. Singularize the final token only (ces→z, es→drop, vowel+s→drop s).
//  6. Restore accents for known canonical forms.
//
// Normalize is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = whitespaceRun.ReplaceAllString(name, " ")
	name = FoldAccents(name)

	// Phrase exceptions bypass all suffix handling.
	if strings.Contains(name, "caballito de mar") || strings.Contains(name, "caballitos de mar") {
		return "caballito de mar"
	}

	tokens := strings.Split(name, " ")
	for i, t := range tokens {
		t = diminutiveCIto.ReplaceAllString(t, "")
		if len(t) > 4 && diminutiveIto.MatchString(t) {
			t = strings.TrimSuffix(t, "itos") + suffixVowel(t, "itos")
			t = strings.TrimSuffix(t, "itas") + suffixVowel(t, "itas")
			t = strings.TrimSuffix(t, "ito") + suffixVowel(t, "ito")
			t = strings.TrimSuffix(t, "ita") + suffixVowel(t, "ita")
		}
		tokens[i] = t
	}
	if len(tokens) > 0 {
		tokens[len(tokens)-1] = singularize(tokens[len(tokens)-1])
	}

	normalized := strings.TrimSpace(strings.Join(tokens, " "))
	if restored, ok := accentRestorations[normalized]; ok {
		return restored
	}
	return normalized
}

// suffixVowel returns the vowel-final replacement for a diminutive suffix
// when t actually ends in it, or "" otherwise (so TrimSuffix+suffixVowel is
// a no-op for non-matching tokens).
func suffixVowel(t, suffix string) string {
	if !strings.HasSuffix(t, suffix) {
		return ""
	}
	switch suffix {
	case "itos":
		return "os"
	case "itas":
		return "as"
	case "ito":
		return "o"
	case "ita":
		return "a"
	}
	return ""
}

// singularize applies the heuristic Spanish singular rules to one word:
// trailing "ces" becomes "z" (peces→pez), otherwise a trailing "es" is
// dropped (camarones→camaron), otherwise a trailing vowel+s loses the "s"
// (pulpos→pulpo). Anything else is left alone.
func singularize(word string) string {
	switch {
	case strings.HasSuffix(word, "ces"):
		return strings.TrimSuffix(word, "ces") + "z"
	case strings.HasSuffix(word, "es"):
		return strings.TrimSuffix(word, "es")
	case len(word) >= 2 && strings.HasSuffix(word, "s") && isVowel(rune(word[len(word)-2])):
		return strings.TrimSuffix(word, "s")
	}
	return word
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
