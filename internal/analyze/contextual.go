package analyze

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/anavidal/bentos/internal/species"
	"github.com/anavidal/bentos/internal/subtitle"
	"github.com/anavidal/bentos/pkg/types"
)

// Marine keyword adjacency, both directions. Captures use \pL so that
// accented Spanish words ("crustáceo bentónico") are taken whole rather
// than split at the accent.
var marinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(\pL+)\s+(?:especie marina|organismo marino|animal marino)\b`),
	regexp.MustCompile(`(?i)\b(?:especie marina|organismo marino|animal marino)\s+(\pL+)\b`),
	regexp.MustCompile(`(?i)\b(\pL+)\s+(?:bentónico|pelágico|planctónico)\b`),
	regexp.MustCompile(`(?i)\b(?:bentónico|pelágico|planctónico)\s+(\pL+)\b`),
}

// marineContextStrategy accepts a word because it sits directly next to an
// unambiguous marine phrase. No further gating: the adjacency itself is the
// evidence, hence the mid-range confidence.
type marineContextStrategy struct {
	b *builder
}

func (s *marineContextStrategy) Name() string { return "marine_context" }

func (s *marineContextStrategy) Scan(doc *subtitle.Document) []types.Mention {
	text := doc.Text()
	var out []types.Mention
	for _, re := range marinePatterns {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			candidate := text[loc[2]:loc[3]]
			if !validCandidate(candidate) {
				continue
			}
			m := s.b.mention(doc, candidate, species.UnknownPhylum, loc[0])
			m.Method = types.MethodScientificContext
			m.Confidence = confidenceMarineCtx
			out = append(out, m)
		}
	}
	return out
}

// Determiner followed by a word. Matches constantly in running Spanish, so
// acceptance additionally requires scientific vocabulary nearby.
var determinerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:el|la|los|las)\s+(\pL+)\b`),
	regexp.MustCompile(`(?i)\b(?:un|una|unos|unas)\s+(\pL+)\b`),
}

// determinerContextStrategy accepts determiner-introduced words only when
// the surrounding window reads like scientific discourse. The weakest
// evidence of the four strategies, reflected in its confidence.
type determinerContextStrategy struct {
	b             *builder
	scienceWindow int
}

func (s *determinerContextStrategy) Name() string { return "determiner_context" }

func (s *determinerContextStrategy) Scan(doc *subtitle.Document) []types.Mention {
	text := doc.Text()
	var out []types.Mention
	for _, re := range determinerPatterns {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			if !hasScientificContext(windowAround(text, loc[0], s.scienceWindow)) {
				continue
			}
			candidate := text[loc[2]:loc[3]]
			if !validCandidate(candidate) {
				continue
			}
			m := s.b.mention(doc, candidate, species.UnknownPhylum, loc[0])
			m.Method = types.MethodScientificContext
			m.Confidence = confidenceDeterminer
			out = append(out, m)
		}
	}
	return out
}

// validCandidate rejects words too short to be a species name and Spanish
// function words. The \pL capture classes already exclude digits and
// punctuation.
func validCandidate(word string) bool {
	if utf8.RuneCountInString(word) < 3 {
		return false
	}
	return !species.IsStopWord(word)
}

// hasScientificContext reports whether the window contains any scientific
// indicator, accent-folded on both sides so transcripts that drop accents
// still pass the gate.
func hasScientificContext(window string) bool {
	folded := species.FoldAccents(strings.ToLower(window))
	for _, indicator := range species.ScienceIndicators {
		if strings.Contains(folded, species.FoldAccents(indicator)) {
			return true
		}
	}
	return false
}

// windowAround returns the raw text window of ±half bytes around pos,
// adjusted to rune boundaries.
func windowAround(text string, pos, half int) string {
	start := pos - half
	if start < 0 {
		start = 0
	}
	end := pos + half
	if end > len(text) {
		end = len(text)
	}
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return text[start:end]
}
